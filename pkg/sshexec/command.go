package sshexec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
)

// Target is a remote instance reachable over ssh.
type Target struct {
	Host    string
	User    string
	KeyPath string
	Port    int
}

func (t *Target) login() string {
	if t.User == "" {
		return t.Host
	}
	return t.User + "@" + t.Host
}

// Forward is a local port forwarded to a port on the instance's loopback.
type Forward struct {
	Local  int
	Remote int
}

type SSHOptions struct {
	HostKeys          HostKeyPolicy
	KeepAliveInterval int
	KeepAliveCountMax int
	Verbose           bool
	Forwards          []Forward
	NoCommand         bool     // -N, used for forward-only sessions
	Command           []string // remote command, empty for a login shell
}

func (t *Target) connectionOptions(hostKeys HostKeyPolicy) []string {
	if hostKeys == "" {
		hostKeys = HostKeyAcceptNew
	}
	args := []string{"-o", "StrictHostKeyChecking=" + string(hostKeys)}
	if t.KeyPath != "" {
		args = append(args, "-i", ExpandHome(t.KeyPath))
	}
	if t.Port != 0 && t.Port != 22 {
		args = append(args, "-p", strconv.Itoa(t.Port))
	}
	return args
}

// SSHArgs builds the argument list for the system ssh binary.
func SSHArgs(t *Target, o *SSHOptions) []string {
	args := t.connectionOptions(o.HostKeys)
	if o.KeepAliveInterval > 0 {
		args = append(args, "-o", fmt.Sprintf("ServerAliveInterval=%d", o.KeepAliveInterval))
	}
	if o.KeepAliveCountMax > 0 {
		args = append(args, "-o", fmt.Sprintf("ServerAliveCountMax=%d", o.KeepAliveCountMax))
	}
	if o.Verbose {
		args = append(args, "-v")
	}
	if o.NoCommand {
		args = append(args, "-N")
	}
	for _, f := range o.Forwards {
		args = append(args, "-L", fmt.Sprintf("%d:localhost:%d", f.Local, f.Remote))
	}
	args = append(args, t.login())
	return append(args, o.Command...)
}

type RsyncOptions struct {
	HostKeys HostKeyPolicy
	Delete   bool
	DryRun   bool
	Progress bool
	Exclude  []string
}

// TransferSpec is a copy or sync request where exactly one side is remote.
type TransferSpec struct {
	Instance   string // empty selects the default instance
	RemotePath string
	LocalPath  string
	Upload     bool
}

// splitRemote recognises name:/path and :/path. Anything with a slash before
// the first colon is a local path.
func splitRemote(p string) (string, string, bool) {
	i := strings.Index(p, ":")
	if i < 0 || strings.Contains(p[:i], "/") {
		return "", "", false
	}
	return p[:i], p[i+1:], true
}

// ParseTransfer decides the direction of a copy from its two arguments.
func ParseTransfer(src string, dst string) (*TransferSpec, error) {
	srcName, srcPath, srcRemote := splitRemote(src)
	dstName, dstPath, dstRemote := splitRemote(dst)
	switch {
	case srcRemote && dstRemote:
		return nil, errors.New("both source and destination are remote; one side must be a local path")
	case !srcRemote && !dstRemote:
		return nil, errors.New("neither source nor destination is remote; use instance:/path (or :/path for the default instance)")
	case srcRemote:
		if srcPath == "" {
			return nil, errors.New("remote path is empty")
		}
		return &TransferSpec{Instance: srcName, RemotePath: srcPath, LocalPath: dst}, nil
	}
	if dstPath == "" {
		return nil, errors.New("remote path is empty")
	}
	return &TransferSpec{Instance: dstName, RemotePath: dstPath, LocalPath: src, Upload: true}, nil
}

// RsyncArgs builds rsync arguments that tunnel through ssh with the target's key and port.
func RsyncArgs(t *Target, spec *TransferSpec, o *RsyncOptions) []string {
	sshCmd := append([]string{"ssh"}, t.connectionOptions(o.HostKeys)...)
	args := []string{"-avz", "-e", strings.Join(sshCmd, " ")}
	if o.Delete {
		args = append(args, "--delete")
	}
	if o.DryRun {
		args = append(args, "--dry-run")
	}
	if o.Progress {
		args = append(args, "--progress")
	}
	for _, e := range o.Exclude {
		args = append(args, "--exclude", e)
	}
	remote := t.login() + ":" + spec.RemotePath
	if spec.Upload {
		return append(args, spec.LocalPath, remote)
	}
	return append(args, remote, spec.LocalPath)
}

// SSMTarget addresses an instance through Session Manager.
type SSMTarget struct {
	InstanceID string
	Profile    string
	Region     string
}

func (t *SSMTarget) baseArgs(document string, params map[string][]string) []string {
	p, _ := json.Marshal(params)
	args := []string{"ssm", "start-session",
		"--target", t.InstanceID,
		"--document-name", document,
		"--parameters", string(p),
	}
	if t.Profile != "" {
		args = append(args, "--profile", t.Profile)
	}
	if t.Region != "" {
		args = append(args, "--region", t.Region)
	}
	return args
}

// SSMSessionArgs builds an interactive login as user through the aws CLI.
func SSMSessionArgs(t *SSMTarget, user string) []string {
	return t.baseArgs("AWS-StartInteractiveCommand", map[string][]string{
		"command": {"sudo su - " + user},
	})
}

// SSMPortForwardArgs builds a port-forwarding session through the aws CLI.
func SSMPortForwardArgs(t *SSMTarget, f Forward) []string {
	return t.baseArgs("AWS-StartPortForwardingSession", map[string][]string{
		"portNumber":      {strconv.Itoa(f.Remote)},
		"localPortNumber": {strconv.Itoa(f.Local)},
	})
}

// ShutdownCommand schedules a halt in minutes; CancelShutdownCommand cancels it.
func ShutdownCommand(minutes int) string {
	return fmt.Sprintf("sudo shutdown -h +%d", minutes)
}

const CancelShutdownCommand = "sudo shutdown -c"

type BinaryNotFoundError struct {
	Name string
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("%s not found on PATH", e.Name)
}

// Run executes a local binary with the given streams and returns its exit code.
// A non-zero exit is not an error; failing to start the binary is.
func Run(name string, args []string, stdin io.Reader, stdout io.Writer, stderr io.Writer) (int, error) {
	bin, err := exec.LookPath(name)
	if err != nil {
		return -1, &BinaryNotFoundError{Name: name}
	}
	c := exec.Command(bin, args...)
	c.Stdin = stdin
	c.Stdout = stdout
	c.Stderr = stderr
	err = c.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
