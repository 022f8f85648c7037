package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/durations"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/ivyleavedtoadflax/remote.py/pkg/sshexec"
)

// test hooks
var (
	sleep     = time.Sleep
	now       = time.Now
	runBinary = sshexec.Run
	remoteRun = runRemote
)

// startPolicy decides what happens when a command needs a stopped instance.
type startPolicy struct {
	Start   bool `long:"start" description:"Start the instance without asking if it is stopped"`
	NoStart bool `long:"no-start" description:"Fail instead of starting a stopped instance"`
}

// sshFlags are the login options shared by connect, copy and sync.
type sshFlags struct {
	User string `short:"u" long:"user" description:"SSH user, defaults to the ssh_user preference"`
	Key  string `short:"k" long:"key" description:"SSH private key, defaults to the ssh_key_path preference"`
}

// connectionMethod picks the flag value, then the preference, then ssh.
func connectionMethod(system *System, flagValue string) (string, error) {
	m := flagValue
	if m == "" {
		m = system.Opts.Config.Profile.ConnectionMethod
	}
	if m == "" {
		return connectionSSH, nil
	}
	return checkProfileValue("connection_method", m)
}

// ensureRunning returns a running instance with a public DNS name, starting it
// first when the policy allows. prompt enables asking on a terminal.
func ensureRunning(system *System, name string, id string, p startPolicy, prompt bool) (*backend.Instance, error) {
	if p.Start && p.NoStart {
		return nil, errors.New("--start and --no-start are mutually exclusive")
	}
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return nil, err
	}
	if inst.IsRunning() && inst.PublicDNS != "" {
		return inst, nil
	}
	switch inst.State {
	case backend.StateTerminated, backend.StateShuttingDown:
		return nil, fmt.Errorf("instance %s is %s", name, inst.State)
	case backend.StateRunning, backend.StatePending:
		system.Logger.Info("Waiting for instance %s to be reachable", name)
		return system.Backend.WaitRunningWithDNS(id, system.Settings.StartupPoll())
	}
	switch {
	case p.NoStart:
		return nil, fmt.Errorf("instance %s is %s; start it first or drop --no-start", name, inst.State)
	case p.Start:
	case prompt && IsInteractive():
		ok, err := Confirm(fmt.Sprintf("Instance %s is %s. Start it now?", name, inst.State), true)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errAborted
		}
	default:
		return nil, fmt.Errorf("instance %s is %s; pass --start to start it", name, inst.State)
	}
	system.Logger.Info("Starting instance %s", name)
	if err := system.Backend.EnsureRunning(id, system.Settings.StartRetryPoll()); err != nil {
		if poll.IsTimeout(err) {
			return nil, fmt.Errorf("instance %s did not start after %d attempts", name, system.Settings.Startup.StartRetries)
		}
		return nil, err
	}
	if _, err := system.Tracking.RecordStart(id, name); err != nil {
		system.Logger.Warn("Could not record usage: %s", err)
	}
	inst, err = system.Backend.WaitRunningWithDNS(id, system.Settings.StartupPoll())
	if err != nil {
		return nil, err
	}
	system.Logger.Info("Waiting %s for services to come up", system.Settings.Startup.SettleTime)
	sleep(system.Settings.Startup.SettleTime)
	return inst, nil
}

// remote describes how to reach one instance.
type remote struct {
	Instance *backend.Instance
	Method   string
	User     string
	Key      string
	HostKeys sshexec.HostKeyPolicy
}

func newRemote(system *System, inst *backend.Instance, method string, f sshFlags) (*remote, error) {
	user, err := sshUser(system, f.User)
	if err != nil {
		return nil, err
	}
	return &remote{
		Instance: inst,
		Method:   method,
		User:     user,
		Key:      sshKeyPath(system, f.Key),
		HostKeys: sshexec.HostKeyAcceptNew,
	}, nil
}

func (r *remote) host() string {
	if r.Instance.PublicDNS != "" {
		return r.Instance.PublicDNS
	}
	return r.Instance.PublicIP
}

func (r *remote) target(system *System) *sshexec.Target {
	return &sshexec.Target{
		Host:    r.host(),
		User:    r.User,
		KeyPath: r.Key,
		Port:    system.Settings.SSH.Port,
	}
}

func (r *remote) ssmTarget(system *System) *sshexec.SSMTarget {
	return &sshexec.SSMTarget{
		InstanceID: r.Instance.ID,
		Profile:    system.Opts.Config.Profile.AWSProfile,
		Region:     system.Opts.Config.Profile.AWSRegion,
	}
}

// runRemote runs a shell line on the instance and returns the remote exit code.
// Over ssh it uses the native client; over ssm it goes through SendCommand.
func runRemote(system *System, r *remote, shell string, timeout time.Duration, stdout io.Writer, stderr io.Writer) (int, error) {
	if timeout <= 0 {
		timeout = system.Settings.SSH.OperationTimeout
	}
	if r.Method == connectionSSM {
		res, err := system.Backend.RunCommand(r.Instance.ID, shell, timeout, system.Settings.SSMPoll(timeout))
		var failed *backend.CommandFailedError
		if errors.As(err, &failed) {
			res = failed.Result
		} else if err != nil {
			return -1, err
		}
		io.WriteString(stdout, res.Stdout)
		io.WriteString(stderr, res.Stderr)
		if failed != nil && res.ExitCode == 0 {
			return 1, nil
		}
		return res.ExitCode, nil
	}
	out := sshexec.Exec(&sshexec.ExecInput{
		ClientConf: sshexec.ClientConf{
			Host:           r.host(),
			Port:           system.Settings.SSH.Port,
			Username:       r.User,
			KeyPath:        r.Key,
			ConnectTimeout: system.Settings.SSH.ConnectTimeout,
			HostKeys:       r.HostKeys,
		},
		ExecDetail: sshexec.ExecDetail{
			Shell:          shell,
			Stdout:         stdout,
			Stderr:         stderr,
			SessionTimeout: timeout,
		},
	})
	for _, w := range out.Warn {
		system.Logger.Warn("%s", w)
	}
	if out.Err != nil {
		return -1, out.Err
	}
	return out.ExitCode, nil
}

// scheduleShutdown replaces any pending shutdown with one in minutes.
func scheduleShutdown(system *System, r *remote, minutes int) error {
	shell := sshexec.CancelShutdownCommand + " 2>/dev/null || true; " + sshexec.ShutdownCommand(minutes)
	errOut := &bytes.Buffer{}
	code, err := remoteRun(system, r, shell, 0, io.Discard, errOut)
	if err != nil {
		return fmt.Errorf("could not schedule shutdown: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("could not schedule shutdown, exit code %d: %s", code, strings.TrimSpace(errOut.String()))
	}
	at := now().UTC().Add(time.Duration(minutes) * time.Minute)
	system.Logger.Info("Instance %s will shut down in %s (at %s UTC)", r.Instance.Name, durations.Format(minutes), at.Format("15:04"))
	return nil
}

// cancelShutdown reports false when nothing was scheduled.
func cancelShutdown(system *System, r *remote) (bool, error) {
	errOut := &bytes.Buffer{}
	code, err := remoteRun(system, r, sshexec.CancelShutdownCommand, 0, io.Discard, errOut)
	if err != nil {
		return false, fmt.Errorf("could not cancel shutdown: %w", err)
	}
	switch code {
	case 0:
		return true, nil
	case 1:
		return false, nil
	}
	return false, fmt.Errorf("could not cancel shutdown, exit code %d: %s", code, strings.TrimSpace(errOut.String()))
}

// runAttached runs a local binary attached to the terminal and fails on a non-zero exit.
func runAttached(name string, args []string) error {
	code, err := runBinary(name, args, os.Stdin, os.Stdout, os.Stderr)
	if err != nil {
		var nf *sshexec.BinaryNotFoundError
		if errors.As(err, &nf) && name == "aws" {
			return fmt.Errorf("%w; SSM sessions need the AWS CLI and the session-manager-plugin", err)
		}
		return err
	}
	if code != 0 {
		return fmt.Errorf("%s exited with code %d", name, code)
	}
	return nil
}
