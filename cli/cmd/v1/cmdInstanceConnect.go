package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/sshexec"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/openbrowser"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/shutdown"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
)

type InstanceConnectCmd struct {
	PortForward []string `short:"p" long:"port-forward" description:"Forward LOCAL:REMOTE or PORT; can be repeated"`
	sshFlags
	Verbose  bool `short:"v" long:"verbose" description:"Verbose ssh output"`
	NoStrict bool `short:"S" long:"no-strict-host-key" description:"Do not check the host key at all"`
	startPolicy
	Timeout         int    `short:"t" long:"timeout" description:"Seconds to wait for a stopped instance to become reachable; 0 uses the configured startup wait"`
	WhitelistIP     bool   `short:"w" long:"whitelist-ip" description:"Allow your current public IP on port 22 before connecting"`
	Exclusive       bool   `short:"e" long:"exclusive" description:"With --whitelist-ip, remove every other IP from the rule"`
	Connection      string `long:"connection" description:"ssh or ssm, defaults to the connection_method preference"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceConnectCmd) Execute(args []string) error {
	cmd := []string{"instance", "connect"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.connect(system), system, cmd, c, args)
}

func parseForwards(specs []string) ([]sshexec.Forward, error) {
	forwards := []sshexec.Forward{}
	for _, spec := range specs {
		local, remotePort, err := validate.PortSpec(spec)
		if err != nil {
			return nil, err
		}
		forwards = append(forwards, sshexec.Forward{Local: local, Remote: remotePort})
	}
	return forwards, nil
}

func (c *InstanceConnectCmd) connect(system *System) error {
	if c.Exclusive && !c.WhitelistIP {
		return errors.New("--exclusive requires --whitelist-ip")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %d", c.Timeout)
	}
	if c.Timeout > 0 && system.Settings.Startup.Interval > 0 {
		system.Settings.Startup.MaxAttempts = max(1, int(time.Duration(c.Timeout)*time.Second/system.Settings.Startup.Interval))
	}
	method, err := connectionMethod(system, c.Connection)
	if err != nil {
		return err
	}
	forwards, err := parseForwards(c.PortForward)
	if err != nil {
		return err
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	inst, err := ensureRunning(system, name, id, c.startPolicy, true)
	if err != nil {
		return err
	}
	if c.WhitelistIP {
		c.whitelist(system, id)
	}
	r, err := newRemote(system, inst, method, c.sshFlags)
	if err != nil {
		return err
	}
	if method == connectionSSM {
		if len(forwards) > 0 {
			return errors.New("--port-forward is not available over ssm; use 'remote instance forward'")
		}
		system.Logger.Info("Opening SSM session to %s", name)
		return runAttached("aws", sshexec.SSMSessionArgs(r.ssmTarget(system), r.User))
	}
	opts := &sshexec.SSHOptions{
		HostKeys:          sshexec.HostKeyAcceptNew,
		KeepAliveInterval: system.Settings.SSH.KeepAliveInterval,
		KeepAliveCountMax: system.Settings.SSH.KeepAliveCountMax,
		Verbose:           c.Verbose,
		Forwards:          forwards,
	}
	if c.NoStrict {
		opts.HostKeys = sshexec.HostKeyIgnore
	}
	system.Logger.Info("Connecting to %s as %s", name, r.User)
	return runAttached("ssh", sshexec.SSHArgs(r.target(system), opts))
}

// whitelist failures only warn; the connection may still work.
func (c *InstanceConnectCmd) whitelist(system *System, id string) {
	ip, err := system.Backend.PublicIP()
	if err != nil {
		system.Logger.Warn("Could not whitelist IP: %s", err)
		return
	}
	results, err := system.Backend.WhitelistIP(id, ip, system.Settings.SSH.Port, c.Exclusive)
	if err != nil {
		system.Logger.Warn("Could not whitelist IP %s: %s", ip, err)
		return
	}
	reportWhitelist(system, ip, system.Settings.SSH.Port, results)
}

type InstanceForwardCmd struct {
	Open       bool   `short:"o" long:"open" description:"Open the forwarded port in a browser"`
	Connection string `long:"connection" description:"ssh or ssm, defaults to the connection_method preference"`
	sshFlags
	startPolicy
	Args struct {
		PortSpec string `positional-arg-name:"PORTSPEC" description:"REMOTE or LOCAL:REMOTE" required:"yes"`
		Name     string `positional-arg-name:"INSTANCE" description:"Instance name, defaults to the configured instance_name"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceForwardCmd) Execute(args []string) error {
	cmd := []string{"instance", "forward"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.forward(system), system, cmd, c, args)
}

func (c *InstanceForwardCmd) forward(system *System) error {
	local, remotePort, err := validate.PortSpec(c.Args.PortSpec)
	if err != nil {
		return err
	}
	method, err := connectionMethod(system, c.Connection)
	if err != nil {
		return err
	}
	name, id, err := resolveInstance(system, c.Args.Name)
	if err != nil {
		return err
	}
	inst, err := ensureRunning(system, name, id, c.startPolicy, true)
	if err != nil {
		return err
	}
	r, err := newRemote(system, inst, method, c.sshFlags)
	if err != nil {
		return err
	}
	f := sshexec.Forward{Local: local, Remote: remotePort}
	url := openbrowser.LocalURL(local)
	fmt.Fprintf(stdout, "Forwarding %s to port %d on %s. Press Ctrl+C to stop.\n", url, remotePort, name)
	if c.Open {
		shutdown.AddJob()
		go func() {
			defer shutdown.DoneJob()
			sleep(2 * time.Second)
			if err := openbrowser.Open(url); err != nil {
				system.Logger.Warn("Could not open browser: %s", err)
			}
		}()
	}
	if method == connectionSSM {
		return runAttached("aws", sshexec.SSMPortForwardArgs(r.ssmTarget(system), f))
	}
	return runAttached("ssh", sshexec.SSHArgs(r.target(system), &sshexec.SSHOptions{
		HostKeys:          sshexec.HostKeyAcceptNew,
		KeepAliveInterval: system.Settings.SSH.KeepAliveInterval,
		KeepAliveCountMax: system.Settings.SSH.KeepAliveCountMax,
		NoCommand:         true,
		Forwards:          []sshexec.Forward{f},
	}))
}

type InstanceExecCmd struct {
	Quiet      bool          `short:"q" long:"quiet" description:"Only print the command output"`
	Timeout    time.Duration `long:"timeout" description:"Remote command timeout, defaults to the exec timeout setting"`
	Connection string        `long:"connection" description:"ssh or ssm, defaults to the connection_method preference"`
	sshFlags
	startPolicy
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

// ExitCodeError carries the exit status of a remote command.
type ExitCodeError struct {
	Code int
}

func (e *ExitCodeError) Error() string {
	return fmt.Sprintf("remote command exited with code %d", e.Code)
}

func (c *InstanceExecCmd) Execute(args []string) error {
	cmd := []string{"instance", "exec"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.exec(system, args), system, cmd, c, args)
}

// splitExecArgs treats the first argument as the instance only when it names one.
func (c *InstanceExecCmd) splitExecArgs(system *System, args []string) (string, string, []string, error) {
	if len(args) == 0 {
		return "", "", nil, errors.New("no command given; usage: remote instance exec [INSTANCE] -- COMMAND")
	}
	if len(args) > 1 {
		if _, err := validate.InstanceName(args[0]); err == nil {
			id, err := system.Backend.InstanceIDByName(args[0])
			if err == nil {
				return args[0], id, args[1:], nil
			}
			if !isNotFound(err) {
				return "", "", nil, err
			}
		}
	}
	name, id, err := resolveInstance(system, "")
	if err != nil {
		return "", "", nil, err
	}
	return name, id, args, nil
}

func (c *InstanceExecCmd) exec(system *System, args []string) error {
	method, err := connectionMethod(system, c.Connection)
	if err != nil {
		return err
	}
	name, id, command, err := c.splitExecArgs(system, args)
	if err != nil {
		return err
	}
	inst, err := ensureRunning(system, name, id, c.startPolicy, false)
	if err != nil {
		return err
	}
	r, err := newRemote(system, inst, method, c.sshFlags)
	if err != nil {
		return err
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = system.Settings.Exec.Timeout
	}
	shell := strings.Join(sshexec.QuoteArgs(command), " ")
	if len(command) == 1 {
		shell = command[0]
	}
	if !c.Quiet {
		system.Logger.Info("Running on %s: %s", name, shell)
	}
	code, err := remoteRun(system, r, shell, timeout, stdout, os.Stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitCodeError{Code: code}
	}
	return nil
}
