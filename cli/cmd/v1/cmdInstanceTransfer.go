package cmd

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/sshexec"
)

// transferFlags are shared by copy and sync.
type transferFlags struct {
	sshFlags
	DryRun   bool     `short:"n" long:"dry-run" description:"Show what would be transferred"`
	Progress bool     `short:"v" long:"progress" description:"Show transfer progress"`
	Exclude  []string `short:"e" long:"exclude" description:"Exclude a pattern; can be repeated"`
	Native   bool     `long:"native" description:"Use the built-in sftp client instead of rsync"`
	Timeout  int      `short:"t" long:"timeout" description:"Seconds to wait for a stopped instance to become reachable; 0 uses the configured startup wait"`
	startPolicy
	Args struct {
		Source      string `positional-arg-name:"SOURCE" description:"Local path or INSTANCE:/path (:/path for the default instance)" required:"yes"`
		Destination string `positional-arg-name:"DESTINATION" description:"Local path or INSTANCE:/path (:/path for the default instance)" required:"yes"`
	} `positional-args:"true"`
}

type InstanceCopyCmd struct {
	transferFlags
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceCopyCmd) Execute(args []string) error {
	cmd := []string{"instance", "copy"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.transfer(system, false)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type InstanceSyncCmd struct {
	transferFlags
	Delete bool    `short:"d" long:"delete" description:"Delete destination files that do not exist in the source"`
	Yes    bool    `short:"y" long:"yes" description:"Do not ask for confirmation of --delete"`
	Help   HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceSyncCmd) Execute(args []string) error {
	cmd := []string{"instance", "sync"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	if c.Delete && !c.DryRun {
		ok, err := confirmAction(c.Yes, fmt.Sprintf("Delete files in %s that are not in %s?", c.Args.Destination, c.Args.Source))
		if err != nil {
			return Error(err, system, cmd, c, args)
		}
		if !ok {
			return Error(errAborted, system, cmd, c, args)
		}
	}
	err = c.transfer(system, c.Delete)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

var lookPath = exec.LookPath

func (c *transferFlags) transfer(system *System, deleteExtra bool) error {
	method, err := connectionMethod(system, "")
	if err != nil {
		return err
	}
	if method == connectionSSM {
		return errors.New("file transfer is not available over ssm; set connection_method to ssh")
	}
	spec, err := sshexec.ParseTransfer(c.Args.Source, c.Args.Destination)
	if err != nil {
		return err
	}
	if c.Timeout > 0 && system.Settings.Startup.Interval > 0 {
		system.Settings.Startup.MaxAttempts = max(1, int(time.Duration(c.Timeout)*time.Second/system.Settings.Startup.Interval))
	}
	name, id, err := resolveInstance(system, spec.Instance)
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
	native := c.Native
	if !native {
		if _, err := lookPath("rsync"); err != nil {
			system.Logger.Warn("rsync not found, using the built-in sftp client")
			native = true
		}
	}
	if native {
		return c.sftp(system, r, spec, deleteExtra)
	}
	args := sshexec.RsyncArgs(r.target(system), spec, &sshexec.RsyncOptions{
		HostKeys: sshexec.HostKeyAcceptNew,
		Delete:   deleteExtra,
		DryRun:   c.DryRun,
		Progress: c.Progress,
		Exclude:  c.Exclude,
	})
	system.Logger.Debug("rsync %v", args)
	return runAttached("rsync", args)
}

func (c *transferFlags) sftp(system *System, r *remote, spec *sshexec.TransferSpec, deleteExtra bool) error {
	if deleteExtra || c.DryRun || len(c.Exclude) > 0 {
		return errors.New("--delete, --dry-run and --exclude need rsync")
	}
	client, err := sshexec.NewSftp(&sshexec.ClientConf{
		Host:           r.host(),
		Port:           system.Settings.SSH.Port,
		Username:       r.User,
		KeyPath:        r.Key,
		ConnectTimeout: system.Settings.SSH.ConnectTimeout,
		HostKeys:       r.HostKeys,
	})
	if err != nil {
		return err
	}
	defer client.Close()
	var stats *sshexec.TransferStats
	if spec.Upload {
		stats, err = client.Upload(spec.LocalPath, spec.RemotePath)
	} else {
		stats, err = client.Download(spec.RemotePath, spec.LocalPath)
	}
	if err != nil {
		return err
	}
	system.Logger.Info("Transferred %d file(s), %d bytes", stats.Files, stats.Bytes)
	return nil
}
