package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/durations"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
)

type InstanceStartCmd struct {
	StopIn          string `long:"stop-in" description:"Schedule a shutdown after this long, e.g. 2h, 30m or 1h30m"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceStartCmd) Execute(args []string) error {
	cmd := []string{"instance", "start"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.start(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *InstanceStartCmd) start(system *System) error {
	minutes := 0
	if c.StopIn != "" {
		var err error
		minutes, err = durations.ParseMinutes(c.StopIn)
		if err != nil {
			return err
		}
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return err
	}
	if inst.IsRunning() {
		system.Logger.Info("Instance %s is already running", name)
		if minutes == 0 {
			return nil
		}
		return c.scheduleStop(system, inst, minutes)
	}
	if inst.State == backend.StateTerminated || inst.State == backend.StateShuttingDown {
		return fmt.Errorf("instance %s is %s and cannot be started", name, inst.State)
	}
	if err := system.Backend.StartInstance(id); err != nil {
		return err
	}
	system.Logger.Info("Instance %s is starting", name)
	if _, err := system.Tracking.RecordStart(id, name); err != nil {
		system.Logger.Warn("Could not record usage: %s", err)
	}
	inst, err = system.Backend.WaitRunningWithDNS(id, system.Settings.StartupPoll())
	if err != nil {
		if !poll.IsTimeout(err) {
			return err
		}
		system.Logger.Warn("Instance %s is still starting after %s; check 'remote instance status'", name, system.Settings.StartupPoll().Duration())
		if minutes == 0 {
			return nil
		}
		system.Logger.Warn("Instance may not be ready, attempting to schedule the shutdown anyway")
		if inst, err = system.Backend.Instance(id); err != nil {
			return err
		}
	} else {
		system.Logger.Info("Instance %s is running at %s", name, inst.PublicDNS)
		if minutes == 0 {
			return nil
		}
	}
	system.Logger.Info("Waiting %s for SSH to become ready", system.Settings.SSH.ReadyWait)
	sleep(system.Settings.SSH.ReadyWait)
	return c.scheduleStop(system, inst, minutes)
}

func (c *InstanceStartCmd) scheduleStop(system *System, inst *backend.Instance, minutes int) error {
	method, err := connectionMethod(system, "")
	if err != nil {
		return err
	}
	r, err := newRemote(system, inst, method, sshFlags{})
	if err != nil {
		return err
	}
	return scheduleShutdown(system, r, minutes)
}

type InstanceStopCmd struct {
	StopIn          string `long:"stop-in" description:"Schedule a shutdown after this long instead of stopping now, e.g. 2h or 45m"`
	Cancel          bool   `long:"cancel" description:"Cancel a scheduled shutdown"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceStopCmd) Execute(args []string) error {
	cmd := []string{"instance", "stop"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.stop(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *InstanceStopCmd) stop(system *System) error {
	if c.Cancel && c.StopIn != "" {
		return errors.New("--cancel and --stop-in are mutually exclusive")
	}
	minutes := 0
	if c.StopIn != "" {
		var err error
		minutes, err = durations.ParseMinutes(c.StopIn)
		if err != nil {
			return err
		}
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return err
	}
	switch {
	case c.Cancel:
		if !inst.IsRunning() {
			system.Logger.Warn("Instance %s is not running, no shutdown to cancel", name)
			return nil
		}
		r, err := c.remote(system, inst)
		if err != nil {
			return err
		}
		cancelled, err := cancelShutdown(system, r)
		if err != nil {
			return err
		}
		if cancelled {
			system.Logger.Info("Cancelled scheduled shutdown of %s", name)
		} else {
			system.Logger.Info("No scheduled shutdown on %s", name)
		}
		return nil
	case minutes > 0:
		if !inst.IsRunning() {
			return fmt.Errorf("instance %s is %s; a shutdown can only be scheduled on a running instance", name, inst.State)
		}
		r, err := c.remote(system, inst)
		if err != nil {
			return err
		}
		return scheduleShutdown(system, r, minutes)
	}
	if inst.State == backend.StateStopped || inst.State == backend.StateStopping {
		system.Logger.Warn("Instance %s is already %s", name, inst.State)
		return nil
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Stop instance %s?", instanceLabel(name, id)))
	if err != nil {
		return err
	}
	if !ok {
		system.Logger.Info("Stop cancelled")
		return nil
	}
	price := system.Backend.GetInstancePrice(inst.Type, system.Backend.Region())
	if err := system.Backend.StopInstance(id); err != nil {
		return err
	}
	system.Logger.Info("Instance %s is stopping", name)
	session, err := system.Tracking.RecordStop(id, price.Hourly, name)
	if err != nil {
		system.Logger.Warn("Could not record usage: %s", err)
		return nil
	}
	if session != nil {
		system.Logger.Info("Session: %.2f hours, %s", session.Hours, backend.FormatPrice(session.Cost, price.Known))
	}
	return nil
}

func (c *InstanceStopCmd) remote(system *System, inst *backend.Instance) (*remote, error) {
	method, err := connectionMethod(system, "")
	if err != nil {
		return nil, err
	}
	return newRemote(system, inst, method, sshFlags{})
}
