package cmd

import (
	"fmt"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
)

type AutoShutdownCmd struct {
	Enable  AutoShutdownEnableCmd  `command:"enable" subcommands-optional:"true" description:"Stop the instance when its CPU stays idle"`
	Disable AutoShutdownDisableCmd `command:"disable" subcommands-optional:"true" description:"Remove the idle stop alarm"`
	Status  AutoShutdownStatusCmd  `command:"status" subcommands-optional:"true" description:"Show the idle stop alarm"`
	Help    HelpCmd                `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoShutdownCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

type AutoTerminateCmd struct {
	Enable  AutoTerminateEnableCmd  `command:"enable" subcommands-optional:"true" description:"Terminate the instance when its CPU stays idle"`
	Disable AutoTerminateDisableCmd `command:"disable" subcommands-optional:"true" description:"Remove the idle terminate alarm"`
	Status  AutoTerminateStatusCmd  `command:"status" subcommands-optional:"true" description:"Show the idle terminate alarm"`
	Help    HelpCmd                 `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoTerminateCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

// idleGroup maps an alarm action to its command group name.
func idleGroup(action backend.IdleAction) string {
	if action == backend.IdleTerminate {
		return "autoterminate"
	}
	return "autoshutdown"
}

func idleVerb(action backend.IdleAction) string {
	if action == backend.IdleTerminate {
		return "auto-termination"
	}
	return "auto-shutdown"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type idleEnable struct {
	Threshold       int  `short:"t" long:"threshold" description:"CPU percentage below which the instance counts as idle" default:"5"`
	Duration        int  `short:"d" long:"duration" description:"Minutes the CPU must stay below the threshold" default:"30"`
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
}

func (c *idleEnable) enable(system *System, action backend.IdleAction) error {
	if err := backend.ValidateIdleAlarm(c.Threshold, c.Duration); err != nil {
		return err
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	prompt := fmt.Sprintf("%s %s when CPU < %d%% for %d minutes?", capitalize(string(action)), instanceLabel(name, id), c.Threshold, c.Duration)
	if action == backend.IdleTerminate {
		prompt = fmt.Sprintf("TERMINATE %s when CPU < %d%% for %d minutes? Terminated instances and their root volumes cannot be recovered", instanceLabel(name, id), c.Threshold, c.Duration)
	}
	ok, err := confirmAction(c.Yes, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	updated, err := system.Backend.EnableIdleAlarm(action, id, name, c.Threshold, c.Duration)
	if err != nil {
		return err
	}
	if updated {
		system.Logger.Info("Updated %s for %s", idleVerb(action), name)
	} else {
		system.Logger.Info("Enabled %s for %s", idleVerb(action), name)
	}
	past := "stopped"
	if action == backend.IdleTerminate {
		past = "TERMINATED"
	}
	system.Logger.Warn("Instance will be %s when CPU < %d%% for %d minutes", past, c.Threshold, c.Duration)
	return nil
}

type idleDisable struct {
	InstanceID      string `long:"instance-id" description:"Instance ID, for instances that no longer resolve by name"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
}

func (c *idleDisable) disable(system *System, action backend.IdleAction) error {
	var name, id string
	var err error
	if c.InstanceID != "" {
		id, err = validate.InstanceID(c.InstanceID)
		name = id
	} else {
		name, id, err = resolveInstance(system, c.Name)
	}
	if err != nil {
		return err
	}
	existing, err := system.Backend.IdleAlarmStatus(action, id)
	if err != nil {
		return err
	}
	if existing == nil {
		system.Logger.Warn("%s is not enabled for %s", idleVerb(action), name)
		return nil
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Disable %s for %s?", idleVerb(action), name))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	if _, err := system.Backend.DisableIdleAlarm(action, id); err != nil {
		return err
	}
	system.Logger.Info("Disabled %s for %s", idleVerb(action), name)
	return nil
}

type idleStatus struct {
	instanceNameArg `positional-args:"true"`
}

func (c *idleStatus) status(system *System, action backend.IdleAction) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	alarm, err := system.Backend.IdleAlarmStatus(action, id)
	if err != nil {
		return err
	}
	if alarm == nil {
		system.Logger.Warn("%s is not enabled for %s", idleVerb(action), name)
		return nil
	}
	return details(fmt.Sprintf("%s of %s", capitalize(idleVerb(action)), name), func(t *printer.TableWriter) []printer.Field {
		return []printer.Field{
			{Name: "Alarm", Value: alarm.Name},
			{Name: "State", Value: t.State(alarm.State)},
			{Name: "Threshold", Value: fmt.Sprintf("CPU < %.0f%%", alarm.Threshold)},
			{Name: "Duration", Value: fmt.Sprintf("%d minutes", alarm.Minutes)},
			{Name: "Reason", Value: orDash(alarm.StateReason)},
		}
	})
}

type AutoShutdownEnableCmd struct {
	idleEnable
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoShutdownEnableCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleStop), "enable"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.enable(system, backend.IdleStop)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type AutoShutdownDisableCmd struct {
	idleDisable
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoShutdownDisableCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleStop), "disable"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.disable(system, backend.IdleStop)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type AutoShutdownStatusCmd struct {
	idleStatus
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoShutdownStatusCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleStop), "status"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.status(system, backend.IdleStop), system, cmd, c, args)
}

type AutoTerminateEnableCmd struct {
	idleEnable
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoTerminateEnableCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleTerminate), "enable"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.enable(system, backend.IdleTerminate)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type AutoTerminateDisableCmd struct {
	idleDisable
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoTerminateDisableCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleTerminate), "disable"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.disable(system, backend.IdleTerminate)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type AutoTerminateStatusCmd struct {
	idleStatus
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AutoTerminateStatusCmd) Execute(args []string) error {
	cmd := []string{idleGroup(backend.IdleTerminate), "status"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.status(system, backend.IdleTerminate), system, cmd, c, args)
}
