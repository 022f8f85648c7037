package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
)

type InstanceTypeCmd struct {
	Type string `short:"t" long:"type" description:"New instance type, e.g. t3.large"`
	Yes  bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Args struct {
		Type string `positional-arg-name:"TYPE" description:"New instance type; the --type flag takes precedence"`
		Name string `positional-arg-name:"INSTANCE" description:"Instance name, defaults to the configured instance_name"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceTypeCmd) Execute(args []string) error {
	cmd := []string{"instance", "type"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.changeType(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

// arguments accepts "type TYPE INSTANCE", "type INSTANCE --type TYPE" and
// "type INSTANCE" (show only).
func (c *InstanceTypeCmd) arguments() (string, string) {
	if c.Type != "" {
		name := c.Args.Name
		if name == "" {
			name = c.Args.Type
		}
		return c.Type, name
	}
	if c.Args.Name != "" {
		return c.Args.Type, c.Args.Name
	}
	if _, err := validate.InstanceType(c.Args.Type); err == nil {
		return c.Args.Type, ""
	}
	return "", c.Args.Type
}

func (c *InstanceTypeCmd) changeType(system *System) error {
	newType, name := c.arguments()
	name, id, err := resolveInstance(system, name)
	if err != nil {
		return err
	}
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return err
	}
	if newType == "" {
		fmt.Fprintf(stdout, "Instance %s is currently of type %s\n", name, inst.Type)
		return nil
	}
	newType, err = validate.InstanceType(newType)
	if err != nil {
		return err
	}
	if newType == inst.Type {
		system.Logger.Warn("Instance %s is already of type %s", name, newType)
		return nil
	}
	if inst.State != backend.StateStopped {
		return fmt.Errorf("instance %s is %s; stop it first with 'remote instance stop %s'", name, inst.State, name)
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Change type of %s from %s to %s?", name, inst.Type, newType))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	if err := system.Backend.ChangeInstanceType(id, newType); err != nil {
		return err
	}
	system.Logger.Info("Changing type of %s to %s", name, newType)
	err = system.Backend.WaitInstanceType(id, newType, system.Settings.TypeChangePoll())
	if poll.IsTimeout(err) {
		system.Logger.Warn("Type change was requested but not yet confirmed; it may still be in progress")
		return nil
	}
	if err != nil {
		return err
	}
	system.Logger.Info("Instance %s is now of type %s", name, newType)
	return nil
}

type InstanceTerminateCmd struct {
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceTerminateCmd) Execute(args []string) error {
	cmd := []string{"instance", "terminate"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.terminate(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *InstanceTerminateCmd) terminate(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return err
	}
	if inst.State == backend.StateTerminated {
		system.Logger.Warn("Instance %s is already terminated", name)
		return nil
	}
	if inst.TerraformManaged() {
		system.Logger.Warn("Instance %s looks managed by Terraform; terminating it will drift the Terraform state", name)
	}
	if !c.Yes {
		if !IsInteractive() {
			return errNeedsYes
		}
		typed, err := AskForString(fmt.Sprintf("Type the instance name (%s) to confirm termination", name))
		if err != nil {
			return err
		}
		if typed != name {
			return errors.New("instance name does not match, not terminating")
		}
		ok, err := Confirm(fmt.Sprintf("Terminate %s? This cannot be undone", instanceLabel(name, id)), false)
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
	}
	if err := system.Backend.TerminateInstance(id); err != nil {
		return err
	}
	system.Logger.Info("Instance %s is terminating", name)
	return nil
}
