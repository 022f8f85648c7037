package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/bestmethod/inslice"
	"github.com/ivyleavedtoadflax/remote.py/pkg/sshexec"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

type ConfigCmd struct {
	Profile  ConfigProfileCmd  `command:"profile" subcommands-optional:"true" description:"Preferences stored in the configuration file"`
	Show     ConfigShowCmd     `command:"show" subcommands-optional:"true" description:"Show the configuration file and its values"`
	Add      ConfigAddCmd      `command:"add" subcommands-optional:"true" description:"Set the default instance, picking from a list when no name is given"`
	Set      ConfigSetCmd      `command:"set" subcommands-optional:"true" description:"Set a configuration value"`
	Get      ConfigGetCmd      `command:"get" subcommands-optional:"true" description:"Print a configuration value"`
	Unset    ConfigUnsetCmd    `command:"unset" subcommands-optional:"true" description:"Reset a configuration value"`
	Init     ConfigInitCmd     `command:"init" subcommands-optional:"true" description:"Guided configuration setup"`
	Validate ConfigValidateCmd `command:"validate" subcommands-optional:"true" description:"Check the configured values"`
	Keys     ConfigKeysCmd     `command:"keys" subcommands-optional:"true" description:"List the valid configuration keys"`
	Help     HelpCmd           `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

// ConfigProfileCmd holds the preferences. It is never run for its options;
// they are read from and written to the [config.profile] section.
type ConfigProfileCmd struct {
	InstanceName          string  `long:"instance-name" ini-name:"instance_name" description:"Default EC2 instance name"`
	SSHUser               string  `long:"ssh-user" ini-name:"ssh_user" description:"SSH username" default:"ubuntu"`
	SSHKeyPath            string  `long:"ssh-key-path" ini-name:"ssh_key_path" description:"Path to SSH private key"`
	AWSRegion             string  `long:"aws-region" ini-name:"aws_region" description:"AWS region override"`
	AWSProfile            string  `long:"aws-profile" ini-name:"aws_profile" description:"AWS shared config profile"`
	DefaultLaunchTemplate string  `long:"default-launch-template" ini-name:"default_launch_template" description:"Default launch template name"`
	SchedulerTimezone     string  `long:"scheduler-timezone" ini-name:"scheduler_timezone" description:"IANA timezone for wake/sleep schedules"`
	ConnectionMethod      string  `long:"connection-method" ini-name:"connection_method" description:"How to reach instances: ssh or ssm" default:"ssh"`
	Help                  HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigProfileCmd) Execute(args []string) error {
	cmd := []string{"config", "profile"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(showProfile(system, stdout), system, cmd, c, args)
}

const (
	connectionSSH = "ssh"
	connectionSSM = "ssm"
)

// profileKey is one preference, addressed by its ini-name.
type profileKey struct {
	Key         string
	Description string
	Default     string
	value       reflect.Value
}

func (k *profileKey) Get() string {
	return k.value.String()
}

func (k *profileKey) Set(v string) {
	k.value.SetString(v)
}

func profileKeys(p *ConfigProfileCmd) []*profileKey {
	keys := []*profileKey{}
	v := reflect.ValueOf(p).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := f.Tag.Get("ini-name")
		if name == "" || f.Type.Kind() != reflect.String {
			continue
		}
		keys = append(keys, &profileKey{
			Key:         name,
			Description: f.Tag.Get("description"),
			Default:     f.Tag.Get("default"),
			value:       v.Field(i),
		})
	}
	return keys
}

func profileKeyNames(p *ConfigProfileCmd) []string {
	names := []string{}
	for _, k := range profileKeys(p) {
		names = append(names, k.Key)
	}
	return names
}

func findProfileKey(p *ConfigProfileCmd, key string) (*profileKey, error) {
	names := profileKeyNames(p)
	if !inslice.HasString(names, key) {
		return nil, fmt.Errorf("unknown config key: %s; valid keys: %s", key, strings.Join(names, ", "))
	}
	for _, k := range profileKeys(p) {
		if k.Key == key {
			return k, nil
		}
	}
	return nil, nil
}

// checkProfileValue rejects values that would break later commands.
func checkProfileValue(key string, value string) (string, error) {
	switch key {
	case "instance_name":
		return validate.InstanceName(value)
	case "ssh_user":
		return validate.SSHUser(value)
	case "connection_method":
		v := strings.ToLower(strings.TrimSpace(value))
		if !inslice.HasString([]string{connectionSSH, connectionSSM}, v) {
			return "", fmt.Errorf("connection_method must be %s or %s, got %q", connectionSSH, connectionSSM, value)
		}
		return v, nil
	case "scheduler_timezone":
		if _, err := time.LoadLocation(value); err != nil {
			return "", fmt.Errorf("unknown timezone %q: %w", value, err)
		}
	}
	return value, nil
}

func showProfile(system *System, out io.Writer) error {
	cfgFile, err := ConfigFileName()
	if err != nil {
		return err
	}
	t, err := printer.GetTableWriter(printer.OutputTable, "default", nil, false, false)
	if err != nil {
		return err
	}
	rows := []table.Row{}
	for _, k := range profileKeys(&system.Opts.Config.Profile) {
		rows = append(rows, table.Row{"config.profile", k.Key, k.Get()})
	}
	fmt.Fprintf(out, "Config file: %s\n", cfgFile)
	fmt.Fprintln(out, t.RenderTable(printer.String("Configuration"), table.Row{"Section", "Name", "Value"}, rows))
	return nil
}

type ConfigShowCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigShowCmd) Execute(args []string) error {
	cmd := []string{"config", "show"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(showProfile(system, stdout), system, cmd, c, args)
}

type ConfigAddCmd struct {
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigAddCmd) Execute(args []string) error {
	cmd := []string{"config", "add"}
	system, err := Initialize(&Init{InitBackend: c.Name == ""}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.add(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ConfigAddCmd) add(system *System) error {
	name := c.Name
	if name == "" {
		instances, err := system.Backend.Instances(false)
		if err != nil {
			return err
		}
		named := instances[:0]
		for _, inst := range instances {
			if inst.Name != "" {
				named = append(named, inst)
			}
		}
		rows := [][]string{}
		for _, inst := range named {
			rows = append(rows, []string{inst.Name, inst.ID, inst.Type, inst.State})
		}
		idx, err := selectOne("Select instance", rows)
		if err != nil {
			return err
		}
		name = named[idx].Name
	}
	name, err := validate.InstanceName(name)
	if err != nil {
		return err
	}
	system.Opts.Config.Profile.InstanceName = name
	if err := system.WriteConfigFile(); err != nil {
		return fmt.Errorf("could not write configuration file: %w", err)
	}
	system.Logger.Info("Default instance set to %s", name)
	return nil
}

type ConfigSetCmd struct {
	Args struct {
		Key   string `positional-arg-name:"KEY" required:"yes"`
		Value string `positional-arg-name:"VALUE" required:"yes"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigSetCmd) Execute(args []string) error {
	cmd := []string{"config", "set"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.set(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ConfigSetCmd) set(system *System) error {
	k, err := findProfileKey(&system.Opts.Config.Profile, c.Args.Key)
	if err != nil {
		return err
	}
	value, err := checkProfileValue(k.Key, c.Args.Value)
	if err != nil {
		return err
	}
	k.Set(value)
	if err := system.WriteConfigFile(); err != nil {
		return fmt.Errorf("could not write configuration file: %w", err)
	}
	system.Logger.Info("Set %s = %s", k.Key, value)
	return nil
}

type ConfigGetCmd struct {
	Args struct {
		Key string `positional-arg-name:"KEY" required:"yes"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigGetCmd) Execute(args []string) error {
	cmd := []string{"config", "get"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	value, err := c.get(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	fmt.Fprintln(stdout, value)
	return nil
}

func (c *ConfigGetCmd) get(system *System) (string, error) {
	k, err := findProfileKey(&system.Opts.Config.Profile, c.Args.Key)
	if err != nil {
		return "", err
	}
	if k.Get() == "" {
		return "", fmt.Errorf("%s is not set", k.Key)
	}
	return k.Get(), nil
}

type ConfigUnsetCmd struct {
	Args struct {
		Key string `positional-arg-name:"KEY" required:"yes"`
	} `positional-args:"true"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigUnsetCmd) Execute(args []string) error {
	cmd := []string{"config", "unset"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.unset(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

// unset puts the key back to its built-in default.
func (c *ConfigUnsetCmd) unset(system *System) error {
	k, err := findProfileKey(&system.Opts.Config.Profile, c.Args.Key)
	if err != nil {
		return err
	}
	if k.Get() == k.Default {
		return fmt.Errorf("key '%s' is not set in the config", k.Key)
	}
	k.Set(k.Default)
	if err := system.WriteConfigFile(); err != nil {
		return fmt.Errorf("could not write configuration file: %w", err)
	}
	system.Logger.Info("Removed %s", k.Key)
	return nil
}

type ConfigInitCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigInitCmd) Execute(args []string) error {
	cmd := []string{"config", "init"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.init(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ConfigInitCmd) init(system *System) error {
	if !IsInteractive() {
		return errors.New("config init needs an interactive terminal; use 'config set' instead")
	}
	p := &system.Opts.Config.Profile
	if p.InstanceName != "" || p.SSHKeyPath != "" {
		ok, err := Confirm("Config already exists. Overwrite?", false)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	fmt.Println("Remote.py Configuration Setup")
	answers := []struct {
		key    string
		prompt string
		def    string
	}{
		{"instance_name", "Default instance name (optional)", ""},
		{"ssh_user", "SSH username", defaultSSHUser},
		{"ssh_key_path", "SSH key path (optional)", ""},
		{"connection_method", "Connection method (ssh or ssm)", connectionSSH},
	}
	for _, a := range answers {
		k, _ := findProfileKey(p, a.key)
		for {
			v, err := AskWithDefault(a.prompt, a.def)
			if err != nil {
				return err
			}
			if v == "" {
				k.Set("")
				break
			}
			v, err = checkProfileValue(a.key, v)
			if err != nil {
				fmt.Println(err)
				continue
			}
			k.Set(v)
			break
		}
	}
	if err := system.WriteConfigFile(); err != nil {
		return fmt.Errorf("could not write configuration file: %w", err)
	}
	cfgFile, _ := ConfigFileName()
	system.Logger.Info("Config written to %s", cfgFile)
	return nil
}

type ConfigValidateCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigValidateCmd) Execute(args []string) error {
	cmd := []string{"config", "validate"}
	system, err := Initialize(&Init{InitBackend: false}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.validate(system), system, cmd, c, args)
}

// validate reports problems; warnings alone still pass.
func (c *ConfigValidateCmd) validate(system *System) error {
	p := &system.Opts.Config.Profile
	problems := []string{}
	warnings := []string{}
	if p.SSHKeyPath != "" {
		if _, err := os.Stat(sshexec.ExpandHome(p.SSHKeyPath)); err != nil {
			problems = append(problems, "SSH key not found: "+p.SSHKeyPath)
		}
	}
	for _, k := range profileKeys(p) {
		if k.Get() == "" || k.Key == "ssh_key_path" {
			continue
		}
		if _, err := checkProfileValue(k.Key, k.Get()); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if p.InstanceName == "" {
		warnings = append(warnings, "instance_name is not set; commands will need an instance name")
	}
	for _, w := range warnings {
		system.Logger.Warn("%s", w)
	}
	for _, e := range problems {
		system.Logger.Error("%s", e)
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration is invalid: %d error(s)", len(problems))
	}
	if len(warnings) > 0 {
		system.Logger.Info("Status: has warnings but usable")
	} else {
		system.Logger.Info("All checks passed")
	}
	return nil
}

type ConfigKeysCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ConfigKeysCmd) Execute(args []string) error {
	t, err := printer.GetTableWriter(printer.OutputTable, "default", nil, false, false)
	if err != nil {
		return err
	}
	rows := []table.Row{}
	for _, k := range profileKeys(&ConfigProfileCmd{}) {
		def := k.Default
		if def == "" {
			def = "-"
		}
		rows = append(rows, table.Row{k.Key, k.Description, def})
	}
	fmt.Fprintln(stdout, t.RenderTable(printer.String("Valid Configuration Keys"), table.Row{"Key", "Description", "Default"}, rows))
	return nil
}
