package cmd

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
)

type InstanceLaunchCmd struct {
	Name           string  `short:"n" long:"name" description:"Name tag of the new instance"`
	LaunchTemplate string  `short:"t" long:"template" description:"Launch template name, defaults to the default_launch_template preference"`
	Version        string  `short:"V" long:"version" description:"Launch template version" default:"$Latest"`
	CreateSG       bool    `long:"create-sg" description:"Create and attach a security group named remotepy-<name>"`
	Yes            bool    `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Help           HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceLaunchCmd) Execute(args []string) error {
	cmd := []string{"instance", "launch"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.launch(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

const nameSuffixChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// suggestName returns <template>-<6 random characters>.
func suggestName(template string) string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = nameSuffixChars[rand.Intn(len(nameSuffixChars))]
	}
	return template + "-" + string(b)
}

func (c *InstanceLaunchCmd) template(system *System) (string, error) {
	if c.LaunchTemplate != "" {
		return c.LaunchTemplate, nil
	}
	if t := system.Opts.Config.Profile.DefaultLaunchTemplate; t != "" {
		system.Logger.Info("Using default launch template %s", t)
		return t, nil
	}
	templates, err := system.Backend.LaunchTemplates("")
	if err != nil {
		return "", err
	}
	if len(templates) == 0 {
		return "", errors.New("no launch templates found; create one with 'remote ami create-template'")
	}
	rows := [][]string{}
	for _, t := range templates {
		rows = append(rows, []string{t.Name, t.ID, fmt.Sprintf("v%d", t.LatestVersion)})
	}
	idx, err := selectOne("Select launch template", rows)
	if err != nil {
		return "", err
	}
	return templates[idx].Name, nil
}

func (c *InstanceLaunchCmd) launch(system *System) error {
	templateName, err := c.template(system)
	if err != nil {
		return err
	}
	templateID, err := system.Backend.LaunchTemplateID(templateName)
	if err != nil {
		return err
	}
	name := c.Name
	if name == "" {
		suggested := suggestName(templateName)
		if c.Yes || !IsInteractive() {
			name = suggested
		} else {
			name, err = AskWithDefault("Instance name", suggested)
			if err != nil {
				return err
			}
		}
	}
	name, err = validate.InstanceName(name)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Launch %s from template %s (version %s)?", name, templateName, c.Version))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	inst, err := system.Backend.LaunchFromTemplate(&backend.LaunchInput{
		TemplateID: templateID,
		Version:    c.Version,
		Name:       name,
	})
	if err != nil {
		return err
	}
	system.Logger.Info("Launched %s (%s), type %s", name, inst.ID, inst.Type)
	if c.CreateSG {
		if err := c.attachGroup(system, inst); err != nil {
			return fmt.Errorf("instance %s was launched but the security group could not be attached: %w", inst.ID, err)
		}
	}
	if system.Opts.Config.Profile.InstanceName == "" {
		system.Logger.Info("Make it the default instance with 'remote config add %s'", name)
	}
	return nil
}

func (c *InstanceLaunchCmd) attachGroup(system *System, inst *backend.Instance) error {
	vpcID := inst.VpcID
	if vpcID == "" {
		full, err := system.Backend.Instance(inst.ID)
		if err != nil {
			return err
		}
		vpcID = full.VpcID
	}
	groupID, err := system.Backend.CreateInstanceSecurityGroup(inst.Name, vpcID)
	if err != nil {
		return err
	}
	if err := system.Backend.AttachSecurityGroup(inst.ID, groupID); err != nil {
		return err
	}
	system.Logger.Info("Attached security group %s%s (%s)", backend.SecurityGroupPrefix, inst.Name, groupID)
	return nil
}
