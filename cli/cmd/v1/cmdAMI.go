package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

type AMICreateCmd struct {
	ImageName       string `short:"n" long:"name" description:"Image name, defaults to ami-<instance>"`
	Description     string `short:"d" long:"description" description:"Image description"`
	Reboot          bool   `long:"reboot" description:"Let EC2 reboot the instance for a consistent filesystem"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMICreateCmd) Execute(args []string) error {
	cmd := []string{"ami", "create"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.create(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *AMICreateCmd) create(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	imageName := c.ImageName
	if imageName == "" {
		imageName = "ami-" + name
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Create image %s from %s?", imageName, instanceLabel(name, id)))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	imageID, err := system.Backend.CreateImage(id, imageName, c.Description, !c.Reboot)
	if err != nil {
		return err
	}
	system.Logger.Info("Image %s (%s) is being created", imageID, imageName)
	return nil
}

type AMIListCmd struct {
	listOutput
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMIListCmd) Execute(args []string) error {
	cmd := []string{"ami", "list"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *AMIListCmd) list(system *System) error {
	images, err := system.Backend.Images()
	if err != nil {
		return err
	}
	if len(images) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No images owned by this account")
		return nil
	}
	return c.render(&listing{
		Title:  "Amazon Machine Images",
		Header: table.Row{"ImageId", "Name", "State", "Created", "Description"},
		Value:  images,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, img := range images {
				rows = append(rows, table.Row{img.ID, img.Name, t.State(img.State), img.CreationDate, orDash(img.Description)})
			}
			return rows
		},
	})
}

type AMITemplatesCmd struct {
	Filter  string `short:"f" long:"filter" description:"Only templates whose name contains this text"`
	Details bool   `short:"d" long:"details" description:"Show the latest version of each template"`
	listOutput
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMITemplatesCmd) Execute(args []string) error {
	cmd := []string{"ami", "list-templates"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *AMITemplatesCmd) list(system *System) error {
	templates, err := system.Backend.LaunchTemplates(c.Filter)
	if err != nil {
		return err
	}
	if len(templates) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No launch templates found")
		return nil
	}
	if c.Details {
		for _, lt := range templates {
			if err := showTemplateVersion(system, lt.Name, "$Latest"); err != nil {
				system.Logger.Warn("Could not read the latest version of %s: %s", lt.Name, err)
			}
		}
		return nil
	}
	return c.render(&listing{
		Title:  "Launch Templates",
		Header: table.Row{"#", "LaunchTemplateId", "LaunchTemplateName", "Version"},
		Value:  templates,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for i, lt := range templates {
				rows = append(rows, table.Row{i + 1, lt.ID, lt.Name, lt.LatestVersion})
			}
			return rows
		},
	})
}

type templateNameArg struct {
	Template string `positional-arg-name:"TEMPLATE" description:"Launch template name" required:"yes"`
}

type AMITemplateVersionsCmd struct {
	listOutput
	templateNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMITemplateVersionsCmd) Execute(args []string) error {
	cmd := []string{"ami", "template-versions"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.versions(system), system, cmd, c, args)
}

func (c *AMITemplateVersionsCmd) versions(system *System) error {
	versions, err := system.Backend.LaunchTemplateVersions(c.Template)
	if err != nil {
		return err
	}
	if len(versions) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No versions found for %s", c.Template)
		return nil
	}
	return c.render(&listing{
		Title:  "Versions of " + c.Template,
		Header: table.Row{"Version", "Created", "Description", "Default"},
		Value:  versions,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, v := range versions {
				def := ""
				if v.IsDefault {
					def = "yes"
				}
				rows = append(rows, table.Row{v.Number, v.CreateTime.UTC().Format("2006-01-02 15:04"), orDash(v.Description), def})
			}
			return rows
		},
	})
}

type AMITemplateInfoCmd struct {
	Version         string `short:"V" long:"version" description:"Template version number, $Latest or $Default" default:"$Latest"`
	templateNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMITemplateInfoCmd) Execute(args []string) error {
	cmd := []string{"ami", "template-info"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(showTemplateVersion(system, c.Template, c.Version), system, cmd, c, args)
}

func checkTemplateVersion(v string) error {
	if v == "$Latest" || v == "$Default" {
		return nil
	}
	if n, err := strconv.Atoi(v); err != nil || n < 1 {
		return fmt.Errorf("version must be a positive number, $Latest or $Default, got %q", v)
	}
	return nil
}

func showTemplateVersion(system *System, name string, version string) error {
	if err := checkTemplateVersion(version); err != nil {
		return err
	}
	v, err := system.Backend.LaunchTemplateVersion(name, version)
	if err != nil {
		return err
	}
	return details(fmt.Sprintf("%s (version %d)", name, v.Number), func(t *printer.TableWriter) []printer.Field {
		fields := []printer.Field{
			{Name: "Instance Type", Value: orDash(v.InstanceType)},
			{Name: "AMI", Value: orDash(v.ImageID)},
			{Name: "Key Pair", Value: orDash(v.KeyName)},
			{Name: "Security Groups", Value: orDash(strings.Join(v.SecurityGroups, ", "))},
			{Name: "Subnets", Value: orDash(strings.Join(v.Subnets, ", "))},
			{Name: "Created", Value: v.CreateTime.UTC().Format("2006-01-02 15:04 UTC")},
			{Name: "Created By", Value: orDash(v.CreatedBy)},
			{Name: "Description", Value: orDash(v.Description)},
		}
		for _, bd := range v.BlockDevices {
			fields = append(fields, printer.Field{
				Name:  "Volume " + bd.DeviceName,
				Value: fmt.Sprintf("%d GiB %s", bd.SizeGiB, bd.VolumeType),
			})
		}
		return fields
	})
}

type AMICreateTemplateCmd struct {
	AMI             string `short:"a" long:"ami" description:"Image ID, asked for when not given"`
	InstanceType    string `short:"t" long:"instance-type" description:"Instance type" default:"t3.micro"`
	KeyName         string `short:"k" long:"key-name" description:"EC2 key pair name"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	templateNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *AMICreateTemplateCmd) Execute(args []string) error {
	cmd := []string{"ami", "create-template"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.create(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *AMICreateTemplateCmd) image(system *System) (string, error) {
	if c.AMI != "" {
		return validate.AMIID(c.AMI)
	}
	images, err := system.Backend.Images()
	if err != nil {
		return "", err
	}
	available := []*backend.Image{}
	for _, img := range images {
		if img.State == "available" {
			available = append(available, img)
		}
	}
	if len(available) == 0 {
		return "", errors.New("no available images; pass --ami or create one with 'remote ami create'")
	}
	rows := [][]string{}
	for _, img := range available {
		rows = append(rows, []string{img.ID, img.Name, img.CreationDate})
	}
	idx, err := selectOne("Select image", rows)
	if err != nil {
		return "", err
	}
	return available[idx].ID, nil
}

func (c *AMICreateTemplateCmd) create(system *System) error {
	instanceType, err := validate.InstanceType(c.InstanceType)
	if err != nil {
		return err
	}
	amiID, err := c.image(system)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Create launch template %s with %s on %s?", c.Template, amiID, instanceType))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	id, err := system.Backend.CreateLaunchTemplate(c.Template, amiID, instanceType, c.KeyName)
	if err != nil {
		return err
	}
	system.Logger.Info("Created launch template %s (%s)", c.Template, id)
	return nil
}
