package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bestmethod/inslice"
	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

type SGCmd struct {
	AddIP    SGAddIPCmd    `command:"add-ip" subcommands-optional:"true" description:"Allow an IP on a port in every security group of an instance"`
	RemoveIP SGRemoveIPCmd `command:"remove-ip" subcommands-optional:"true" description:"Revoke an IP from every security group of an instance"`
	ListIPs  SGListIPsCmd  `command:"list-ips" subcommands-optional:"true" description:"List the IPs allowed on a port"`
	MyIP     SGMyIPCmd     `command:"my-ip" subcommands-optional:"true" description:"Print your public IP address"`
	Help     HelpCmd       `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SGCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

// ipFlags select the address and port of a rule.
type ipFlags struct {
	IP   string `short:"i" long:"ip" description:"IPv4 address or CIDR, defaults to your public IP"`
	Port int    `short:"P" long:"port" description:"TCP port" default:"22"`
}

func (f *ipFlags) cidr(system *System) (string, error) {
	if err := validate.Port(f.Port); err != nil {
		return "", err
	}
	ip := f.IP
	if ip == "" {
		var err error
		system.Logger.Info("Looking up your public IP address")
		ip, err = system.Backend.PublicIP()
		if err != nil {
			return "", err
		}
		system.Logger.Info("Your public IP is %s", ip)
	}
	return validate.CIDR(ip)
}

func instanceGroups(system *System, name string) (string, []backend.SecurityGroupRef, error) {
	_, id, err := resolveInstance(system, name)
	if err != nil {
		return "", nil, err
	}
	groups, err := system.Backend.InstanceSecurityGroups(id)
	if err != nil {
		return "", nil, err
	}
	return id, groups, nil
}

func groupNames(groups []backend.SecurityGroupRef) string {
	names := []string{}
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return strings.Join(names, ", ")
}

// reportWhitelist logs what WhitelistIP changed in each group.
func reportWhitelist(system *System, cidr string, port int, results []*backend.WhitelistResult) {
	changed := false
	for _, r := range results {
		if r.Cleared > 0 {
			system.Logger.Warn("Removed %d other IP rule(s) on port %d from %s", r.Cleared, port, r.GroupName)
			changed = true
		}
		if r.Added {
			system.Logger.Info("Added %s to %s on port %d", cidr, r.GroupName, port)
			changed = true
		} else if r.AlreadyPresent {
			system.Logger.Info("%s is already allowed in %s", cidr, r.GroupName)
		}
	}
	if !changed {
		system.Logger.Info("No changes made, %s is already allowed in every security group", cidr)
	}
}

type SGAddIPCmd struct {
	ipFlags
	Exclusive       bool `short:"e" long:"exclusive" description:"Remove every other IP on the port first"`
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SGAddIPCmd) Execute(args []string) error {
	cmd := []string{"sg", "add-ip"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
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

func (c *SGAddIPCmd) add(system *System) error {
	cidr, err := c.cidr(system)
	if err != nil {
		return err
	}
	id, groups, err := instanceGroups(system, c.Name)
	if err != nil {
		return err
	}
	system.Logger.Info("Security groups: %s", groupNames(groups))
	prompt := fmt.Sprintf("Allow %s on port %d?", cidr, c.Port)
	if c.Exclusive {
		prompt = fmt.Sprintf("Allow only %s on port %d, removing all other IPs?", cidr, c.Port)
	}
	ok, err := confirmAction(c.Yes, prompt)
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	results, err := system.Backend.WhitelistIP(id, cidr, c.Port, c.Exclusive)
	reportWhitelist(system, cidr, c.Port, results)
	return err
}

type SGRemoveIPCmd struct {
	ipFlags
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SGRemoveIPCmd) Execute(args []string) error {
	cmd := []string{"sg", "remove-ip"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.remove(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *SGRemoveIPCmd) remove(system *System) error {
	cidr, err := c.cidr(system)
	if err != nil {
		return err
	}
	_, groups, err := instanceGroups(system, c.Name)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Remove %s on port %d from %s?", cidr, c.Port, groupNames(groups)))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	removed := 0
	for _, g := range groups {
		sg, err := system.Backend.PortRules(g.ID, c.Port)
		if err != nil {
			return err
		}
		if !inslice.HasString(sg.CIDRs, cidr) {
			continue
		}
		if err := system.Backend.RemoveIP(g.ID, cidr, c.Port); err != nil {
			return err
		}
		system.Logger.Info("Removed %s from %s on port %d", cidr, g.Name, c.Port)
		removed++
	}
	if removed == 0 {
		system.Logger.Warn("%s was not found in any security group", cidr)
		return nil
	}
	system.Logger.Info("Removed %s from %d security group(s)", cidr, removed)
	return nil
}

type SGListIPsCmd struct {
	RulePort int `short:"P" long:"port" description:"TCP port" default:"22"`
	listOutput
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SGListIPsCmd) Execute(args []string) error {
	cmd := []string{"sg", "list-ips"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *SGListIPsCmd) list(system *System) error {
	if err := validate.Port(c.RulePort); err != nil {
		return err
	}
	_, groups, err := instanceGroups(system, c.Name)
	if err != nil {
		return err
	}
	rules := []*backend.SecurityGroup{}
	count := 0
	for _, g := range groups {
		sg, err := system.Backend.PortRules(g.ID, c.RulePort)
		if err != nil {
			return err
		}
		rules = append(rules, sg)
		count += len(sg.CIDRs)
	}
	if count == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No IP rules for port %d", c.RulePort)
		return nil
	}
	return c.render(&listing{
		Title:  fmt.Sprintf("IP Rules for Port %d", c.RulePort),
		Header: table.Row{"Security Group", "Group ID", "CIDR"},
		Value:  rules,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, sg := range rules {
				for _, cidr := range sg.CIDRs {
					rows = append(rows, table.Row{sg.Name, sg.ID, cidr})
				}
			}
			return rows
		},
	})
}

type SGMyIPCmd struct {
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SGMyIPCmd) Execute(args []string) error {
	cmd := []string{"sg", "my-ip"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	ip, err := system.Backend.PublicIP()
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	if ip == "" {
		return Error(errors.New("public IP lookup returned nothing"), system, cmd, c, args)
	}
	fmt.Fprintln(stdout, ip)
	return Error(nil, system, cmd, c, args)
}
