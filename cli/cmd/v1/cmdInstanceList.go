package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bestmethod/inslice"
	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/durations"
	"github.com/ivyleavedtoadflax/remote.py/pkg/tracking"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/jobqueue"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/shutdown"
	"github.com/jedib0t/go-pretty/v6/table"
)

type InstanceListCmd struct {
	Cost     bool `short:"c" long:"cost" description:"Add uptime, hourly price and estimated cost of the current session"`
	Lifetime bool `short:"L" long:"lifetime" description:"Add tracked lifetime hours and cost"`
	All      bool `short:"a" long:"all" description:"Include terminated instances"`
	listOutput
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

// instanceListItem is the structured form of one list row.
type instanceListItem struct {
	Instance      *backend.Instance       `json:"instance" yaml:"instance"`
	Uptime        string                  `json:"uptime,omitempty" yaml:"uptime,omitempty"`
	HourlyPrice   *float64                `json:"hourlyPrice,omitempty" yaml:"hourlyPrice,omitempty"`
	EstimatedCost *float64                `json:"estimatedCost,omitempty" yaml:"estimatedCost,omitempty"`
	Lifetime      *tracking.LifetimeStats `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
}

func (c *InstanceListCmd) Execute(args []string) error {
	cmd := []string{"instance", "list"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.list(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

// priceLookups bounds concurrent pricing API calls.
const priceLookups = 5

// instancePrices fetches the hourly price of every distinct type once.
func instancePrices(system *System, instances []*backend.Instance) map[string]backend.Price {
	types := []string{}
	for _, inst := range instances {
		if inst.Type != "" && !inslice.HasString(types, inst.Type) {
			types = append(types, inst.Type)
		}
	}
	region := system.Backend.Region()
	return jobqueue.Map(types, priceLookups, func(t string) backend.Price {
		return system.Backend.GetInstancePrice(t, region)
	})
}

func (c *InstanceListCmd) list(system *System) error {
	instances, err := system.Backend.Instances(c.All)
	if err != nil {
		return err
	}
	sort.Slice(instances, func(i, j int) bool {
		return instances[i].Name < instances[j].Name
	})
	prices := map[string]backend.Price{}
	if c.Cost || c.Lifetime {
		prices = instancePrices(system, instances)
	}
	tNow := now()
	items := []*instanceListItem{}
	fallback := false
	for _, inst := range instances {
		item := &instanceListItem{Instance: inst}
		if c.Cost {
			up := inst.Uptime(tNow)
			if inst.IsRunning() {
				item.Uptime = durations.FormatUptime(up)
			}
			if p := prices[inst.Type]; p.Known {
				hourly := p.Hourly
				item.HourlyPrice = &hourly
				if inst.IsRunning() {
					cost := hourly * up.Hours()
					item.EstimatedCost = &cost
				}
				fallback = fallback || p.UsedFallback
			}
		}
		if c.Lifetime {
			item.Lifetime, err = system.Tracking.Lifetime(inst.ID)
			if err != nil {
				system.Logger.Warn("Could not read usage tracking: %s", err)
			}
		}
		items = append(items, item)
	}
	header := table.Row{"Name", "InstanceId", "PublicDnsName", "Status", "Type", "Launch Time"}
	if c.Cost {
		header = append(header, "Uptime", "$/hr", "Est. Cost")
	}
	if c.Lifetime {
		header = append(header, "Total Hours", "Lifetime Cost")
		if !c.Cost {
			header = append(header, "$/hr")
		}
	}
	err = c.render(&listing{
		Title:  "EC2 Instances",
		Header: header,
		Value:  items,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, item := range items {
				rows = append(rows, c.row(t, item, prices))
			}
			return rows
		},
	})
	if err != nil {
		return err
	}
	if fallback && !strings.HasPrefix(c.Output, "json") && c.Output != printer.OutputYAML {
		fmt.Fprintln(stdout, "* price estimated from us-east-1 because the region has no pricing data")
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (c *InstanceListCmd) row(t *printer.TableWriter, item *instanceListItem, prices map[string]backend.Price) table.Row {
	inst := item.Instance
	launch := "-"
	if inst.IsRunning() && !inst.LaunchTime.IsZero() {
		launch = inst.LaunchTime.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	row := table.Row{orDash(inst.Name), inst.ID, orDash(inst.PublicDNS), t.State(inst.State), inst.Type, launch}
	price := prices[inst.Type]
	hourly := backend.FormatPrice(price.Hourly, price.Known)
	if price.Known && price.UsedFallback {
		hourly += "*"
	}
	if c.Cost {
		cost := "-"
		if item.EstimatedCost != nil {
			cost = backend.FormatPrice(*item.EstimatedCost, true)
		}
		row = append(row, orDash(item.Uptime), hourly, cost)
	}
	if c.Lifetime {
		hours, cost := "-", "-"
		if item.Lifetime != nil {
			hours = fmt.Sprintf("%.2f", item.Lifetime.TotalHours)
			cost = backend.FormatPrice(item.Lifetime.TotalCost, true)
		}
		row = append(row, hours, cost)
		if !c.Cost {
			row = append(row, hourly)
		}
	}
	return row
}

type InstanceStatusCmd struct {
	Watch           bool `short:"w" long:"watch" description:"Refresh the status until interrupted"`
	Interval        int  `short:"i" long:"interval" description:"Seconds between refreshes with --watch" default:"2"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceStatusCmd) Execute(args []string) error {
	cmd := []string{"instance", "status"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.status(system), system, cmd, c, args)
}

func (c *InstanceStatusCmd) status(system *System) error {
	if c.Interval < 1 {
		return fmt.Errorf("--interval must be at least 1 second, got %d", c.Interval)
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	if !c.Watch {
		return c.show(system, id)
	}
	for !shutdown.IsShuttingDown() {
		fmt.Fprint(stdout, "\033[H\033[2J")
		if err := c.show(system, id); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Watching %s every %ds, press Ctrl+C to stop\n", name, c.Interval)
		sleep(time.Duration(c.Interval) * time.Second)
	}
	return nil
}

func (c *InstanceStatusCmd) show(system *System, id string) error {
	inst, err := system.Backend.Instance(id)
	if err != nil {
		return err
	}
	return details("Instance "+inst.Name, func(t *printer.TableWriter) []printer.Field {
		return instanceFields(t, inst, now())
	})
}

func instanceFields(t *printer.TableWriter, inst *backend.Instance, at time.Time) []printer.Field {
	groups := []string{}
	for _, g := range inst.SecurityGroups {
		groups = append(groups, g.Name+" ("+g.ID+")")
	}
	launch := ""
	if !inst.LaunchTime.IsZero() {
		launch = inst.LaunchTime.UTC().Format("2006-01-02 15:04:05 UTC")
	}
	uptime := ""
	if inst.IsRunning() {
		uptime = durations.FormatUptime(inst.Uptime(at))
	}
	fields := []printer.Field{
		{Name: "Instance ID", Value: inst.ID},
		{Name: "Name", Value: inst.Name},
		{Name: "State", Value: t.State(inst.State)},
		{Name: "Type", Value: inst.Type},
		{Name: "Public IP", Value: inst.PublicIP},
		{Name: "Private IP", Value: inst.PrivateIP},
		{Name: "Public DNS", Value: inst.PublicDNS},
		{Name: "Key Pair", Value: inst.KeyName},
		{Name: "Security Groups", Value: strings.Join(groups, ", ")},
		{Name: "Launch Time", Value: launch},
		{Name: "Uptime", Value: uptime},
	}
	keys := []string{}
	for k := range inst.Tags {
		if k != "Name" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, printer.Field{Name: "Tag " + k, Value: inst.Tags[k]})
	}
	return fields
}
