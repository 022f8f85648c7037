package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/jedib0t/go-pretty/v6/table"
)

// recentSessions is how many sessions stats lists.
const recentSessions = 5

type InstanceStatsCmd struct {
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceStatsCmd) Execute(args []string) error {
	cmd := []string{"instance", "stats"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.stats(system), system, cmd, c, args)
}

func (c *InstanceStatsCmd) stats(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	tracked, err := system.Tracking.Instance(id)
	if err != nil {
		return err
	}
	if tracked == nil || len(tracked.Sessions) == 0 {
		system.Logger.Info("No usage tracked for %s yet; it is recorded when the instance is started or stopped with remote", name)
		return nil
	}
	lifetime, err := system.Tracking.Lifetime(id)
	if err != nil {
		return err
	}
	status := "stopped"
	if lifetime.Active {
		status = "running (session open)"
	}
	err = details("Usage of "+name, func(t *printer.TableWriter) []printer.Field {
		return []printer.Field{
			{Name: "Instance ID", Value: id},
			{Name: "Sessions", Value: fmt.Sprintf("%d", lifetime.SessionCount)},
			{Name: "Total Hours", Value: fmt.Sprintf("%.2f", lifetime.TotalHours)},
			{Name: "Total Cost", Value: backend.FormatPrice(lifetime.TotalCost, true)},
			{Name: "Tracking", Value: status},
		}
	})
	if err != nil {
		return err
	}
	sessions := tracked.Sessions
	if len(sessions) > recentSessions {
		sessions = sessions[len(sessions)-recentSessions:]
	}
	t, err := printer.GetTableWriter(printer.OutputTable, "default", nil, false, false)
	if err != nil {
		return err
	}
	rows := []table.Row{}
	for _, s := range sessions {
		stop, hours, cost := "active", "-", "-"
		if s.Stop != nil {
			stop = s.Stop.UTC().Format("2006-01-02 15:04")
			hours = fmt.Sprintf("%.2f", s.Hours)
			cost = backend.FormatPrice(s.Cost, s.Cost > 0)
		}
		rows = append(rows, table.Row{s.Start.UTC().Format("2006-01-02 15:04"), stop, hours, cost})
	}
	fmt.Fprintln(stdout, t.RenderTable(printer.String("Recent Sessions"), table.Row{"Start (UTC)", "Stop (UTC)", "Hours", "Cost"}, rows))
	return nil
}

type InstanceTrackingResetCmd struct {
	All             bool `short:"a" long:"all" description:"Clear tracking data of every instance"`
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *InstanceTrackingResetCmd) Execute(args []string) error {
	cmd := []string{"instance", "tracking-reset"}
	system, err := Initialize(&Init{InitBackend: c.Name != ""}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.reset(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *InstanceTrackingResetCmd) reset(system *System) error {
	if c.All == (c.Name != "") {
		return errors.New("pass either an instance name or --all")
	}
	if c.All {
		ok, err := confirmAction(c.Yes, "Clear usage tracking of all instances?")
		if err != nil {
			return err
		}
		if !ok {
			return errAborted
		}
		n, err := system.Tracking.ClearAll()
		if err != nil {
			return err
		}
		system.Logger.Info("Cleared tracking data of %d instance(s)", n)
		return nil
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Clear usage tracking of %s?", instanceLabel(name, id)))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	cleared, err := system.Tracking.ClearInstance(id)
	if err != nil {
		return err
	}
	if !cleared {
		system.Logger.Warn("No tracking data for %s", name)
		return nil
	}
	system.Logger.Info("Cleared tracking data of %s", name)
	return nil
}
