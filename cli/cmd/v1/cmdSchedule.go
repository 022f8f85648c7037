package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

const defaultScheduleDays = "mon-fri"

type ScheduleCmd struct {
	Wake        ScheduleWakeCmd        `command:"wake" subcommands-optional:"true" description:"Start an instance on a schedule"`
	Sleep       ScheduleSleepCmd       `command:"sleep" subcommands-optional:"true" description:"Stop an instance on a schedule"`
	Status      ScheduleStatusCmd      `command:"status" subcommands-optional:"true" description:"Show the schedules of an instance"`
	Clear       ScheduleClearCmd       `command:"clear" subcommands-optional:"true" description:"Remove the schedules of an instance"`
	List        ScheduleListCmd        `command:"list" subcommands-optional:"true" description:"List every schedule created by remote" alias:"ls"`
	CleanupRole ScheduleCleanupRoleCmd `command:"cleanup-role" subcommands-optional:"true" description:"Delete the scheduler IAM role once no schedules remain"`
	Help        HelpCmd                `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleCmd) Execute(args []string) error {
	c.Help.Execute(args)
	return nil
}

// localZone names the IANA zone of this machine, or "" when it cannot tell.
var localZone = func() string {
	if tz := os.Getenv("TZ"); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := time.Local.String(); name != "Local" && name != "" {
		return name
	}
	target, err := os.Readlink("/etc/localtime")
	if err != nil {
		return ""
	}
	if i := strings.Index(target, "zoneinfo/"); i >= 0 {
		return target[i+len("zoneinfo/"):]
	}
	return ""
}

// scheduleTimezone picks the flag, then the scheduler_timezone preference,
// then the local zone, then UTC.
func scheduleTimezone(system *System, flagValue string) (string, *time.Location, error) {
	for _, tz := range []string{flagValue, system.Opts.Config.Profile.SchedulerTimezone} {
		if tz == "" {
			continue
		}
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return "", nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
		}
		return tz, loc, nil
	}
	if tz := localZone(); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return tz, loc, nil
		}
	}
	return "UTC", time.UTC, nil
}

type scheduleFlags struct {
	Time            string `short:"t" long:"time" description:"Time of day, HH:MM in 24-hour format" required:"yes"`
	At              string `short:"a" long:"at" description:"Run once on this date: today, tomorrow, a weekday or YYYY-MM-DD"`
	Days            string `short:"d" long:"days" description:"Run on these days, e.g. mon-fri or mon,wed,fri (default mon-fri)"`
	Timezone        string `short:"z" long:"timezone" description:"IANA timezone, e.g. Europe/London"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
}

// plannedSchedule is what put hands to the scheduler.
type plannedSchedule struct {
	Expression string
	Timezone   string
	Summary    string
}

// plan validates the flags and builds the schedule expression.
func (c *scheduleFlags) plan(system *System) (*plannedSchedule, error) {
	if c.At != "" && c.Days != "" {
		return nil, errors.New("--at and --days cannot be combined; use --at for a one-off and --days for a recurring schedule")
	}
	hour, minute, err := validate.ScheduleTime(c.Time)
	if err != nil {
		return nil, err
	}
	tz, loc, err := scheduleTimezone(system, c.Timezone)
	if err != nil {
		return nil, err
	}
	if c.At != "" {
		date, err := validate.ScheduleDate(c.At, now().In(loc))
		if err != nil {
			return nil, err
		}
		return &plannedSchedule{
			Expression: backend.AtExpression(date, hour, minute),
			Timezone:   tz,
			Summary:    fmt.Sprintf("once at %02d:%02d on %s", hour, minute, date.Format("2006-01-02")),
		}, nil
	}
	daySpec := c.Days
	if daySpec == "" {
		daySpec = defaultScheduleDays
	}
	days, err := validate.ScheduleDays(daySpec)
	if err != nil {
		return nil, err
	}
	return &plannedSchedule{
		Expression: backend.CronExpression(hour, minute, days),
		Timezone:   tz,
		Summary:    fmt.Sprintf("at %02d:%02d on %s (%s)", hour, minute, strings.Join(days, ","), tz),
	}, nil
}

func (c *scheduleFlags) put(system *System, action backend.ScheduleAction) error {
	p, err := c.plan(system)
	if err != nil {
		return err
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Schedule %s to %s %s?", instanceLabel(name, id), action, p.Summary))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	err = system.Backend.PutSchedule(action, id, p.Expression, p.Timezone, system.Settings.RolePropagationPoll())
	if err != nil {
		return err
	}
	system.Logger.Info("Scheduled %s to %s %s", name, action, p.Summary)
	return nil
}

type ScheduleWakeCmd struct {
	scheduleFlags
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleWakeCmd) Execute(args []string) error {
	cmd := []string{"schedule", "wake"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.put(system, backend.ScheduleWake)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type ScheduleSleepCmd struct {
	scheduleFlags
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleSleepCmd) Execute(args []string) error {
	cmd := []string{"schedule", "sleep"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.put(system, backend.ScheduleSleep)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

type ScheduleStatusCmd struct {
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleStatusCmd) Execute(args []string) error {
	cmd := []string{"schedule", "status"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.status(system), system, cmd, c, args)
}

// scheduleLine renders "HH:MM on DAYS (tz) [STATE]".
func scheduleLine(s *backend.Schedule) string {
	tz := s.Timezone
	if tz == "" {
		tz = "UTC"
	}
	state := s.State
	if state == "" {
		state = "UNKNOWN"
	}
	return fmt.Sprintf("%s (%s) [%s]", backend.DescribeExpression(s.Expression), tz, state)
}

func (c *ScheduleStatusCmd) status(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	schedules, err := system.Backend.Schedules(id)
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		system.Logger.Warn("No schedules configured for %s", name)
		return nil
	}
	fmt.Fprintf(stdout, "Schedules of %s:\n", instanceLabel(name, id))
	if s := schedules[backend.ScheduleWake]; s != nil {
		fmt.Fprintf(stdout, "  Wake:  %s\n", scheduleLine(s))
	}
	if s := schedules[backend.ScheduleSleep]; s != nil {
		fmt.Fprintf(stdout, "  Sleep: %s\n", scheduleLine(s))
	}
	return nil
}

type ScheduleClearCmd struct {
	Wake            bool `long:"wake" description:"Only clear the wake schedule"`
	Sleep           bool `long:"sleep" description:"Only clear the sleep schedule"`
	Yes             bool `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleClearCmd) Execute(args []string) error {
	cmd := []string{"schedule", "clear"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.clear(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ScheduleClearCmd) actions() ([]backend.ScheduleAction, error) {
	switch {
	case c.Wake && c.Sleep:
		return nil, errors.New("pass either --wake or --sleep, or neither to clear both")
	case c.Wake:
		return []backend.ScheduleAction{backend.ScheduleWake}, nil
	case c.Sleep:
		return []backend.ScheduleAction{backend.ScheduleSleep}, nil
	}
	return backend.ScheduleActions, nil
}

func (c *ScheduleClearCmd) clear(system *System) error {
	actions, err := c.actions()
	if err != nil {
		return err
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	existing, err := system.Backend.Schedules(id)
	if err != nil {
		return err
	}
	present := []backend.ScheduleAction{}
	for _, a := range actions {
		if existing[a] != nil {
			present = append(present, a)
		}
	}
	if len(present) == 0 {
		system.Logger.Warn("No matching schedules configured for %s", name)
		return nil
	}
	labels := []string{}
	for _, a := range present {
		labels = append(labels, string(a))
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Clear the %s schedule(s) of %s?", strings.Join(labels, " and "), name))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	cleared := []string{}
	for _, a := range present {
		deleted, err := system.Backend.DeleteSchedule(a, id)
		if err != nil {
			return err
		}
		if deleted {
			cleared = append(cleared, string(a))
		}
	}
	if len(cleared) == 0 {
		system.Logger.Warn("No schedules were deleted")
		return nil
	}
	system.Logger.Info("Cleared %s schedule(s) of %s", strings.Join(cleared, ", "), name)
	return nil
}

type ScheduleListCmd struct {
	listOutput
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleListCmd) Execute(args []string) error {
	cmd := []string{"schedule", "list"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *ScheduleListCmd) list(system *System) error {
	schedules, err := system.Backend.ListAllSchedules()
	if err != nil {
		return err
	}
	if len(schedules) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No schedules found")
		return nil
	}
	return c.render(&listing{
		Title:  fmt.Sprintf("Schedules (%d)", len(schedules)),
		Header: table.Row{"Name", "Action", "InstanceId", "State"},
		Value:  schedules,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, s := range schedules {
				rows = append(rows, table.Row{s.Name, orDash(string(s.Action)), orDash(s.InstanceID), t.State(s.State)})
			}
			return rows
		},
	})
}

type ScheduleCleanupRoleCmd struct {
	Yes  bool    `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Help HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *ScheduleCleanupRoleCmd) Execute(args []string) error {
	cmd := []string{"schedule", "cleanup-role"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.cleanup(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *ScheduleCleanupRoleCmd) cleanup(system *System) error {
	schedules, err := system.Backend.ListAllSchedules()
	if err != nil {
		return err
	}
	if len(schedules) > 0 {
		return fmt.Errorf("%d schedule(s) still use %s; remove them with 'remote schedule clear' first", len(schedules), backend.SchedulerRoleName)
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Delete the IAM role %s?", backend.SchedulerRoleName))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	deleted, err := system.Backend.DeleteSchedulerRole()
	if err != nil {
		return err
	}
	if !deleted {
		system.Logger.Warn("Role %s does not exist", backend.SchedulerRoleName)
		return nil
	}
	system.Logger.Info("Deleted IAM role %s", backend.SchedulerRoleName)
	return nil
}
