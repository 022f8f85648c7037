package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

type SnapshotCreateCmd struct {
	VolumeID    string  `short:"v" long:"volume-id" description:"Volume to snapshot" required:"yes"`
	SnapName    string  `short:"n" long:"name" description:"Snapshot name" required:"yes"`
	Description string  `short:"d" long:"description" description:"Snapshot description"`
	Yes         bool    `short:"y" long:"yes" description:"Do not ask for confirmation"`
	Help        HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SnapshotCreateCmd) Execute(args []string) error {
	cmd := []string{"snapshot", "create"}
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

func (c *SnapshotCreateCmd) create(system *System) error {
	volID, err := validate.VolumeID(c.VolumeID)
	if err != nil {
		return err
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Create snapshot %s of %s?", c.SnapName, volID))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	id, err := system.Backend.CreateSnapshot(volID, c.SnapName, c.Description)
	if err != nil {
		return err
	}
	system.Logger.Info("Snapshot %s of %s started", id, volID)
	return nil
}

type SnapshotListCmd struct {
	listOutput
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *SnapshotListCmd) Execute(args []string) error {
	cmd := []string{"snapshot", "list"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *SnapshotListCmd) list(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	vols, err := system.Backend.Volumes(id)
	if err != nil {
		return err
	}
	volIDs := []string{}
	for _, v := range vols {
		volIDs = append(volIDs, v.ID)
	}
	snaps, err := system.Backend.Snapshots(volIDs)
	if err != nil {
		return err
	}
	if len(snaps) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No snapshots of the volumes of %s", name)
		return nil
	}
	return c.render(&listing{
		Title:  "Snapshots of " + name,
		Header: table.Row{"SnapshotId", "VolumeId", "Name", "Size (GiB)", "State", "Progress", "Started"},
		Value:  snaps,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, s := range snaps {
				rows = append(rows, snapshotRow(t, s))
			}
			return rows
		},
	})
}

func snapshotRow(t *printer.TableWriter, s *backend.Snapshot) table.Row {
	return table.Row{s.ID, s.VolumeID, orDash(s.Name), s.SizeGiB, t.State(s.State), orDash(s.Progress), s.StartTime.UTC().Format(time.DateTime)}
}
