package cmd

import (
	"fmt"
	"strings"

	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/utils/printer"
	"github.com/ivyleavedtoadflax/remote.py/pkg/validate"
	"github.com/jedib0t/go-pretty/v6/table"
)

// maxVolumeGiB is the largest gp2/gp3 volume EBS allows.
const maxVolumeGiB = 16384

type VolumeListCmd struct {
	listOutput
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *VolumeListCmd) Execute(args []string) error {
	cmd := []string{"volume", "list"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	return Error(c.list(system), system, cmd, c, args)
}

func (c *VolumeListCmd) list(system *System) error {
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	vols, err := system.Backend.Volumes(id)
	if err != nil {
		return err
	}
	if len(vols) == 0 && !printer.IsStructured(c.Output) {
		system.Logger.Warn("No volumes attached to %s", name)
		return nil
	}
	return c.render(&listing{
		Title:  "Volumes of " + name,
		Header: table.Row{"Device", "VolumeId", "Name", "Size (GiB)", "Type", "IOPS", "State", "Attachment", "AZ"},
		Value:  vols,
		Rows: func(t *printer.TableWriter) []table.Row {
			rows := []table.Row{}
			for _, v := range vols {
				device := v.Device
				if v.IsRoot() {
					device += " (root)"
				}
				iops := "-"
				if v.Iops > 0 {
					iops = fmt.Sprintf("%d", v.Iops)
				}
				rows = append(rows, table.Row{device, v.ID, orDash(v.Name), v.SizeGiB, v.Type, iops, t.State(v.State), v.AttachmentState, v.AvailabilityZone})
			}
			return rows
		},
	})
}

type VolumeResizeCmd struct {
	Size            int    `short:"s" long:"size" description:"New size in GiB" required:"yes"`
	Volume          string `short:"v" long:"volume" description:"Volume ID, defaults to the root volume"`
	Yes             bool   `short:"y" long:"yes" description:"Do not ask for confirmation"`
	instanceNameArg `positional-args:"true"`
	Help            HelpCmd `command:"help" subcommands-optional:"true" description:"Print help"`
}

func (c *VolumeResizeCmd) Execute(args []string) error {
	cmd := []string{"volume", "resize"}
	system, err := Initialize(&Init{InitBackend: true}, cmd, c)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Running %s", strings.Join(cmd, "."))
	err = c.resize(system)
	if err != nil {
		return Error(err, system, cmd, c, args)
	}
	system.Logger.Info("Done")
	return Error(nil, system, cmd, c, args)
}

func (c *VolumeResizeCmd) volume(system *System, id string) (*backend.Volume, error) {
	if c.Volume == "" {
		return system.Backend.RootVolume(id)
	}
	volID, err := validate.VolumeID(c.Volume)
	if err != nil {
		return nil, err
	}
	vols, err := system.Backend.Volumes(id)
	if err != nil {
		return nil, err
	}
	for _, v := range vols {
		if v.ID == volID {
			return v, nil
		}
	}
	return nil, &backend.NotFoundError{Kind: "attached volume", ID: volID}
}

func (c *VolumeResizeCmd) resize(system *System) error {
	if c.Size < 1 || c.Size > maxVolumeGiB {
		return fmt.Errorf("size must be between 1 and %d GiB, got %d", maxVolumeGiB, c.Size)
	}
	name, id, err := resolveInstance(system, c.Name)
	if err != nil {
		return err
	}
	vol, err := c.volume(system, id)
	if err != nil {
		return err
	}
	if c.Size <= vol.SizeGiB {
		return fmt.Errorf("new size (%dGiB) must be greater than the current size (%dGiB), EBS volumes cannot be shrunk", c.Size, vol.SizeGiB)
	}
	ok, err := confirmAction(c.Yes, fmt.Sprintf("Resize %s (%s) of %s from %dGiB to %dGiB?", vol.ID, vol.Device, name, vol.SizeGiB, c.Size))
	if err != nil {
		return err
	}
	if !ok {
		return errAborted
	}
	res, err := system.Backend.ResizeVolume(vol, c.Size)
	if err != nil {
		return err
	}
	system.Logger.Info("Volume %s is resizing from %dGiB to %dGiB (%s)", res.VolumeID, res.OriginalSize, res.TargetSize, res.ModificationState)
	fmt.Fprintln(stdout, "Once the modification is optimizing, grow the filesystem on the instance:")
	fmt.Fprintln(stdout, "  sudo growpart /dev/nvme0n1 1 && sudo resize2fs /dev/nvme0n1p1")
	fmt.Fprintln(stdout, "Device names differ between instance types; check them with lsblk first.")
	return nil
}
