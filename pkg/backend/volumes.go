package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/lithammer/shortuuid"
)

var rootDevices = []string{"/dev/sda1", "/dev/xvda", "/dev/nvme0n1"}

type Volume struct {
	ID               string
	Name             string
	SizeGiB          int
	Type             string
	Iops             int
	State            string
	AvailabilityZone string
	Device           string
	AttachmentState  string
	InstanceID       string
	Tags             map[string]string
}

func (v *Volume) IsRoot() bool {
	for _, d := range rootDevices {
		if v.Device == d {
			return true
		}
	}
	return strings.HasPrefix(v.Device, "/dev/xvda")
}

type Snapshot struct {
	ID          string
	VolumeID    string
	Name        string
	State       string
	Progress    string
	SizeGiB     int
	StartTime   time.Time
	Description string
}

func volumeFromEC2(vol types.Volume, instanceID string) *Volume {
	v := &Volume{
		ID:               aws.ToString(vol.VolumeId),
		SizeGiB:          int(aws.ToInt32(vol.Size)),
		Type:             string(vol.VolumeType),
		Iops:             int(aws.ToInt32(vol.Iops)),
		State:            string(vol.State),
		AvailabilityZone: aws.ToString(vol.AvailabilityZone),
		Tags:             make(map[string]string),
	}
	for _, t := range vol.Tags {
		v.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	v.Name = v.Tags["Name"]
	for _, a := range vol.Attachments {
		if instanceID != "" && aws.ToString(a.InstanceId) != instanceID {
			continue
		}
		v.Device = aws.ToString(a.Device)
		v.AttachmentState = string(a.State)
		v.InstanceID = aws.ToString(a.InstanceId)
		break
	}
	return v
}

// Volumes lists the EBS volumes attached to an instance, ordered by device name.
func (b *Backend) Volumes(instanceID string) ([]*Volume, error) {
	log := b.log.WithPrefix("Volumes: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	list := []*Volume{}
	paginator := ec2.NewDescribeVolumesPaginator(b.ec2, &ec2.DescribeVolumesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("attachment.instance-id"),
				Values: []string{instanceID},
			},
		},
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("EC2", "DescribeVolumes", err)
		}
		for _, vol := range out.Volumes {
			list = append(list, volumeFromEC2(vol, instanceID))
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Device < list[j].Device
	})
	return list, nil
}

// RootVolume finds the boot volume among the volumes attached to the instance.
func (b *Backend) RootVolume(instanceID string) (*Volume, error) {
	vols, err := b.Volumes(instanceID)
	if err != nil {
		return nil, err
	}
	for _, v := range vols {
		if v.IsRoot() {
			return v, nil
		}
	}
	return nil, &NotFoundError{Kind: "root volume of instance", ID: instanceID}
}

type ResizeResult struct {
	VolumeID          string
	OriginalSize      int
	TargetSize        int
	ModificationState string
}

// ResizeVolume grows a volume; EBS volumes cannot shrink, so newSize must exceed the current size.
func (b *Backend) ResizeVolume(vol *Volume, newSize int) (*ResizeResult, error) {
	log := b.log.WithPrefix("ResizeVolume: job=" + shortuuid.New() + " id=" + vol.ID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	if newSize == vol.SizeGiB {
		return nil, fmt.Errorf("volume %s is already %dGB", vol.ID, vol.SizeGiB)
	}
	if newSize < vol.SizeGiB {
		return nil, fmt.Errorf("new size (%dGB) must be greater than current size (%dGB), EBS volumes cannot be shrunk", newSize, vol.SizeGiB)
	}
	out, err := b.ec2.ModifyVolume(context.TODO(), &ec2.ModifyVolumeInput{
		VolumeId: aws.String(vol.ID),
		Size:     aws.Int32(int32(newSize)),
	})
	if err != nil {
		return nil, wrapErr("EC2", "ModifyVolume", err)
	}
	res := &ResizeResult{
		VolumeID:          vol.ID,
		OriginalSize:      vol.SizeGiB,
		TargetSize:        newSize,
		ModificationState: "unknown",
	}
	if m := out.VolumeModification; m != nil {
		res.ModificationState = string(m.ModificationState)
		if m.OriginalSize != nil {
			res.OriginalSize = int(*m.OriginalSize)
		}
		if m.TargetSize != nil {
			res.TargetSize = int(*m.TargetSize)
		}
	}
	return res, nil
}

func (b *Backend) CreateSnapshot(volumeID string, name string, description string) (string, error) {
	log := b.log.WithPrefix("CreateSnapshot: job=" + shortuuid.New() + " volume=" + volumeID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.ec2.CreateSnapshot(context.TODO(), &ec2.CreateSnapshotInput{
		VolumeId:    aws.String(volumeID),
		Description: aws.String(description),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeSnapshot,
				Tags: []types.Tag{
					{
						Key:   aws.String("Name"),
						Value: aws.String(name),
					},
				},
			},
		},
	})
	if err != nil {
		if IsAPIError(err, "InvalidVolume.NotFound") {
			return "", &NotFoundError{Kind: "volume", ID: volumeID}
		}
		return "", wrapErr("EC2", "CreateSnapshot", err)
	}
	return aws.ToString(out.SnapshotId), nil
}

// Snapshots lists the snapshots taken from any of the given volumes, newest first.
func (b *Backend) Snapshots(volumeIDs []string) ([]*Snapshot, error) {
	log := b.log.WithPrefix("Snapshots: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	list := []*Snapshot{}
	if len(volumeIDs) == 0 {
		return list, nil
	}
	paginator := ec2.NewDescribeSnapshotsPaginator(b.ec2, &ec2.DescribeSnapshotsInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("volume-id"),
				Values: volumeIDs,
			},
		},
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("EC2", "DescribeSnapshots", err)
		}
		for _, s := range out.Snapshots {
			snap := &Snapshot{
				ID:          aws.ToString(s.SnapshotId),
				VolumeID:    aws.ToString(s.VolumeId),
				State:       string(s.State),
				Progress:    aws.ToString(s.Progress),
				SizeGiB:     int(aws.ToInt32(s.VolumeSize)),
				StartTime:   aws.ToTime(s.StartTime),
				Description: aws.ToString(s.Description),
			}
			for _, t := range s.Tags {
				if aws.ToString(t.Key) == "Name" {
					snap.Name = aws.ToString(t.Value)
				}
			}
			list = append(list, snap)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime.After(list[j].StartTime)
	})
	return list, nil
}
