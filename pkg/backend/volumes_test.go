package backend

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func attachedVolume(id string, device string, size int32) types.Volume {
	return types.Volume{
		VolumeId:   aws.String(id),
		Size:       aws.Int32(size),
		VolumeType: types.VolumeTypeGp3,
		State:      types.VolumeStateInUse,
		Attachments: []types.VolumeAttachment{
			{
				InstanceId: aws.String("i-0aaaaaaaaaaaaaaaa"),
				Device:     aws.String(device),
				State:      types.VolumeAttachmentStateAttached,
			},
		},
	}
}

func TestVolumeIsRoot(t *testing.T) {
	for _, d := range []string{"/dev/sda1", "/dev/xvda", "/dev/xvdal", "/dev/nvme0n1"} {
		assert.True(t, (&Volume{Device: d}).IsRoot(), d)
	}
	for _, d := range []string{"/dev/sdb", "/dev/xvdb", "/dev/nvme1n1", ""} {
		assert.False(t, (&Volume{Device: d}).IsRoot(), d)
	}
}

func TestRootVolume(t *testing.T) {
	vols := []types.Volume{
		attachedVolume("vol-0bbbbbbbbbbbbbbbb", "/dev/sdf", 100),
		attachedVolume("vol-0aaaaaaaaaaaaaaaa", "/dev/xvda", 8),
	}
	var filters []types.Filter
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeVolumes: func(in *ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error) {
			filters = in.Filters
			return &ec2.DescribeVolumesOutput{Volumes: vols}, nil
		},
	}})

	root, err := b.RootVolume("i-0aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "vol-0aaaaaaaaaaaaaaaa", root.ID)
	assert.Equal(t, 8, root.SizeGiB)
	assert.Equal(t, "attached", root.AttachmentState)
	require.Len(t, filters, 1)
	assert.Equal(t, "attachment.instance-id", aws.ToString(filters[0].Name))

	vols = vols[:1]
	_, err = b.RootVolume("i-0aaaaaaaaaaaaaaaa")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestResizeVolumeOnlyGrows(t *testing.T) {
	var modified []*ec2.ModifyVolumeInput
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		modifyVolume: func(in *ec2.ModifyVolumeInput) (*ec2.ModifyVolumeOutput, error) {
			modified = append(modified, in)
			return &ec2.ModifyVolumeOutput{VolumeModification: &types.VolumeModification{
				ModificationState: types.VolumeModificationStateModifying,
				OriginalSize:      aws.Int32(8),
				TargetSize:        in.Size,
			}}, nil
		},
	}})
	vol := &Volume{ID: "vol-0aaaaaaaaaaaaaaaa", SizeGiB: 8}

	_, err := b.ResizeVolume(vol, 8)
	require.Error(t, err)
	_, err = b.ResizeVolume(vol, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be shrunk")
	assert.Empty(t, modified)

	res, err := b.ResizeVolume(vol, 20)
	require.NoError(t, err)
	require.Len(t, modified, 1)
	assert.Equal(t, int32(20), aws.ToInt32(modified[0].Size))
	assert.Equal(t, 8, res.OriginalSize)
	assert.Equal(t, 20, res.TargetSize)
	assert.Equal(t, "modifying", res.ModificationState)
}
