package backend

import (
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reservation(insts ...types.Instance) *ec2.DescribeInstancesOutput {
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{{Instances: insts}},
	}
}

func ec2Instance(id, name string, state types.InstanceStateName, dns string) types.Instance {
	return types.Instance{
		InstanceId:    aws.String(id),
		InstanceType:  types.InstanceTypeT3Micro,
		State:         &types.InstanceState{Name: state},
		PublicDnsName: aws.String(dns),
		Tags:          []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
		SecurityGroups: []types.GroupIdentifier{
			{GroupId: aws.String("sg-1"), GroupName: aws.String("default")},
		},
	}
}

func TestInstanceIDByName(t *testing.T) {
	var found []types.Instance
	var filters []types.Filter
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			filters = in.Filters
			return reservation(found...), nil
		},
	}})

	_, err := b.InstanceIDByName("dev")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInstanceNotFound))
	require.Len(t, filters, 2)
	assert.Equal(t, "tag:Name", aws.ToString(filters[0].Name))
	assert.ElementsMatch(t, []string{"pending", "running", "stopping", "stopped"}, filters[1].Values)

	found = []types.Instance{ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameRunning, "")}
	id, err := b.InstanceIDByName("dev")
	require.NoError(t, err)
	assert.Equal(t, "i-0aaaaaaaaaaaaaaaa", id)

	found = append(found, ec2Instance("i-0bbbbbbbbbbbbbbbb", "dev", types.InstanceStateNameStopped, ""))
	_, err = b.InstanceIDByName("dev")
	var multi *MultipleInstancesError
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, []string{"i-0aaaaaaaaaaaaaaaa", "i-0bbbbbbbbbbbbbbbb"}, multi.IDs)
}

func TestInstanceMapsTags(t *testing.T) {
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			inst := ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameRunning, "ec2-1.compute.amazonaws.com")
			inst.Tags = append(inst.Tags, types.Tag{Key: aws.String("terraform-workspace"), Value: aws.String("x")})
			return reservation(inst), nil
		},
	}})
	inst, err := b.Instance("i-0aaaaaaaaaaaaaaaa")
	require.NoError(t, err)
	assert.Equal(t, "dev", inst.Name)
	assert.Equal(t, "t3.micro", inst.Type)
	assert.True(t, inst.IsRunning())
	assert.True(t, inst.TerraformManaged())
	require.Len(t, inst.SecurityGroups, 1)
	assert.Equal(t, "sg-1", inst.SecurityGroups[0].ID)
}

func TestInstanceNotFound(t *testing.T) {
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return nil, apiErr("InvalidInstanceID.NotFound")
		},
	}})
	_, err := b.InstanceDNS("i-0aaaaaaaaaaaaaaaa")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestWaitRunningWithDNS(t *testing.T) {
	calls := 0
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			calls++
			switch calls {
			case 1:
				return nil, apiErr("InvalidInstanceID.NotFound")
			case 2:
				return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNamePending, "")), nil
			case 3:
				return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameRunning, "")), nil
			}
			return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameRunning, "ec2-1.compute.amazonaws.com")), nil
		},
	}})
	inst, err := b.WaitRunningWithDNS("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 12, Interval: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "ec2-1.compute.amazonaws.com", inst.PublicDNS)
	assert.Equal(t, 4, calls)
}

func TestWaitRunningWithDNSTimeout(t *testing.T) {
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNamePending, "")), nil
		},
	}})
	_, err := b.WaitRunningWithDNS("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 3, Interval: time.Second})
	require.Error(t, err)
	assert.True(t, poll.IsTimeout(err))
}

func TestWaitRunningWithDNSTerminated(t *testing.T) {
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameTerminated, "")), nil
		},
	}})
	_, err := b.WaitRunningWithDNS("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 10, Interval: time.Second})
	require.Error(t, err)
	assert.True(t, poll.IsCheckError(err))
	assert.True(t, IsNotFound(err))
}

func TestWaitRunningWithDNSAPIFailure(t *testing.T) {
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return nil, apiErr("UnauthorizedOperation")
		},
	}})
	_, err := b.WaitRunningWithDNS("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 10, Interval: time.Second})
	require.Error(t, err)
	assert.True(t, poll.IsCheckError(err))
	assert.Equal(t, "UnauthorizedOperation", APIErrorCode(err))
}

func TestWaitRunningWithDNSMalformedFailsAtOnce(t *testing.T) {
	calls := 0
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			calls++
			return nil, apiErr("InvalidInstanceID.Malformed")
		},
	}})
	_, err := b.WaitRunningWithDNS("i-bad", poll.Config{MaxAttempts: 12, Interval: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, poll.IsCheckError(err))
	assert.False(t, poll.IsTimeout(err))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, 1, calls)
}

func TestWaitRunningWithDNSGoneAfterGrace(t *testing.T) {
	calls := 0
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			calls++
			return nil, apiErr("InvalidInstanceID.NotFound")
		},
	}})
	_, err := b.WaitRunningWithDNS("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 12, Interval: 5 * time.Second})
	require.Error(t, err)
	assert.True(t, poll.IsCheckError(err))
	assert.True(t, IsNotFound(err))
	assert.Equal(t, notFoundGrace+1, calls)
}

func TestEnsureRunningStartsStoppedInstance(t *testing.T) {
	state := types.InstanceStateNameStopped
	starts := 0
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			return reservation(ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", state, "")), nil
		},
		startInstances: func(in *ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error) {
			starts++
			if starts == 2 {
				state = types.InstanceStateNameRunning
			}
			return &ec2.StartInstancesOutput{}, apiErr("IncorrectInstanceState")
		},
	}})
	require.NoError(t, b.EnsureRunning("i-0aaaaaaaaaaaaaaaa", poll.Config{MaxAttempts: 5, Interval: 10 * time.Second}))
	assert.Equal(t, 2, starts)
}

func TestChangeInstanceTypeAndWait(t *testing.T) {
	current := types.InstanceTypeT3Micro
	var modified *ec2.ModifyInstanceAttributeInput
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		describeInstances: func(in *ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error) {
			inst := ec2Instance("i-0aaaaaaaaaaaaaaaa", "dev", types.InstanceStateNameStopped, "")
			inst.InstanceType = current
			return reservation(inst), nil
		},
		modifyInstanceAttr: func(in *ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error) {
			modified = in
			current = types.InstanceType(aws.ToString(in.InstanceType.Value))
			return &ec2.ModifyInstanceAttributeOutput{}, nil
		},
	}})
	require.NoError(t, b.ChangeInstanceType("i-0aaaaaaaaaaaaaaaa", "t3.large"))
	require.NotNil(t, modified)
	assert.Equal(t, "t3.large", aws.ToString(modified.InstanceType.Value))
	require.NoError(t, b.WaitInstanceType("i-0aaaaaaaaaaaaaaaa", "t3.large", poll.Config{MaxAttempts: 5, Interval: 5 * time.Second}))
}

func TestLaunchFromTemplate(t *testing.T) {
	var run *ec2.RunInstancesInput
	b := newTestBackend(t, &Clients{EC2: &fakeEC2{
		runInstances: func(in *ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error) {
			run = in
			return &ec2.RunInstancesOutput{Instances: []types.Instance{
				{InstanceId: aws.String("i-0ccccccccccccccccc"), InstanceType: types.InstanceTypeT3Small},
			}}, nil
		},
	}})
	inst, err := b.LaunchFromTemplate(&LaunchInput{TemplateID: "lt-0123", Name: "dev-abc123"})
	require.NoError(t, err)
	assert.Equal(t, "dev-abc123", inst.Name)
	assert.Equal(t, "$Latest", aws.ToString(run.LaunchTemplate.Version))
	assert.EqualValues(t, 1, aws.ToInt32(run.MinCount))
	assert.NotEmpty(t, aws.ToString(run.ClientToken))
	assert.Equal(t, "dev-abc123", aws.ToString(run.TagSpecifications[0].Tags[0].Value))
}

func TestUptime(t *testing.T) {
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	i := &Instance{State: StateRunning, LaunchTime: now.Add(-90 * time.Minute)}
	assert.Equal(t, 90*time.Minute, i.Uptime(now))
	i.State = StateStopped
	assert.Zero(t, i.Uptime(now))
}
