package cmd

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/ivyleavedtoadflax/remote.py/pkg/backend"
	"github.com/ivyleavedtoadflax/remote.py/pkg/settings"
	"github.com/ivyleavedtoadflax/remote.py/pkg/tracking"
	"github.com/rglonek/logger"
	"github.com/stretchr/testify/require"
)

// fakeEC2 keeps a small in-memory fleet; unset methods panic through the embedded interface.
type fakeEC2 struct {
	backend.EC2API
	lock      sync.Mutex
	instances []types.Instance
	started   []string
	stopped   []string
	// onStart lets a test decide what a started instance looks like.
	onStart func(inst *types.Instance)
}

func (f *fakeEC2) add(id, name, state, dns, instanceType string) {
	f.instances = append(f.instances, types.Instance{
		InstanceId:    aws.String(id),
		InstanceType:  types.InstanceType(instanceType),
		State:         &types.InstanceState{Name: types.InstanceStateName(state)},
		PublicDnsName: aws.String(dns),
		LaunchTime:    aws.Time(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
		Tags:          []types.Tag{{Key: aws.String("Name"), Value: aws.String(name)}},
		SecurityGroups: []types.GroupIdentifier{
			{GroupId: aws.String("sg-1"), GroupName: aws.String("default")},
		},
	})
}

func instanceName(inst types.Instance) string {
	for _, t := range inst.Tags {
		if aws.ToString(t.Key) == "Name" {
			return aws.ToString(t.Value)
		}
	}
	return ""
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	match := []types.Instance{}
	for _, inst := range f.instances {
		if len(in.InstanceIds) > 0 && aws.ToString(inst.InstanceId) != in.InstanceIds[0] {
			continue
		}
		ok := true
		for _, filter := range in.Filters {
			switch aws.ToString(filter.Name) {
			case "tag:Name":
				ok = ok && instanceName(inst) == filter.Values[0]
			case "instance-state-name":
				state := string(inst.State.Name)
				found := false
				for _, v := range filter.Values {
					found = found || v == state
				}
				ok = ok && found
			}
		}
		if ok {
			match = append(match, inst)
		}
	}
	if len(in.InstanceIds) > 0 && len(match) == 0 {
		return nil, errors.New("InvalidInstanceID.NotFound")
	}
	return &ec2.DescribeInstancesOutput{Reservations: []types.Reservation{{Instances: match}}}, nil
}

func (f *fakeEC2) setState(id string, fn func(inst *types.Instance)) {
	for i := range f.instances {
		if aws.ToString(f.instances[i].InstanceId) == id {
			fn(&f.instances[i])
		}
	}
}

func (f *fakeEC2) StartInstances(_ context.Context, in *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.started = append(f.started, in.InstanceIds...)
	f.setState(in.InstanceIds[0], func(inst *types.Instance) {
		inst.State = &types.InstanceState{Name: types.InstanceStateNameRunning}
		inst.PublicDnsName = aws.String("ec2-1-2-3-4.compute.amazonaws.com")
		if f.onStart != nil {
			f.onStart(inst)
		}
	})
	return &ec2.StartInstancesOutput{}, nil
}

func (f *fakeEC2) StopInstances(_ context.Context, in *ec2.StopInstancesInput, _ ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.stopped = append(f.stopped, in.InstanceIds...)
	f.setState(in.InstanceIds[0], func(inst *types.Instance) {
		inst.State = &types.InstanceState{Name: types.InstanceStateNameStopping}
		inst.PublicDnsName = aws.String("")
	})
	return &ec2.StopInstancesOutput{}, nil
}

// fakePricing always fails, which the backend reports as an unknown price.
type fakePricing struct{}

func (f *fakePricing) GetProducts(_ context.Context, _ *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	return nil, errors.New("pricing unavailable")
}

// newTestSystem wires a System around fake clients, with prompts disabled
// and stdout captured.
func newTestSystem(t *testing.T, fake *fakeEC2) (*System, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("REMOTE_HOME", dir)
	log := logger.NewLogger()
	log.SetLogLevel(logger.ERROR)
	set, err := settings.MakeReader(true, nil, false)
	require.NoError(t, err)
	b := backend.NewWithClients(&backend.Config{
		Region:  "eu-west-1",
		WorkDir: dir,
		Log:     log,
	}, &backend.Clients{
		EC2:     fake,
		Pricing: &fakePricing{},
	})
	b.SetSleep(func(time.Duration) {})
	system := &System{
		Logger:   log,
		Opts:     &Commands{},
		Backend:  b,
		Settings: set,
		Tracking: tracking.New(dir),
		RootDir:  dir,
	}
	system.Opts.Config.Profile.SSHUser = "ubuntu"

	out := &bytes.Buffer{}
	origStdout, origInteractive, origSleep := stdout, interactive, sleep
	stdout = out
	interactive = func() bool { return false }
	sleep = func(time.Duration) {}
	t.Cleanup(func() {
		stdout, interactive, sleep = origStdout, origInteractive, origSleep
	})
	return system, out
}

// withAnswers makes prompts interactive and feeds them the given lines.
func withAnswers(t *testing.T, lines ...string) {
	t.Helper()
	origStdin, origInteractive := stdin, interactive
	stdin = bufio.NewReader(strings.NewReader(strings.Join(lines, "\n") + "\n"))
	interactive = func() bool { return true }
	t.Cleanup(func() {
		stdin, interactive = origStdin, origInteractive
	})
}
