package backend

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/google/uuid"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/lithammer/shortuuid"
)

const (
	StatePending      = "pending"
	StateRunning      = "running"
	StateStopping     = "stopping"
	StateStopped      = "stopped"
	StateShuttingDown = "shutting-down"
	StateTerminated   = "terminated"
)

const (
	codeInstanceNotFound  = "InvalidInstanceID.NotFound"
	codeInstanceMalformed = "InvalidInstanceID.Malformed"
)

// notFoundGrace is how many checks may miss a just-started instance.
const notFoundGrace = 2

var liveStates = []string{StatePending, StateRunning, StateStopping, StateStopped}

type SecurityGroupRef struct {
	ID   string
	Name string
}

type Instance struct {
	ID             string
	Name           string
	State          string
	Type           string
	PublicDNS      string
	PublicIP       string
	PrivateIP      string
	KeyName        string
	VpcID          string
	LaunchTime     time.Time
	SecurityGroups []SecurityGroupRef
	Tags           map[string]string
}

func (i *Instance) IsRunning() bool {
	return i.State == StateRunning
}

// Uptime is the time since launch for a running instance, zero otherwise.
func (i *Instance) Uptime(now time.Time) time.Duration {
	if !i.IsRunning() || i.LaunchTime.IsZero() {
		return 0
	}
	return now.Sub(i.LaunchTime)
}

// TerraformManaged reports whether the instance carries tags left by terraform.
func (i *Instance) TerraformManaged() bool {
	for k, v := range i.Tags {
		lk := strings.ToLower(k)
		if strings.Contains(lk, "terraform") || (lk == "managedby" && strings.EqualFold(v, "terraform")) {
			return true
		}
	}
	return false
}

func instanceFromEC2(inst types.Instance) *Instance {
	i := &Instance{
		ID:        aws.ToString(inst.InstanceId),
		Type:      string(inst.InstanceType),
		PublicDNS: aws.ToString(inst.PublicDnsName),
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
		KeyName:   aws.ToString(inst.KeyName),
		VpcID:     aws.ToString(inst.VpcId),
		Tags:      make(map[string]string),
	}
	if inst.State != nil {
		i.State = string(inst.State.Name)
	}
	if inst.LaunchTime != nil {
		i.LaunchTime = *inst.LaunchTime
	}
	for _, t := range inst.Tags {
		i.Tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	i.Name = i.Tags["Name"]
	for _, sg := range inst.SecurityGroups {
		i.SecurityGroups = append(i.SecurityGroups, SecurityGroupRef{ID: aws.ToString(sg.GroupId), Name: aws.ToString(sg.GroupName)})
	}
	return i
}

// InstanceIDByName resolves a Name tag to the ID of the single live instance carrying it.
func (b *Backend) InstanceIDByName(name string) (string, error) {
	log := b.log.WithPrefix("InstanceIDByName: job=" + shortuuid.New() + " name=" + name + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.ec2.DescribeInstances(context.TODO(), &ec2.DescribeInstancesInput{
		Filters: []types.Filter{
			{
				Name:   aws.String("tag:Name"),
				Values: []string{name},
			}, {
				Name:   aws.String("instance-state-name"),
				Values: liveStates,
			},
		},
	})
	if err != nil {
		return "", wrapErr("EC2", "DescribeInstances", err)
	}
	ids := []string{}
	for _, r := range out.Reservations {
		for _, inst := range r.Instances {
			ids = append(ids, aws.ToString(inst.InstanceId))
		}
	}
	switch len(ids) {
	case 0:
		return "", &InstanceNotFoundError{Name: name}
	case 1:
		log.Detail("resolved to %s", ids[0])
		return ids[0], nil
	default:
		sort.Strings(ids)
		return "", &MultipleInstancesError{Name: name, IDs: ids}
	}
}

// Instances lists all instances in the region, sorted by name.
func (b *Backend) Instances(includeTerminated bool) ([]*Instance, error) {
	log := b.log.WithPrefix("Instances: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	input := &ec2.DescribeInstancesInput{}
	if !includeTerminated {
		input.Filters = []types.Filter{
			{
				Name:   aws.String("instance-state-name"),
				Values: []string{StatePending, StateRunning, StateShuttingDown, StateStopping, StateStopped},
			},
		}
	}
	list := []*Instance{}
	paginator := ec2.NewDescribeInstancesPaginator(b.ec2, input)
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("EC2", "DescribeInstances", err)
		}
		for _, r := range out.Reservations {
			for _, inst := range r.Instances {
				list = append(list, instanceFromEC2(inst))
			}
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Name == list[j].Name {
			return list[i].ID < list[j].ID
		}
		return list[i].Name < list[j].Name
	})
	log.Detail("found %d instances", len(list))
	return list, nil
}

func (b *Backend) Instance(instanceID string) (*Instance, error) {
	out, err := b.ec2.DescribeInstances(context.TODO(), &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		if code := APIErrorCode(err); code == codeInstanceNotFound || code == codeInstanceMalformed {
			return nil, &NotFoundError{Kind: "instance", ID: instanceID, Code: code}
		}
		return nil, wrapErr("EC2", "DescribeInstances", err)
	}
	for _, r := range out.Reservations {
		if len(r.Instances) > 0 {
			return instanceFromEC2(r.Instances[0]), nil
		}
	}
	return nil, &NotFoundError{Kind: "instance", ID: instanceID}
}

func (b *Backend) InstanceState(instanceID string) (string, error) {
	inst, err := b.Instance(instanceID)
	if err != nil {
		return "", err
	}
	return inst.State, nil
}

func (b *Backend) IsRunning(instanceID string) (bool, error) {
	state, err := b.InstanceState(instanceID)
	if err != nil {
		return false, err
	}
	return state == StateRunning, nil
}

// InstanceDNS returns the public DNS name, which is empty while the instance is stopped.
func (b *Backend) InstanceDNS(instanceID string) (string, error) {
	inst, err := b.Instance(instanceID)
	if err != nil {
		return "", err
	}
	return inst.PublicDNS, nil
}

func (b *Backend) StartInstance(instanceID string) error {
	log := b.log.WithPrefix("StartInstance: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.StartInstances(context.TODO(), &ec2.StartInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return wrapErr("EC2", "StartInstances", err)
}

func (b *Backend) StopInstance(instanceID string) error {
	log := b.log.WithPrefix("StopInstance: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.StopInstances(context.TODO(), &ec2.StopInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return wrapErr("EC2", "StopInstances", err)
}

func (b *Backend) TerminateInstance(instanceID string) error {
	log := b.log.WithPrefix("TerminateInstance: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.TerminateInstances(context.TODO(), &ec2.TerminateInstancesInput{
		InstanceIds: []string{instanceID},
	})
	return wrapErr("EC2", "TerminateInstances", err)
}

// ChangeInstanceType modifies the type of a stopped instance.
func (b *Backend) ChangeInstanceType(instanceID string, instanceType string) error {
	log := b.log.WithPrefix("ChangeInstanceType: job=" + shortuuid.New() + " id=" + instanceID + " type=" + instanceType + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.ec2.ModifyInstanceAttribute(context.TODO(), &ec2.ModifyInstanceAttributeInput{
		InstanceId: aws.String(instanceID),
		InstanceType: &types.AttributeValue{
			Value: aws.String(instanceType),
		},
	})
	return wrapErr("EC2", "ModifyInstanceAttribute", err)
}

func (b *Backend) pollConfig(cfg poll.Config) poll.Config {
	if cfg.Sleep == nil {
		cfg.Sleep = b.sleep
	}
	return cfg
}

// WaitRunningWithDNS polls until the instance is running and has a public DNS name.
// InvalidInstanceID.NotFound is pending for the first notFoundGrace checks
// after a start, then fails the wait. A malformed ID or a terminated instance
// fails it immediately.
func (b *Backend) WaitRunningWithDNS(instanceID string, cfg poll.Config) (*Instance, error) {
	log := b.log.WithPrefix("WaitRunningWithDNS: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	notFound := 0
	return poll.Poll(func() poll.Outcome[*Instance] {
		inst, err := b.Instance(instanceID)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) && nf.Code != codeInstanceMalformed {
				notFound++
				if notFound <= notFoundGrace {
					log.Detail("not visible yet (%d/%d)", notFound, notFoundGrace)
					return poll.Pending[*Instance]()
				}
			}
			return poll.Failure[*Instance](err)
		}
		log.Detail("state=%s dns=%s", inst.State, inst.PublicDNS)
		switch inst.State {
		case StateRunning:
			if inst.PublicDNS != "" {
				return poll.Success(inst)
			}
		case StateShuttingDown, StateTerminated:
			return poll.Failure[*Instance](&NotFoundError{Kind: "running instance", ID: instanceID})
		}
		return poll.Pending[*Instance]()
	}, b.pollConfig(cfg))
}

// EnsureRunning starts the instance if needed, re-issuing the start on every pending attempt.
func (b *Backend) EnsureRunning(instanceID string, cfg poll.Config) error {
	log := b.log.WithPrefix("EnsureRunning: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := poll.Poll(func() poll.Outcome[bool] {
		state, err := b.InstanceState(instanceID)
		if err != nil {
			return poll.Failure[bool](err)
		}
		switch state {
		case StateRunning:
			return poll.Success(true)
		case StateShuttingDown, StateTerminated:
			return poll.Failure[bool](&NotFoundError{Kind: "startable instance", ID: instanceID})
		case StateStopped:
			log.Detail("starting")
			if err := b.StartInstance(instanceID); err != nil && !IsAPIError(err, "IncorrectInstanceState") {
				return poll.Failure[bool](err)
			}
		}
		return poll.Pending[bool]()
	}, b.pollConfig(cfg))
	return err
}

// WaitInstanceType polls until the instance reports the requested type.
func (b *Backend) WaitInstanceType(instanceID string, instanceType string, cfg poll.Config) error {
	_, err := poll.Poll(func() poll.Outcome[string] {
		inst, err := b.Instance(instanceID)
		if err != nil {
			return poll.Failure[string](err)
		}
		if inst.Type == instanceType {
			return poll.Success(inst.Type)
		}
		return poll.Pending[string]()
	}, b.pollConfig(cfg))
	return err
}

type LaunchInput struct {
	TemplateID string
	Version    string
	Name       string
}

// LaunchFromTemplate runs a single instance from a launch template and tags it with its name.
func (b *Backend) LaunchFromTemplate(input *LaunchInput) (*Instance, error) {
	log := b.log.WithPrefix("LaunchFromTemplate: job=" + shortuuid.New() + " template=" + input.TemplateID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	version := input.Version
	if version == "" {
		version = "$Latest"
	}
	run := &ec2.RunInstancesInput{
		LaunchTemplate: &types.LaunchTemplateSpecification{
			LaunchTemplateId: aws.String(input.TemplateID),
			Version:          aws.String(version),
		},
		MinCount:    aws.Int32(1),
		MaxCount:    aws.Int32(1),
		ClientToken: aws.String(uuid.New().String()),
		TagSpecifications: []types.TagSpecification{
			{
				ResourceType: types.ResourceTypeInstance,
				Tags: []types.Tag{
					{
						Key:   aws.String("Name"),
						Value: aws.String(input.Name),
					},
				},
			},
		},
	}
	out, err := b.ec2.RunInstances(context.TODO(), run)
	if err != nil {
		return nil, wrapErr("EC2", "RunInstances", err)
	}
	if len(out.Instances) == 0 {
		return nil, &NotFoundError{Kind: "launched instance", ID: input.Name}
	}
	inst := instanceFromEC2(out.Instances[0])
	if inst.Name == "" {
		inst.Name = input.Name
	}
	log.Detail("launched %s", inst.ID)
	return inst, nil
}
