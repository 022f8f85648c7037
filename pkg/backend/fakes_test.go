package backend

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/pricing"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

func apiErr(code string) error {
	return &smithy.GenericAPIError{Code: code, Message: code}
}

// Fakes embed the client interface so calling a method a test did not set panics.

type fakeEC2 struct {
	EC2API
	describeInstances      func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	startInstances         func(*ec2.StartInstancesInput) (*ec2.StartInstancesOutput, error)
	describeSecurityGroups func(*ec2.DescribeSecurityGroupsInput) (*ec2.DescribeSecurityGroupsOutput, error)
	authorize              func(*ec2.AuthorizeSecurityGroupIngressInput) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	revoke                 func(*ec2.RevokeSecurityGroupIngressInput) (*ec2.RevokeSecurityGroupIngressOutput, error)
	modifyInstanceAttr     func(*ec2.ModifyInstanceAttributeInput) (*ec2.ModifyInstanceAttributeOutput, error)
	modifyVolume           func(*ec2.ModifyVolumeInput) (*ec2.ModifyVolumeOutput, error)
	describeVolumes        func(*ec2.DescribeVolumesInput) (*ec2.DescribeVolumesOutput, error)
	runInstances           func(*ec2.RunInstancesInput) (*ec2.RunInstancesOutput, error)
	describeImages         func(*ec2.DescribeImagesInput) (*ec2.DescribeImagesOutput, error)
	describeTemplates      func(*ec2.DescribeLaunchTemplatesInput) (*ec2.DescribeLaunchTemplatesOutput, error)
}

func (f *fakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return f.describeInstances(in)
}

func (f *fakeEC2) StartInstances(_ context.Context, in *ec2.StartInstancesInput, _ ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error) {
	return f.startInstances(in)
}

func (f *fakeEC2) DescribeSecurityGroups(_ context.Context, in *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	return f.describeSecurityGroups(in)
}

func (f *fakeEC2) AuthorizeSecurityGroupIngress(_ context.Context, in *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	return f.authorize(in)
}

func (f *fakeEC2) RevokeSecurityGroupIngress(_ context.Context, in *ec2.RevokeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.RevokeSecurityGroupIngressOutput, error) {
	return f.revoke(in)
}

func (f *fakeEC2) ModifyInstanceAttribute(_ context.Context, in *ec2.ModifyInstanceAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyInstanceAttributeOutput, error) {
	return f.modifyInstanceAttr(in)
}

func (f *fakeEC2) ModifyVolume(_ context.Context, in *ec2.ModifyVolumeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVolumeOutput, error) {
	return f.modifyVolume(in)
}

func (f *fakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	return f.describeVolumes(in)
}

func (f *fakeEC2) RunInstances(_ context.Context, in *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	return f.runInstances(in)
}

func (f *fakeEC2) DescribeImages(_ context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	return f.describeImages(in)
}

func (f *fakeEC2) DescribeLaunchTemplates(_ context.Context, in *ec2.DescribeLaunchTemplatesInput, _ ...func(*ec2.Options)) (*ec2.DescribeLaunchTemplatesOutput, error) {
	return f.describeTemplates(in)
}

type fakeSTS struct {
	account string
	calls   int
}

func (f *fakeSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	f.calls++
	if f.account == "" {
		return &sts.GetCallerIdentityOutput{}, nil
	}
	return &sts.GetCallerIdentityOutput{Account: &f.account}, nil
}

type fakePricing struct {
	calls       int
	getProducts func(*pricing.GetProductsInput) (*pricing.GetProductsOutput, error)
}

func (f *fakePricing) GetProducts(_ context.Context, in *pricing.GetProductsInput, _ ...func(*pricing.Options)) (*pricing.GetProductsOutput, error) {
	f.calls++
	return f.getProducts(in)
}

type fakeCloudWatch struct {
	alarms   []string
	put      []*cloudwatch.PutMetricAlarmInput
	deleted  []string
	existing func(name string) *cloudwatch.DescribeAlarmsOutput
}

func (f *fakeCloudWatch) PutMetricAlarm(_ context.Context, in *cloudwatch.PutMetricAlarmInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricAlarmOutput, error) {
	f.put = append(f.put, in)
	return &cloudwatch.PutMetricAlarmOutput{}, nil
}

func (f *fakeCloudWatch) DescribeAlarms(_ context.Context, in *cloudwatch.DescribeAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DescribeAlarmsOutput, error) {
	f.alarms = append(f.alarms, in.AlarmNames...)
	if f.existing == nil {
		return &cloudwatch.DescribeAlarmsOutput{}, nil
	}
	return f.existing(in.AlarmNames[0]), nil
}

func (f *fakeCloudWatch) DeleteAlarms(_ context.Context, in *cloudwatch.DeleteAlarmsInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.DeleteAlarmsOutput, error) {
	f.deleted = append(f.deleted, in.AlarmNames...)
	return &cloudwatch.DeleteAlarmsOutput{}, nil
}

type fakeIAM struct {
	IAMAPI
	getRole    func(*iam.GetRoleInput) (*iam.GetRoleOutput, error)
	createRole func(*iam.CreateRoleInput) (*iam.CreateRoleOutput, error)
	policies   []*iam.PutRolePolicyInput
}

func (f *fakeIAM) GetRole(_ context.Context, in *iam.GetRoleInput, _ ...func(*iam.Options)) (*iam.GetRoleOutput, error) {
	return f.getRole(in)
}

func (f *fakeIAM) CreateRole(_ context.Context, in *iam.CreateRoleInput, _ ...func(*iam.Options)) (*iam.CreateRoleOutput, error) {
	return f.createRole(in)
}

func (f *fakeIAM) PutRolePolicy(_ context.Context, in *iam.PutRolePolicyInput, _ ...func(*iam.Options)) (*iam.PutRolePolicyOutput, error) {
	f.policies = append(f.policies, in)
	return &iam.PutRolePolicyOutput{}, nil
}

type fakeScheduler struct {
	SchedulerAPI
	createSchedule func(*scheduler.CreateScheduleInput) (*scheduler.CreateScheduleOutput, error)
	updateSchedule func(*scheduler.UpdateScheduleInput) (*scheduler.UpdateScheduleOutput, error)
	listSchedules  func(*scheduler.ListSchedulesInput) (*scheduler.ListSchedulesOutput, error)
}

func (f *fakeScheduler) CreateSchedule(_ context.Context, in *scheduler.CreateScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error) {
	return f.createSchedule(in)
}

func (f *fakeScheduler) UpdateSchedule(_ context.Context, in *scheduler.UpdateScheduleInput, _ ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error) {
	return f.updateSchedule(in)
}

func (f *fakeScheduler) ListSchedules(_ context.Context, in *scheduler.ListSchedulesInput, _ ...func(*scheduler.Options)) (*scheduler.ListSchedulesOutput, error) {
	return f.listSchedules(in)
}

type fakeSSM struct {
	sent        *ssm.SendCommandInput
	invocations []func() (*ssm.GetCommandInvocationOutput, error)
	polls       int
}

func (f *fakeSSM) SendCommand(_ context.Context, in *ssm.SendCommandInput, _ ...func(*ssm.Options)) (*ssm.SendCommandOutput, error) {
	f.sent = in
	id := "cmd-1"
	return &ssm.SendCommandOutput{Command: &ssmtypes.Command{CommandId: &id}}, nil
}

func (f *fakeSSM) GetCommandInvocation(_ context.Context, in *ssm.GetCommandInvocationInput, _ ...func(*ssm.Options)) (*ssm.GetCommandInvocationOutput, error) {
	i := f.polls
	f.polls++
	if i >= len(f.invocations) {
		i = len(f.invocations) - 1
	}
	return f.invocations[i]()
}

type fakeECS struct {
	ECSAPI
	listClusters     func(*ecs.ListClustersInput) (*ecs.ListClustersOutput, error)
	describeServices func(*ecs.DescribeServicesInput) (*ecs.DescribeServicesOutput, error)
	updateService    func(*ecs.UpdateServiceInput) (*ecs.UpdateServiceOutput, error)
}

func (f *fakeECS) ListClusters(_ context.Context, in *ecs.ListClustersInput, _ ...func(*ecs.Options)) (*ecs.ListClustersOutput, error) {
	return f.listClusters(in)
}

func (f *fakeECS) DescribeServices(_ context.Context, in *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	return f.describeServices(in)
}

func (f *fakeECS) UpdateService(_ context.Context, in *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	return f.updateService(in)
}

func newTestBackend(t *testing.T, clients *Clients) *Backend {
	t.Helper()
	b := NewWithClients(&Config{
		Region:  "eu-west-1",
		WorkDir: t.TempDir(),
	}, clients)
	b.SetSleep(func(time.Duration) {})
	return b
}
