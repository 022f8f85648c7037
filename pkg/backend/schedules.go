package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	stypes "github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/lithammer/shortuuid"
)

const (
	SchedulerRoleName   = "remotepy-scheduler-role"
	SchedulerPolicyName = "remotepy-scheduler-ec2-policy"
	SchedulePrefix      = "remotepy-"
)

type ScheduleAction string

const (
	ScheduleWake  ScheduleAction = "wake"
	ScheduleSleep ScheduleAction = "sleep"
)

var ScheduleActions = []ScheduleAction{ScheduleWake, ScheduleSleep}

func (a ScheduleAction) ec2Operation() string {
	if a == ScheduleWake {
		return "startInstances"
	}
	return "stopInstances"
}

// ScheduleName is remotepy-<wake|sleep>-<instance-id>.
func ScheduleName(action ScheduleAction, instanceID string) string {
	return SchedulePrefix + string(action) + "-" + instanceID
}

// CronExpression builds cron(MM HH ? * DAYS *) for the given upper-case day abbreviations.
func CronExpression(hour, minute int, days []string) string {
	return fmt.Sprintf("cron(%d %d ? * %s *)", minute, hour, strings.Join(days, ","))
}

// AtExpression builds a one-off at(yyyy-mm-ddThh:mm:ss) expression.
func AtExpression(date time.Time, hour, minute int) string {
	return fmt.Sprintf("at(%sT%02d:%02d:00)", date.Format("2006-01-02"), hour, minute)
}

// DescribeExpression renders a cron expression as "HH:MM on DAYS"; anything else is returned unchanged.
func DescribeExpression(expr string) string {
	if !strings.HasPrefix(expr, "cron(") {
		return expr
	}
	parts := strings.Fields(strings.TrimSuffix(strings.TrimPrefix(expr, "cron("), ")"))
	if len(parts) < 5 {
		return expr
	}
	pad := func(s string) string {
		if len(s) < 2 {
			return "0" + s
		}
		return s
	}
	return pad(parts[1]) + ":" + pad(parts[0]) + " on " + parts[4]
}

type Schedule struct {
	Name        string
	Action      ScheduleAction
	InstanceID  string
	Expression  string
	Timezone    string
	State       string
	Description string
}

const schedulerTrustPolicy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"Service":"scheduler.amazonaws.com"},"Action":"sts:AssumeRole"}]}`

const schedulerEC2Policy = `{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Action":["ec2:StartInstances","ec2:StopInstances"],"Resource":"*"}]}`

// EnsureSchedulerRole returns the ARN of the scheduler execution role, creating it when missing.
func (b *Backend) EnsureSchedulerRole() (string, error) {
	log := b.log.WithPrefix("EnsureSchedulerRole: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.iam.GetRole(context.TODO(), &iam.GetRoleInput{
		RoleName: aws.String(SchedulerRoleName),
	})
	if err == nil {
		return aws.ToString(out.Role.Arn), nil
	}
	if !IsAPIError(err, "NoSuchEntity") {
		return "", wrapErr("IAM", "GetRole", err)
	}

	log.Detail("Creating scheduler IAM role")
	role, err := b.iam.CreateRole(context.TODO(), &iam.CreateRoleInput{
		RoleName:                 aws.String(SchedulerRoleName),
		AssumeRolePolicyDocument: aws.String(schedulerTrustPolicy),
		Description:              aws.String("Role for remote.py EventBridge Scheduler to start/stop EC2 instances"),
	})
	if err != nil {
		return "", wrapErr("IAM", "CreateRole", err)
	}

	log.Detail("Waiting for scheduler IAM role to exist")
	err = iam.NewRoleExistsWaiter(b.iam, func(o *iam.RoleExistsWaiterOptions) {
		o.MinDelay = 1 * time.Second
		o.MaxDelay = 5 * time.Second
	}).Wait(context.TODO(), &iam.GetRoleInput{
		RoleName: role.Role.RoleName,
	}, time.Minute)
	if err != nil {
		return "", fmt.Errorf("waiting for role %s: %w", SchedulerRoleName, err)
	}

	log.Detail("Attaching embedded scheduler IAM policy")
	_, err = b.iam.PutRolePolicy(context.TODO(), &iam.PutRolePolicyInput{
		RoleName:       aws.String(SchedulerRoleName),
		PolicyName:     aws.String(SchedulerPolicyName),
		PolicyDocument: aws.String(schedulerEC2Policy),
	})
	if err != nil {
		return "", wrapErr("IAM", "PutRolePolicy", err)
	}
	return aws.ToString(role.Role.Arn), nil
}

// DeleteSchedulerRole removes the role and its inline policy, returning false when it did not exist.
func (b *Backend) DeleteSchedulerRole() (bool, error) {
	log := b.log.WithPrefix("DeleteSchedulerRole: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.iam.GetRole(context.TODO(), &iam.GetRoleInput{
		RoleName: aws.String(SchedulerRoleName),
	})
	if err != nil {
		if IsAPIError(err, "NoSuchEntity") {
			return false, nil
		}
		return false, wrapErr("IAM", "GetRole", err)
	}
	_, err = b.iam.DeleteRolePolicy(context.TODO(), &iam.DeleteRolePolicyInput{
		RoleName:   aws.String(SchedulerRoleName),
		PolicyName: aws.String(SchedulerPolicyName),
	})
	if err != nil && !IsAPIError(err, "NoSuchEntity") {
		return false, wrapErr("IAM", "DeleteRolePolicy", err)
	}
	_, err = b.iam.DeleteRole(context.TODO(), &iam.DeleteRoleInput{
		RoleName: aws.String(SchedulerRoleName),
	})
	if err != nil {
		return false, wrapErr("IAM", "DeleteRole", err)
	}
	return true, nil
}

// roleNotAssumable matches the validation error EventBridge returns while a new role propagates.
func roleNotAssumable(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "ValidationException" {
		return false
	}
	return strings.Contains(apiErr.ErrorMessage(), "assume the role")
}

// PutSchedule creates the wake or sleep schedule for an instance, replacing an existing one.
// Timezone applies to cron expressions only. Creation is retried through the poller
// while IAM has not yet propagated the execution role.
func (b *Backend) PutSchedule(action ScheduleAction, instanceID string, expression string, timezone string, cfg poll.Config) error {
	log := b.log.WithPrefix("PutSchedule: job=" + shortuuid.New() + " id=" + instanceID + " action=" + string(action) + " ")
	log.Detail("Start")
	defer log.Detail("End")
	roleArn, err := b.EnsureSchedulerRole()
	if err != nil {
		return err
	}
	input, err := json.Marshal(map[string][]string{"InstanceIds": {instanceID}})
	if err != nil {
		return err
	}
	name := ScheduleName(action, instanceID)
	target := &stypes.Target{
		Arn:     aws.String("arn:aws:scheduler:::aws-sdk:ec2:" + action.ec2Operation()),
		RoleArn: aws.String(roleArn),
		Input:   aws.String(string(input)),
	}
	description := fmt.Sprintf("remote.py %s schedule for instance %s", action, instanceID)
	var tz *string
	if !strings.HasPrefix(expression, "at(") {
		if timezone == "" {
			timezone = "UTC"
		}
		tz = aws.String(timezone)
	}
	token := uuid.New().String()
	_, err = poll.Poll(func() poll.Outcome[bool] {
		_, err := b.scheduler.CreateSchedule(context.TODO(), &scheduler.CreateScheduleInput{
			Name:                       aws.String(name),
			Description:                aws.String(description),
			ScheduleExpression:         aws.String(expression),
			ScheduleExpressionTimezone: tz,
			State:                      stypes.ScheduleStateEnabled,
			ClientToken:                aws.String(token),
			FlexibleTimeWindow: &stypes.FlexibleTimeWindow{
				Mode: stypes.FlexibleTimeWindowModeOff,
			},
			Target: target,
		})
		if err == nil {
			return poll.Success(true)
		}
		if IsAPIError(err, "ConflictException") {
			log.Detail("schedule exists, updating")
			_, err = b.scheduler.UpdateSchedule(context.TODO(), &scheduler.UpdateScheduleInput{
				Name:                       aws.String(name),
				Description:                aws.String(description),
				ScheduleExpression:         aws.String(expression),
				ScheduleExpressionTimezone: tz,
				State:                      stypes.ScheduleStateEnabled,
				FlexibleTimeWindow: &stypes.FlexibleTimeWindow{
					Mode: stypes.FlexibleTimeWindowModeOff,
				},
				Target: target,
			})
			if err == nil {
				return poll.Success(true)
			}
			if !roleNotAssumable(err) {
				return poll.Failure[bool](wrapErr("Scheduler", "UpdateSchedule", err))
			}
		} else if !roleNotAssumable(err) {
			return poll.Failure[bool](wrapErr("Scheduler", "CreateSchedule", err))
		}
		log.Detail("Scheduler: IAM not ready, waiting for IAM and retrying")
		return poll.Pending[bool]()
	}, b.pollConfig(cfg))
	return err
}

func scheduleFromAPI(out *scheduler.GetScheduleOutput, action ScheduleAction, instanceID string) *Schedule {
	return &Schedule{
		Name:        aws.ToString(out.Name),
		Action:      action,
		InstanceID:  instanceID,
		Expression:  aws.ToString(out.ScheduleExpression),
		Timezone:    aws.ToString(out.ScheduleExpressionTimezone),
		State:       string(out.State),
		Description: aws.ToString(out.Description),
	}
}

// GetSchedule returns the schedule, or nil when it does not exist.
func (b *Backend) GetSchedule(action ScheduleAction, instanceID string) (*Schedule, error) {
	out, err := b.scheduler.GetSchedule(context.TODO(), &scheduler.GetScheduleInput{
		Name: aws.String(ScheduleName(action, instanceID)),
	})
	if err != nil {
		if IsAPIError(err, "ResourceNotFoundException") {
			return nil, nil
		}
		return nil, wrapErr("Scheduler", "GetSchedule", err)
	}
	return scheduleFromAPI(out, action, instanceID), nil
}

// Schedules returns the wake and sleep schedules present for an instance.
func (b *Backend) Schedules(instanceID string) (map[ScheduleAction]*Schedule, error) {
	list := make(map[ScheduleAction]*Schedule)
	for _, action := range ScheduleActions {
		s, err := b.GetSchedule(action, instanceID)
		if err != nil {
			return nil, err
		}
		if s != nil {
			list[action] = s
		}
	}
	return list, nil
}

// DeleteSchedule removes one schedule, returning false when it did not exist.
func (b *Backend) DeleteSchedule(action ScheduleAction, instanceID string) (bool, error) {
	log := b.log.WithPrefix("DeleteSchedule: job=" + shortuuid.New() + " id=" + instanceID + " action=" + string(action) + " ")
	log.Detail("Start")
	defer log.Detail("End")
	_, err := b.scheduler.DeleteSchedule(context.TODO(), &scheduler.DeleteScheduleInput{
		Name: aws.String(ScheduleName(action, instanceID)),
	})
	if err != nil {
		if IsAPIError(err, "ResourceNotFoundException") {
			return false, nil
		}
		return false, wrapErr("Scheduler", "DeleteSchedule", err)
	}
	return true, nil
}

// DeleteSchedules removes both schedules of an instance and reports which existed.
func (b *Backend) DeleteSchedules(instanceID string) (map[ScheduleAction]bool, error) {
	res := make(map[ScheduleAction]bool)
	for _, action := range ScheduleActions {
		deleted, err := b.DeleteSchedule(action, instanceID)
		if err != nil {
			return res, err
		}
		res[action] = deleted
	}
	return res, nil
}

// parseScheduleName splits remotepy-<action>-<instance-id>.
func parseScheduleName(name string) (ScheduleAction, string) {
	rest := strings.TrimPrefix(name, SchedulePrefix)
	for _, action := range ScheduleActions {
		if strings.HasPrefix(rest, string(action)+"-") {
			return action, strings.TrimPrefix(rest, string(action)+"-")
		}
	}
	return "", ""
}

// ListAllSchedules lists every schedule this tool created, sorted by name.
func (b *Backend) ListAllSchedules() ([]*Schedule, error) {
	log := b.log.WithPrefix("ListAllSchedules: job=" + shortuuid.New() + " ")
	log.Detail("Start")
	defer log.Detail("End")
	list := []*Schedule{}
	paginator := scheduler.NewListSchedulesPaginator(b.scheduler, &scheduler.ListSchedulesInput{
		NamePrefix: aws.String(SchedulePrefix),
	})
	for paginator.HasMorePages() {
		out, err := paginator.NextPage(context.TODO())
		if err != nil {
			return nil, wrapErr("Scheduler", "ListSchedules", err)
		}
		for _, s := range out.Schedules {
			name := aws.ToString(s.Name)
			action, id := parseScheduleName(name)
			list = append(list, &Schedule{
				Name:       name,
				Action:     action,
				InstanceID: id,
				State:      string(s.State),
			})
		}
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list, nil
}
