package backend

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/lithammer/shortuuid"
)

// IdleAction is what an idle alarm does to the instance.
type IdleAction string

const (
	IdleStop      IdleAction = "stop"
	IdleTerminate IdleAction = "terminate"
)

const (
	DefaultIdleThreshold = 5
	DefaultIdleMinutes   = 30
	idleAlarmPeriod      = 300
)

func (a IdleAction) alarmKind() string {
	if a == IdleTerminate {
		return "autoterminate"
	}
	return "autoshutdown"
}

func (a IdleAction) label() string {
	if a == IdleTerminate {
		return "Auto-terminate"
	}
	return "Auto-shutdown"
}

// IdleAlarmName is remotepy-autoshutdown-<id> or remotepy-autoterminate-<id>.
func IdleAlarmName(action IdleAction, instanceID string) string {
	return "remotepy-" + action.alarmKind() + "-" + instanceID
}

// ValidateIdleAlarm checks threshold (percent) and duration (minutes) bounds.
func ValidateIdleAlarm(threshold int, minutes int) error {
	if threshold < 1 || threshold > 99 {
		return fmt.Errorf("threshold must be between 1 and 99 percent, got %d", threshold)
	}
	if minutes < 5 || minutes > 1440 {
		return fmt.Errorf("duration must be between 5 and 1440 minutes, got %d", minutes)
	}
	return nil
}

type IdleAlarm struct {
	Name        string
	State       string
	StateReason string
	Threshold   float64
	Minutes     int
	Description string
}

// IdleAlarmStatus returns the alarm of the given kind for the instance, or nil when none exists.
func (b *Backend) IdleAlarmStatus(action IdleAction, instanceID string) (*IdleAlarm, error) {
	name := IdleAlarmName(action, instanceID)
	out, err := b.cloudwatch.DescribeAlarms(context.TODO(), &cloudwatch.DescribeAlarmsInput{
		AlarmNames: []string{name},
		AlarmTypes: []types.AlarmType{types.AlarmTypeMetricAlarm},
	})
	if err != nil {
		return nil, wrapErr("CloudWatch", "DescribeAlarms", err)
	}
	if len(out.MetricAlarms) == 0 {
		return nil, nil
	}
	a := out.MetricAlarms[0]
	period := int(aws.ToInt32(a.Period))
	if period == 0 {
		period = idleAlarmPeriod
	}
	evals := int(aws.ToInt32(a.EvaluationPeriods))
	if evals == 0 {
		evals = 1
	}
	return &IdleAlarm{
		Name:        aws.ToString(a.AlarmName),
		State:       string(a.StateValue),
		StateReason: aws.ToString(a.StateReason),
		Threshold:   aws.ToFloat64(a.Threshold),
		Minutes:     period * evals / 60,
		Description: aws.ToString(a.AlarmDescription),
	}, nil
}

// EnableIdleAlarm creates or replaces the CPU idle alarm. The returned bool is
// true when an existing alarm was updated.
func (b *Backend) EnableIdleAlarm(action IdleAction, instanceID string, instanceName string, threshold int, minutes int) (bool, error) {
	log := b.log.WithPrefix("EnableIdleAlarm: job=" + shortuuid.New() + " id=" + instanceID + " action=" + string(action) + " ")
	log.Detail("Start")
	defer log.Detail("End")
	if err := ValidateIdleAlarm(threshold, minutes); err != nil {
		return false, err
	}
	existing, err := b.IdleAlarmStatus(action, instanceID)
	if err != nil {
		return false, err
	}
	evals := minutes / 5
	if evals < 1 {
		evals = 1
	}
	_, err = b.cloudwatch.PutMetricAlarm(context.TODO(), &cloudwatch.PutMetricAlarmInput{
		AlarmName:        aws.String(IdleAlarmName(action, instanceID)),
		AlarmDescription: aws.String(fmt.Sprintf("%s %s (%s) when CPU < %d%% for %d minutes", action.label(), instanceName, instanceID, threshold, minutes)),
		MetricName:       aws.String("CPUUtilization"),
		Namespace:        aws.String("AWS/EC2"),
		Statistic:        types.StatisticAverage,
		Dimensions: []types.Dimension{
			{
				Name:  aws.String("InstanceId"),
				Value: aws.String(instanceID),
			},
		},
		Period:             aws.Int32(idleAlarmPeriod),
		EvaluationPeriods:  aws.Int32(int32(evals)),
		Threshold:          aws.Float64(float64(threshold)),
		ComparisonOperator: types.ComparisonOperatorLessThanThreshold,
		TreatMissingData:   aws.String("missing"),
		AlarmActions:       []string{fmt.Sprintf("arn:aws:automate:%s:ec2:%s", b.region, action)},
		Tags: []types.Tag{
			{
				Key:   aws.String("CreatedBy"),
				Value: aws.String("remotepy"),
			}, {
				Key:   aws.String("InstanceName"),
				Value: aws.String(instanceName),
			},
		},
	})
	if err != nil {
		return false, wrapErr("CloudWatch", "PutMetricAlarm", err)
	}
	return existing != nil, nil
}

// DisableIdleAlarm deletes the alarm, returning false when there was none.
func (b *Backend) DisableIdleAlarm(action IdleAction, instanceID string) (bool, error) {
	log := b.log.WithPrefix("DisableIdleAlarm: job=" + shortuuid.New() + " id=" + instanceID + " action=" + string(action) + " ")
	log.Detail("Start")
	defer log.Detail("End")
	existing, err := b.IdleAlarmStatus(action, instanceID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, nil
	}
	_, err = b.cloudwatch.DeleteAlarms(context.TODO(), &cloudwatch.DeleteAlarmsInput{
		AlarmNames: []string{existing.Name},
	})
	if err != nil {
		return false, wrapErr("CloudWatch", "DeleteAlarms", err)
	}
	return true, nil
}
