package backend

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleAlarmName(t *testing.T) {
	assert.Equal(t, "remotepy-autoshutdown-i-0abc", IdleAlarmName(IdleStop, "i-0abc"))
	assert.Equal(t, "remotepy-autoterminate-i-0abc", IdleAlarmName(IdleTerminate, "i-0abc"))
}

func TestValidateIdleAlarm(t *testing.T) {
	tests := []struct {
		threshold int
		minutes   int
		ok        bool
	}{
		{5, 30, true},
		{1, 5, true},
		{99, 1440, true},
		{0, 30, false},
		{100, 30, false},
		{5, 4, false},
		{5, 1441, false},
	}
	for _, tt := range tests {
		err := ValidateIdleAlarm(tt.threshold, tt.minutes)
		if tt.ok {
			assert.NoError(t, err, "%d/%d", tt.threshold, tt.minutes)
		} else {
			assert.Error(t, err, "%d/%d", tt.threshold, tt.minutes)
		}
	}
}

func TestEnableIdleAlarm(t *testing.T) {
	cw := &fakeCloudWatch{}
	b := newTestBackend(t, &Clients{CloudWatch: cw})

	updated, err := b.EnableIdleAlarm(IdleStop, "i-0abc", "dev", 5, 30)
	require.NoError(t, err)
	assert.False(t, updated)
	require.Len(t, cw.put, 1)
	in := cw.put[0]
	assert.Equal(t, "remotepy-autoshutdown-i-0abc", aws.ToString(in.AlarmName))
	assert.Equal(t, "Auto-shutdown dev (i-0abc) when CPU < 5% for 30 minutes", aws.ToString(in.AlarmDescription))
	assert.Equal(t, "CPUUtilization", aws.ToString(in.MetricName))
	assert.Equal(t, "AWS/EC2", aws.ToString(in.Namespace))
	assert.Equal(t, types.StatisticAverage, in.Statistic)
	assert.EqualValues(t, 300, aws.ToInt32(in.Period))
	assert.EqualValues(t, 6, aws.ToInt32(in.EvaluationPeriods))
	assert.Equal(t, 5.0, aws.ToFloat64(in.Threshold))
	assert.Equal(t, types.ComparisonOperatorLessThanThreshold, in.ComparisonOperator)
	assert.Equal(t, "missing", aws.ToString(in.TreatMissingData))
	assert.Equal(t, []string{"arn:aws:automate:eu-west-1:ec2:stop"}, in.AlarmActions)
	assert.Equal(t, "i-0abc", aws.ToString(in.Dimensions[0].Value))
	require.Len(t, in.Tags, 2)
	assert.Equal(t, "remotepy", aws.ToString(in.Tags[0].Value))
}

func TestEnableIdleAlarmTerminateUpdatesExisting(t *testing.T) {
	cw := &fakeCloudWatch{existing: func(name string) *cloudwatch.DescribeAlarmsOutput {
		return &cloudwatch.DescribeAlarmsOutput{MetricAlarms: []types.MetricAlarm{{AlarmName: aws.String(name)}}}
	}}
	b := newTestBackend(t, &Clients{CloudWatch: cw})
	updated, err := b.EnableIdleAlarm(IdleTerminate, "i-0abc", "dev", 10, 7)
	require.NoError(t, err)
	assert.True(t, updated)
	in := cw.put[0]
	assert.EqualValues(t, 1, aws.ToInt32(in.EvaluationPeriods))
	assert.Equal(t, []string{"arn:aws:automate:eu-west-1:ec2:terminate"}, in.AlarmActions)
	assert.Contains(t, aws.ToString(in.AlarmDescription), "Auto-terminate dev")
}

func TestEnableIdleAlarmRejectsBounds(t *testing.T) {
	cw := &fakeCloudWatch{}
	b := newTestBackend(t, &Clients{CloudWatch: cw})
	_, err := b.EnableIdleAlarm(IdleStop, "i-0abc", "dev", 0, 30)
	assert.Error(t, err)
	assert.Empty(t, cw.put)
}

func TestIdleAlarmStatus(t *testing.T) {
	cw := &fakeCloudWatch{existing: func(name string) *cloudwatch.DescribeAlarmsOutput {
		return &cloudwatch.DescribeAlarmsOutput{MetricAlarms: []types.MetricAlarm{{
			AlarmName:         aws.String(name),
			StateValue:        types.StateValueOk,
			StateReason:       aws.String("Threshold Crossed"),
			Threshold:         aws.Float64(5),
			Period:            aws.Int32(300),
			EvaluationPeriods: aws.Int32(12),
		}}}
	}}
	b := newTestBackend(t, &Clients{CloudWatch: cw})
	a, err := b.IdleAlarmStatus(IdleStop, "i-0abc")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, "OK", a.State)
	assert.Equal(t, 60, a.Minutes)
	assert.Equal(t, "Threshold Crossed", a.StateReason)
}

func TestDisableIdleAlarm(t *testing.T) {
	cw := &fakeCloudWatch{}
	b := newTestBackend(t, &Clients{CloudWatch: cw})
	deleted, err := b.DisableIdleAlarm(IdleStop, "i-0abc")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, cw.deleted)

	cw.existing = func(name string) *cloudwatch.DescribeAlarmsOutput {
		return &cloudwatch.DescribeAlarmsOutput{MetricAlarms: []types.MetricAlarm{{AlarmName: aws.String(name)}}}
	}
	deleted, err = b.DisableIdleAlarm(IdleStop, "i-0abc")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, []string{"remotepy-autoshutdown-i-0abc"}, cw.deleted)
}
