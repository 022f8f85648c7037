package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/ivyleavedtoadflax/remote.py/pkg/poll"
	"github.com/lithammer/shortuuid"
)

type CommandResult struct {
	CommandID string
	Status    string
	ExitCode  int
	Stdout    string
	Stderr    string
}

// CommandFailedError is returned when an SSM command finishes in a non-success state.
type CommandFailedError struct {
	Result *CommandResult
}

func (e *CommandFailedError) Error() string {
	if e.Result.Stderr != "" {
		return fmt.Sprintf("command %s: %s", e.Result.Status, e.Result.Stderr)
	}
	return fmt.Sprintf("command failed with status: %s", e.Result.Status)
}

// RunCommand runs a shell command on the instance through SSM and waits for its result.
func (b *Backend) RunCommand(instanceID string, command string, timeout time.Duration, cfg poll.Config) (*CommandResult, error) {
	log := b.log.WithPrefix("RunCommand: job=" + shortuuid.New() + " id=" + instanceID + " ")
	log.Detail("Start")
	defer log.Detail("End")
	out, err := b.ssm.SendCommand(context.TODO(), &ssm.SendCommandInput{
		InstanceIds:  []string{instanceID},
		DocumentName: aws.String("AWS-RunShellScript"),
		Parameters: map[string][]string{
			"commands": {command},
		},
		TimeoutSeconds: aws.Int32(int32(timeout.Seconds())),
	})
	if err != nil {
		return nil, wrapErr("SSM", "SendCommand", err)
	}
	if out.Command == nil {
		return nil, fmt.Errorf("SendCommand returned no command")
	}
	commandID := aws.ToString(out.Command.CommandId)
	log.Detail("command id %s", commandID)
	res, err := poll.Poll(func() poll.Outcome[*CommandResult] {
		inv, err := b.ssm.GetCommandInvocation(context.TODO(), &ssm.GetCommandInvocationInput{
			CommandId:  aws.String(commandID),
			InstanceId: aws.String(instanceID),
		})
		if err != nil {
			if IsAPIError(err, "InvocationDoesNotExist") {
				return poll.Pending[*CommandResult]()
			}
			return poll.Failure[*CommandResult](wrapErr("SSM", "GetCommandInvocation", err))
		}
		switch inv.Status {
		case types.CommandInvocationStatusPending, types.CommandInvocationStatusInProgress, types.CommandInvocationStatusDelayed:
			log.Detail("status=%s", inv.Status)
			return poll.Pending[*CommandResult]()
		}
		r := &CommandResult{
			CommandID: commandID,
			Status:    string(inv.Status),
			ExitCode:  int(inv.ResponseCode),
			Stdout:    aws.ToString(inv.StandardOutputContent),
			Stderr:    aws.ToString(inv.StandardErrorContent),
		}
		if inv.Status != types.CommandInvocationStatusSuccess {
			if r.ExitCode == 0 {
				r.ExitCode = 1
			}
			if r.Stderr == "" {
				r.Stderr = "Command failed with status: " + aws.ToString(inv.StatusDetails)
			}
			return poll.Failure[*CommandResult](&CommandFailedError{Result: r})
		}
		r.ExitCode = 0
		return poll.Success(r)
	}, b.pollConfig(cfg))
	if err != nil {
		return nil, err
	}
	return res, nil
}
