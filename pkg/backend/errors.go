package backend

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

var ErrInstanceNotFound = errors.New("instance not found")

// InstanceNotFoundError is returned when no live instance carries the requested Name tag.
type InstanceNotFoundError struct {
	Name string
}

func (e *InstanceNotFoundError) Error() string {
	return fmt.Sprintf("instance '%s' not found", e.Name)
}

func (e *InstanceNotFoundError) Is(target error) bool {
	return target == ErrInstanceNotFound
}

type MultipleInstancesError struct {
	Name string
	IDs  []string
}

func (e *MultipleInstancesError) Error() string {
	return fmt.Sprintf("multiple instances (%d) found with name '%s': %s", len(e.IDs), e.Name, strings.Join(e.IDs, ", "))
}

// NotFoundError is returned when an AWS resource addressed by ID or name does not exist.
// Code holds the AWS error code that reported it, empty when the call succeeded
// but returned nothing.
type NotFoundError struct {
	Kind string
	ID   string
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.ID)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	var inf *InstanceNotFoundError
	return errors.As(err, &nf) || errors.As(err, &inf)
}

// APIErrorCode returns the AWS error code carried by err, or "" when err is not an API error.
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// IsAPIError reports whether err is an AWS API error with one of the given codes.
func IsAPIError(err error, codes ...string) bool {
	code := APIErrorCode(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// ServiceError wraps a failed AWS call with the service and operation names.
type ServiceError struct {
	Service   string
	Operation string
	Err       error
}

func (e *ServiceError) Error() string {
	code := APIErrorCode(e.Err)
	if code != "" {
		return fmt.Sprintf("%s %s failed (%s): %s", e.Service, e.Operation, code, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Service, e.Operation, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func wrapErr(service, op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: service, Operation: op, Err: err}
}
