// Package poll provides a bounded, fixed-interval poller.
//
// A check is executed up to Config.MaxAttempts times with Config.Interval
// between attempts. The check reports one of three outcomes: Success with a
// value, Pending, or Failure with an error. Failure stops polling at once.
//
// Usage:
//
//	state, err := poll.Poll(func() poll.Outcome[string] {
//	    s, err := getState()
//	    if err != nil {
//	        return poll.Failure[string](err)
//	    }
//	    if s != "running" {
//	        return poll.Pending[string]()
//	    }
//	    return poll.Success(s)
//	}, poll.Config{MaxAttempts: 12, Interval: 5 * time.Second})
//	if errors.Is(err, poll.ErrTimeout) {
//	    log.Warn("instance may still be starting")
//	}
package poll

import (
	"errors"
	"fmt"
	"time"
)

type state int

const (
	statePending state = iota
	stateSuccess
	stateFailure
)

// Outcome is the result of a single check.
type Outcome[T any] struct {
	state state
	value T
	err   error
}

// Success ends polling and hands value to the caller.
func Success[T any](value T) Outcome[T] {
	return Outcome[T]{state: stateSuccess, value: value}
}

// Pending asks for another attempt, if any are left.
func Pending[T any]() Outcome[T] {
	return Outcome[T]{state: statePending}
}

// Failure stops the poller. A nil error is reported as ErrNilFailure so that a
// failed check can never be mistaken for success.
func Failure[T any](err error) Outcome[T] {
	if err == nil {
		err = ErrNilFailure
	}
	return Outcome[T]{state: stateFailure, err: err}
}

// IsSuccess reports whether the check produced a value.
func (o Outcome[T]) IsSuccess() bool { return o.state == stateSuccess }

// IsPending reports whether the check asked to be retried.
func (o Outcome[T]) IsPending() bool { return o.state == statePending }

// IsFailure reports whether the check failed.
func (o Outcome[T]) IsFailure() bool { return o.state == stateFailure }

// Value is the result of a successful check, the zero value otherwise.
func (o Outcome[T]) Value() T { return o.value }

// Err is the error of a failed check, nil otherwise.
func (o Outcome[T]) Err() error { return o.err }

// Config bounds a Poll call. Each call site takes its own from pkg/settings.
type Config struct {
	MaxAttempts int                 // total number of checks, must be >= 1
	Interval    time.Duration       // fixed sleep between two checks
	OnPending   func(attempt int)   // optional, called with the 1-based attempt number after each Pending outcome
	Sleep       func(time.Duration) // optional, defaults to time.Sleep
}

var (
	// ErrTimeout matches every *TimeoutError.
	ErrTimeout = errors.New("poll: attempts exhausted")
	// ErrInvalidConfig is returned before any check when Config is unusable.
	ErrInvalidConfig = errors.New("poll: invalid configuration")
	// ErrNilFailure stands in for the error of Failure(nil).
	ErrNilFailure = errors.New("poll: check failed without an error")
)

// TimeoutError is returned when every attempt reported Pending.
type TimeoutError struct {
	Attempts int
	Interval time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("condition not met after %d attempts at %s interval", e.Attempts, e.Interval)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// CheckError wraps the error returned by a failed check.
type CheckError struct {
	Attempt int
	Err     error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("check failed on attempt %d: %s", e.Attempt, e.Err)
}

func (e *CheckError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a poll timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsCheckError reports whether err came from a failed check rather than from
// exhausting the attempts.
func IsCheckError(err error) bool {
	var ce *CheckError
	return errors.As(err, &ce)
}

// Poll runs check until it succeeds, fails, or MaxAttempts checks returned
// Pending. Sleeps happen only between attempts, so a success on attempt k
// costs k checks and k-1 sleeps.
func Poll[T any](check func() Outcome[T], cfg Config) (T, error) {
	var zero T
	if cfg.MaxAttempts < 1 {
		return zero, fmt.Errorf("%w: MaxAttempts must be at least 1, got %d", ErrInvalidConfig, cfg.MaxAttempts)
	}
	if cfg.Interval < 0 {
		return zero, fmt.Errorf("%w: Interval cannot be negative", ErrInvalidConfig)
	}
	if check == nil {
		return zero, fmt.Errorf("%w: check function is nil", ErrInvalidConfig)
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		out := check()
		switch out.state {
		case stateSuccess:
			return out.value, nil
		case stateFailure:
			return zero, &CheckError{Attempt: attempt, Err: out.err}
		}
		if cfg.OnPending != nil {
			cfg.OnPending(attempt)
		}
		if attempt < cfg.MaxAttempts {
			sleep(cfg.Interval)
		}
	}
	return zero, &TimeoutError{Attempts: cfg.MaxAttempts, Interval: cfg.Interval}
}

// Duration returns the longest wall-clock time Poll can block for, not
// counting time spent inside the check itself.
func (c Config) Duration() time.Duration {
	if c.MaxAttempts < 2 {
		return 0
	}
	return time.Duration(c.MaxAttempts-1) * c.Interval
}

// FromWait builds a Config that covers roughly wait at the given interval,
// for call sites that express limits as a total wait rather than a count.
func FromWait(wait, interval time.Duration) Config {
	if interval <= 0 {
		return Config{MaxAttempts: 1}
	}
	attempts := int(wait / interval)
	if attempts < 1 {
		attempts = 1
	}
	return Config{MaxAttempts: attempts, Interval: interval}
}
