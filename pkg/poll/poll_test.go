package poll

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.calls = append(s.calls, d)
}

// succeedOn returns a check that is Pending until call k, where it succeeds with value.
func succeedOn(k int, value string, calls *int) func() Outcome[string] {
	return func() Outcome[string] {
		*calls++
		if *calls == k {
			return Success(value)
		}
		return Pending[string]()
	}
}

func TestPollSuccessOnAttemptK(t *testing.T) {
	for _, tc := range []struct {
		name        string
		maxAttempts int
		k           int
	}{
		{"first", 5, 1},
		{"middle", 5, 3},
		{"last", 5, 5},
		{"single", 1, 1},
		{"long", 60, 42},
	} {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			rec := &sleepRecorder{}
			v, err := Poll(succeedOn(tc.k, "ok", &calls), Config{MaxAttempts: tc.maxAttempts, Interval: time.Second, Sleep: rec.sleep})
			require.NoError(t, err)
			assert.Equal(t, "ok", v)
			assert.Equal(t, tc.k, calls)
			assert.Len(t, rec.calls, tc.k-1)
		})
	}
}

func TestPollAlwaysPendingTimesOut(t *testing.T) {
	calls := 0
	rec := &sleepRecorder{}
	pending := []int{}
	_, err := Poll(func() Outcome[string] {
		calls++
		return Pending[string]()
	}, Config{
		MaxAttempts: 5,
		Interval:    5 * time.Second,
		Sleep:       rec.sleep,
		OnPending:   func(attempt int) { pending = append(pending, attempt) },
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsTimeout(err))
	assert.False(t, IsCheckError(err))
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 5, te.Attempts)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, rec.calls)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, pending)
}

func TestPollScenarioRunningOnThirdCall(t *testing.T) {
	calls := 0
	rec := &sleepRecorder{}
	v, err := Poll(succeedOn(3, "running", &calls), Config{MaxAttempts: 60, Interval: 5 * time.Second, Sleep: rec.sleep})
	require.NoError(t, err)
	assert.Equal(t, "running", v)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second}, rec.calls)
}

func TestPollCheckErrorStopsImmediately(t *testing.T) {
	gone := errors.New("instance gone")
	calls := 0
	rec := &sleepRecorder{}
	_, err := Poll(func() Outcome[int] {
		calls++
		if calls == 2 {
			return Failure[int](gone)
		}
		return Pending[int]()
	}, Config{MaxAttempts: 10, Interval: time.Second, Sleep: rec.sleep})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, rec.calls, 1)
	assert.True(t, errors.Is(err, gone))
	assert.False(t, errors.Is(err, ErrTimeout))
	assert.True(t, IsCheckError(err))
	var ce *CheckError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Attempt)
}

func TestPollSingleAttemptNeverSleeps(t *testing.T) {
	for _, out := range []Outcome[string]{Success("x"), Pending[string](), Failure[string](errors.New("boom"))} {
		calls := 0
		rec := &sleepRecorder{}
		_, _ = Poll(func() Outcome[string] {
			calls++
			return out
		}, Config{MaxAttempts: 1, Interval: time.Hour, Sleep: rec.sleep})
		assert.Equal(t, 1, calls)
		assert.Empty(t, rec.calls)
	}
}

func TestPollInvalidConfig(t *testing.T) {
	calls := 0
	check := func() Outcome[bool] {
		calls++
		return Success(true)
	}
	_, err := Poll(check, Config{MaxAttempts: 0})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = Poll(check, Config{MaxAttempts: 3, Interval: -time.Second})
	require.ErrorIs(t, err, ErrInvalidConfig)
	_, err = Poll[bool](nil, Config{MaxAttempts: 3})
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Equal(t, 0, calls)
}

func TestFailureWithNilError(t *testing.T) {
	_, err := Poll(func() Outcome[int] { return Failure[int](nil) }, Config{MaxAttempts: 2, Sleep: func(time.Duration) {}})
	require.ErrorIs(t, err, ErrNilFailure)
}

func TestOutcomeAccessors(t *testing.T) {
	s := Success(7)
	assert.True(t, s.IsSuccess())
	assert.Equal(t, 7, s.Value())
	p := Pending[int]()
	assert.True(t, p.IsPending())
	f := Failure[int](errors.New("x"))
	assert.True(t, f.IsFailure())
	assert.EqualError(t, f.Err(), "x")
}

func TestConfigHelpers(t *testing.T) {
	c := FromWait(60*time.Second, 5*time.Second)
	assert.Equal(t, 12, c.MaxAttempts)
	assert.Equal(t, 5*time.Second, c.Interval)
	assert.Equal(t, 55*time.Second, c.Duration())
	assert.Equal(t, 1, FromWait(time.Second, 5*time.Second).MaxAttempts)
	assert.Equal(t, 1, FromWait(time.Minute, 0).MaxAttempts)
	assert.Equal(t, time.Duration(0), Config{MaxAttempts: 1, Interval: time.Minute}.Duration())
}
