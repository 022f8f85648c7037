package durations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMinutes(t *testing.T) {
	good := map[string]int{
		"3h":      180,
		"30m":     30,
		"1h30m":   90,
		"2h15m":   135,
		" 1H ":    60,
		"0h5m":    5,
		"90m":     90,
		"24h":     1440,
		"1h0m":    60,
		"100h99m": 6099,
		"720h":    MaxMinutes,
	}
	for in, want := range good {
		got, err := ParseMinutes(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "   ", "0m", "0h", "0h0m", "h", "m", "1.5h", "30", "1m1h", "-5m", "1h 30m", "abc", "721h", "720h1m", "43201m", "999999999999999999h", "99999999999999999999m"} {
		_, err := ParseMinutes(in)
		assert.ErrorIs(t, err, ErrInvalidDuration, in)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "2h 30m", Format(150))
	assert.Equal(t, "2h", Format(120))
	assert.Equal(t, "45m", Format(45))
	assert.Equal(t, "0m", Format(0))
	assert.Equal(t, "0m", Format(-3))
	assert.Equal(t, "1h 1m", Format(61))
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "1h 5m", FormatUptime(65*time.Minute+59*time.Second))
	assert.Equal(t, "0m", FormatUptime(30*time.Second))
}
