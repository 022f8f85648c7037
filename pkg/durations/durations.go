// Package durations parses and formats the short "1h30m" style durations used by --stop-in.
package durations

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidDuration = errors.New("invalid duration")

// MaxMinutes is the longest duration ParseMinutes accepts, 30 days.
const MaxMinutes = 30 * 24 * 60

var durationRegex = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?$`)

// ParseMinutes converts "3h", "30m" or "1h30m" to minutes. Input is trimmed and lowercased.
func ParseMinutes(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: duration cannot be empty", ErrInvalidDuration)
	}
	m := durationRegex.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("%w: '%s', use formats like '3h', '30m', or '1h30m'", ErrInvalidDuration, s)
	}
	hours, minutes := 0, 0
	var err error
	if m[1] != "" {
		hours, err = strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, err)
		}
	}
	if m[2] != "" {
		minutes, err = strconv.Atoi(m[2])
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, err)
		}
	}
	if hours > MaxMinutes/60 || minutes > MaxMinutes {
		return 0, fmt.Errorf("%w: '%s' is longer than %s", ErrInvalidDuration, s, Format(MaxMinutes))
	}
	total := hours*60 + minutes
	if total <= 0 {
		return 0, fmt.Errorf("%w: duration must be greater than 0 minutes", ErrInvalidDuration)
	}
	if total > MaxMinutes {
		return 0, fmt.Errorf("%w: '%s' is longer than %s", ErrInvalidDuration, s, Format(MaxMinutes))
	}
	return total, nil
}

// Format renders minutes as "2h 30m", "2h" or "45m"; zero and negative values are "0m".
func Format(minutes int) string {
	if minutes <= 0 {
		return "0m"
	}
	h := minutes / 60
	m := minutes % 60
	switch {
	case h > 0 && m > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case h > 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dm", m)
	}
}

// FormatUptime renders a duration the same way Format does, truncated to whole minutes.
func FormatUptime(d time.Duration) string {
	return Format(int(d / time.Minute))
}
