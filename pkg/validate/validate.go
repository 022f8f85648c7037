// Package validate checks user-supplied identifiers and arguments before they reach AWS or a remote shell.
package validate

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValidationError describes a rejected input value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s '%s': %s", e.Field, e.Value, e.Reason)
}

func newErr(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

const InstanceNameMaxLength = 255

var (
	instanceIDRegex   = regexp.MustCompile(`(?i)^i-[0-9a-f]{8,17}$`)
	volumeIDRegex     = regexp.MustCompile(`(?i)^vol-[0-9a-f]{8,17}$`)
	snapshotIDRegex   = regexp.MustCompile(`(?i)^snap-[0-9a-f]{8,17}$`)
	amiIDRegex        = regexp.MustCompile(`(?i)^ami-[0-9a-f]{8,17}$`)
	instanceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-\.\s]+$`)
	instanceTypeRegex = regexp.MustCompile(`(?i)^[a-z][a-z0-9-]*\.[a-z0-9-]+$`)
	sshUserRegex      = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)
	scheduleTimeRegex = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

func matchID(field string, re *regexp.Regexp, example string, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", newErr(field, "", "cannot be empty, expected "+example)
	}
	if !re.MatchString(v) {
		return "", newErr(field, v, "expected format "+example)
	}
	return v, nil
}

func InstanceID(v string) (string, error) {
	return matchID("instance_id", instanceIDRegex, "i-xxxxxxxxx", v)
}

func VolumeID(v string) (string, error) {
	return matchID("volume_id", volumeIDRegex, "vol-xxxxxxxxx", v)
}

func SnapshotID(v string) (string, error) {
	return matchID("snapshot_id", snapshotIDRegex, "snap-xxxxxxxxx", v)
}

func AMIID(v string) (string, error) {
	return matchID("ami_id", amiIDRegex, "ami-xxxxxxxxx", v)
}

func InstanceType(v string) (string, error) {
	return matchID("instance_type", instanceTypeRegex, "like 't3.micro' or 'm5.large'", v)
}

func InstanceName(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", newErr("instance_name", "", "cannot be empty")
	}
	if len(v) > InstanceNameMaxLength {
		return "", newErr("instance_name", v[:20]+"...", fmt.Sprintf("exceeds maximum length of %d characters", InstanceNameMaxLength))
	}
	if !instanceNameRegex.MatchString(v) {
		return "", newErr("instance_name", v, "only letters, digits, spaces, '_', '-' and '.' are allowed")
	}
	return v, nil
}

func SSHUser(v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", newErr("ssh_user", "", "cannot be empty")
	}
	if !sshUserRegex.MatchString(v) {
		return "", newErr("ssh_user", v, "only letters, digits, '_' and '-' are allowed")
	}
	return v, nil
}

// PositiveInt parses v and requires 1 <= n (and n <= max when max > 0).
func PositiveInt(field string, v string, max int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, newErr(field, v, "must be a valid integer")
	}
	if n <= 0 {
		return 0, newErr(field, v, "must be positive")
	}
	if max > 0 && n > max {
		return 0, newErr(field, v, fmt.Sprintf("must be <= %d", max))
	}
	return n, nil
}

// ArrayIndex converts a 1-based user selection into a 0-based index into a list of length items.
func ArrayIndex(v string, length int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, newErr("selection", v, "must be a valid number")
	}
	if n < 1 {
		return 0, newErr("selection", v, "must be positive")
	}
	if n > length {
		return 0, newErr("selection", v, fmt.Sprintf("must be between 1 and %d", length))
	}
	return n - 1, nil
}

func Port(n int) error {
	if n < 1 || n > 65535 {
		return newErr("port", strconv.Itoa(n), "must be between 1 and 65535")
	}
	return nil
}

// PortSpec parses "8080" (same port both sides) or "8080:80" (local:remote).
func PortSpec(spec string) (local int, remote int, err error) {
	spec = strings.TrimSpace(spec)
	parts := strings.Split(spec, ":")
	if len(parts) > 2 || spec == "" {
		return 0, 0, newErr("port spec", spec, "expected PORT or LOCAL:REMOTE")
	}
	local, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, newErr("port spec", spec, "ports must be numeric")
	}
	remote = local
	if len(parts) == 2 {
		remote, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, newErr("port spec", spec, "ports must be numeric")
		}
	}
	if err = Port(local); err != nil {
		return 0, 0, err
	}
	if err = Port(remote); err != nil {
		return 0, 0, err
	}
	return local, remote, nil
}

// IPv4 requires a dotted-quad IPv4 address.
func IPv4(v string) (string, error) {
	v = strings.TrimSpace(v)
	ip := net.ParseIP(v)
	if ip == nil || ip.To4() == nil || strings.Contains(v, ":") {
		return "", newErr("ip", v, "not a valid IPv4 address")
	}
	return v, nil
}

// CIDR normalises an IPv4 address or CIDR; a bare address becomes a /32.
func CIDR(v string) (string, error) {
	v = strings.TrimSpace(v)
	if !strings.Contains(v, "/") {
		ip, err := IPv4(v)
		if err != nil {
			return "", err
		}
		return ip + "/32", nil
	}
	ip, _, err := net.ParseCIDR(v)
	if err != nil || ip.To4() == nil {
		return "", newErr("cidr", v, "not a valid IPv4 CIDR block")
	}
	return v, nil
}

// ScheduleTime parses "HH:MM" in 24h format.
func ScheduleTime(v string) (hour int, minute int, err error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, 0, newErr("time", "", "cannot be empty")
	}
	m := scheduleTimeRegex.FindStringSubmatch(v)
	if m == nil {
		return 0, 0, newErr("time", v, "expected HH:MM in 24-hour format")
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])
	if hour > 23 {
		return 0, 0, newErr("time", v, "hour must be between 0 and 23")
	}
	if minute > 59 {
		return 0, 0, newErr("time", v, "minute must be between 0 and 59")
	}
	return hour, minute, nil
}

var DayNames = []string{"MON", "TUE", "WED", "THU", "FRI", "SAT", "SUN"}

func dayIndex(d string) int {
	for i, n := range DayNames {
		if n == d {
			return i
		}
	}
	return -1
}

// ScheduleDays expands "mon", "mon,wed,fri", "mon-fri" or a wrapping range such as "fri-mon"
// into upper-case day abbreviations, in order and without duplicates.
func ScheduleDays(v string) ([]string, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return nil, newErr("days", "", "cannot be empty")
	}
	badDay := func(d string) error {
		return newErr("days", v, fmt.Sprintf("invalid day name '%s', expected one of %s", d, strings.Join(DayNames, ", ")))
	}
	if strings.Contains(s, "-") && !strings.Contains(s, ",") {
		parts := strings.Split(s, "-")
		if len(parts) != 2 {
			return nil, newErr("days", v, "expected a range like 'mon-fri'")
		}
		start, end := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if start == "" || end == "" {
			return nil, newErr("days", v, "missing start or end day")
		}
		si, ei := dayIndex(start), dayIndex(end)
		if si < 0 {
			return nil, badDay(start)
		}
		if ei < 0 {
			return nil, badDay(end)
		}
		if si <= ei {
			return append([]string{}, DayNames[si:ei+1]...), nil
		}
		days := append([]string{}, DayNames[si:]...)
		return append(days, DayNames[:ei+1]...), nil
	}
	days := []string{}
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if dayIndex(part) < 0 {
			return nil, badDay(part)
		}
		if !seen[part] {
			seen[part] = true
			days = append(days, part)
		}
	}
	if len(days) == 0 {
		return nil, newErr("days", v, "no valid days found")
	}
	return days, nil
}

var isoDateRegex = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

var fullDayNames = []string{"MONDAY", "TUESDAY", "WEDNESDAY", "THURSDAY", "FRIDAY", "SATURDAY", "SUNDAY"}

// ScheduleDate resolves "today", "tomorrow", a day name ("tue", "tuesday": next occurrence, never today)
// or an ISO date that is not in the past, relative to today.
func ScheduleDate(v string, today time.Time) (time.Time, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s == "" {
		return time.Time{}, newErr("date", "", "cannot be empty")
	}
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	switch s {
	case "TODAY":
		return today, nil
	case "TOMORROW":
		return today.AddDate(0, 0, 1), nil
	}
	target := dayIndex(s)
	if target < 0 {
		for i, n := range fullDayNames {
			if n == s {
				target = i
			}
		}
	}
	if target >= 0 {
		// time.Weekday starts on Sunday, DayNames start on Monday
		current := (int(today.Weekday()) + 6) % 7
		ahead := target - current
		if ahead <= 0 {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead), nil
	}
	if isoDateRegex.MatchString(s) {
		d, err := time.ParseInLocation("2006-01-02", s, today.Location())
		if err != nil {
			return time.Time{}, newErr("date", v, err.Error())
		}
		if d.Before(today) {
			return time.Time{}, newErr("date", v, "is in the past, specify today or a future date")
		}
		return d, nil
	}
	return time.Time{}, newErr("date", v, "expected 'today', 'tomorrow', a day name (e.g. 'tuesday', 'tue') or YYYY-MM-DD")
}
