package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// ParseSchedule parses a job schedule string into a minimum interval.
//
// The loop only guarantees minimum spacing between invocation starts, so
// fixed-point cron expressions are not supported. Accepted forms:
//
//   - Go duration: "55m", "2h30m"
//   - Bare integer seconds: "30"
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//   - Cron @-descriptors that reduce to a constant delay: "@every 55m",
//     "@hourly", "@daily"
func ParseSchedule(raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("schedule required")
	}

	if strings.HasPrefix(s, "@") {
		return parseDescriptor(s)
	}

	if m := reHHMM.FindStringSubmatch(s); m != nil {
		return parseHHMM(m)
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("schedule %q: seconds must be > 0", raw)
		}
		return time.Duration(n) * time.Second, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("schedule %q: interval must be > 0", raw)
		}
		return d, nil
	}

	return 0, fmt.Errorf(
		"invalid schedule %q (use a duration like '55m', seconds like '30', HH:MM like '02:30', or '@every 55m')",
		raw,
	)
}

// parseDescriptor resolves a cron @-descriptor to a constant delay. Field
// expressions ("*/5 * * * *") parse to calendar schedules and are rejected:
// the loop cannot promise fixed-point firing.
func parseDescriptor(s string) (time.Duration, error) {
	sched, err := cron.ParseStandard(s)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule %q: %w", s, err)
	}
	switch v := sched.(type) {
	case cron.ConstantDelaySchedule:
		if v.Delay <= 0 {
			return 0, fmt.Errorf("schedule %q: interval must be > 0", s)
		}
		return v.Delay, nil
	default:
		// @hourly/@daily/... parse to calendar specs; approximate them by
		// their period, which is what a minimum-spacing loop can honor.
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "@hourly":
			return time.Hour, nil
		case "@daily", "@midnight":
			return 24 * time.Hour, nil
		case "@weekly":
			return 7 * 24 * time.Hour, nil
		}
		return 0, fmt.Errorf("schedule %q: only constant-delay schedules are supported", s)
	}
}

func parseHHMM(m []string) (time.Duration, error) {
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q:%q", m[1], m[2])
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
