package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// EverySchedule builds a fixed-interval schedule.
func EverySchedule(interval time.Duration) (Schedule, error) {
	if interval <= 0 {
		return Schedule{}, fmt.Errorf("every schedule requires a positive interval")
	}
	return Schedule{Kind: "every", Every: interval}, nil
}

// CronSchedule builds a cron-expression schedule.
func CronSchedule(expr, timezone string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron schedule requires an expression")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("invalid cron expression: %w", err)
	}
	return Schedule{Kind: "cron", CronExpr: expr, Timezone: strings.TrimSpace(timezone)}, nil
}

// AtSchedule builds a one-shot schedule from an RFC3339 or
// "2006-01-02 15:04" timestamp.
func AtSchedule(value, timezone string) (Schedule, error) {
	at, err := parseAt(value, timezone)
	if err != nil {
		return Schedule{}, err
	}
	return Schedule{Kind: "at", At: at, Timezone: strings.TrimSpace(timezone)}, nil
}

// Next returns the next run time strictly after now. ok is false when the
// schedule will never fire again (a past one-shot).
func (s Schedule) Next(now time.Time) (next time.Time, ok bool, err error) {
	switch s.Kind {
	case "at":
		if s.At.IsZero() {
			return time.Time{}, false, fmt.Errorf("at schedule missing timestamp")
		}
		if !s.At.After(now) {
			return time.Time{}, false, nil
		}
		return s.At, true, nil
	case "every":
		if s.Every <= 0 {
			return time.Time{}, false, fmt.Errorf("every schedule missing duration")
		}
		return now.Add(s.Every), true, nil
	case "cron":
		if s.CronExpr == "" {
			return time.Time{}, false, fmt.Errorf("cron schedule missing expression")
		}
		loc := now.Location()
		if s.Timezone != "" {
			if tz, err := time.LoadLocation(s.Timezone); err == nil {
				loc = tz
			}
		}
		schedule, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse cron expression: %w", err)
		}
		n := schedule.Next(now.In(loc))
		return n, !n.IsZero(), nil
	default:
		return time.Time{}, false, fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
}

// Describe renders the schedule for listings.
func (s Schedule) Describe() string {
	switch s.Kind {
	case "at":
		return "at " + s.At.Format(time.RFC3339)
	case "every":
		return "every " + s.Every.String()
	case "cron":
		if s.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", s.CronExpr, s.Timezone)
		}
		return fmt.Sprintf("cron %q", s.CronExpr)
	}
	return "unscheduled"
}

func parseAt(value, tz string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("at schedule value required")
	}
	if tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			if parsed, err := time.ParseInLocation(time.RFC3339, value, loc); err == nil {
				return parsed, nil
			}
			if parsed, err := time.ParseInLocation("2006-01-02 15:04", value, loc); err == nil {
				return parsed, nil
			}
		}
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	if parsed, err := time.Parse("2006-01-02 15:04", value); err == nil {
		return parsed, nil
	}
	return time.Time{}, fmt.Errorf("invalid at schedule: %s", value)
}
