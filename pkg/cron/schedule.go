package cron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidateTrigger checks a trigger at add-time. "at" timestamps must parse
// and lie in the future; cron expressions must parse as a 5-field schedule;
// intervals must be positive.
func ValidateTrigger(trigger Trigger, now time.Time) error {
	switch trigger.Kind {
	case TriggerAt:
		if trigger.At == "" {
			return fmt.Errorf("'at' trigger requires 'at' field")
		}
		t, err := time.Parse(time.RFC3339, trigger.At)
		if err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
		if !t.After(now) {
			return fmt.Errorf("timestamp %s is in the past", trigger.At)
		}
		return nil

	case TriggerCron:
		if trigger.Expr == "" {
			return fmt.Errorf("'cron' trigger requires 'expr' field")
		}
		if _, err := parseCronExpr(trigger.Expr); err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		if trigger.TZ != "" {
			if _, err := time.LoadLocation(trigger.TZ); err != nil {
				return fmt.Errorf("invalid timezone: %w", err)
			}
		}
		return nil

	case TriggerEvery:
		if trigger.EverySeconds <= 0 {
			return fmt.Errorf("'every' trigger requires positive 'everySeconds' value")
		}
		return nil

	default:
		return fmt.Errorf("unknown trigger kind: %s", trigger.Kind)
	}
}

// NextRun computes the first fire time strictly after now.
func NextRun(trigger Trigger, now time.Time) (time.Time, error) {
	switch trigger.Kind {
	case TriggerAt:
		t, err := time.Parse(time.RFC3339, trigger.At)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return t, nil

	case TriggerCron:
		sched, err := parseCronExpr(trigger.Expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
		}
		if trigger.TZ != "" {
			loc, err := time.LoadLocation(trigger.TZ)
			if err != nil {
				return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
			}
			now = now.In(loc)
		}
		return sched.Next(now), nil

	case TriggerEvery:
		if trigger.EverySeconds <= 0 {
			return time.Time{}, fmt.Errorf("'every' trigger requires positive 'everySeconds' value")
		}
		return now.Add(time.Duration(trigger.EverySeconds) * time.Second), nil

	default:
		return time.Time{}, fmt.Errorf("unknown trigger kind: %s", trigger.Kind)
	}
}

// parseCronExpr parses a standard 5-field cron expression.
func parseCronExpr(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(expr)
}
