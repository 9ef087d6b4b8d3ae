package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"guildbot/models"
)

// NextFire computes the first fire time strictly after the given instant.
// A nil time with a nil error means the trigger is exhausted and will
// never fire again.
func NextFire(spec models.TriggerSpec, after time.Time) (*time.Time, error) {
	switch spec.Kind {
	case models.TriggerCron:
		sched, err := parseCron(spec)
		if err != nil {
			return nil, err
		}
		next := sched.Next(after)
		if next.IsZero() {
			return nil, nil
		}
		return &next, nil

	case models.TriggerInterval:
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		next := after.Add(spec.Every())
		return &next, nil

	case models.TriggerDate:
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if !spec.RunAt.After(after) {
			return nil, nil
		}
		runAt := *spec.RunAt
		return &runAt, nil

	default:
		return nil, fmt.Errorf("unknown trigger kind %q", spec.Kind)
	}
}

// nextAfterFire advances a trigger past a slot that just fired or was
// skipped. Interval triggers stay anchored to their original slot
// sequence (dispatch latency never shifts the schedule) and jump over
// any slots already in the past. Cron triggers resume from now, and
// date triggers are exhausted.
func nextAfterFire(spec models.TriggerSpec, slot, now time.Time) (*time.Time, error) {
	switch spec.Kind {
	case models.TriggerInterval:
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		every := spec.Every()
		elapsed := now.Sub(slot)
		if elapsed < 0 {
			elapsed = 0
		}
		skipped := elapsed/every + 1
		next := slot.Add(skipped * every)
		return &next, nil
	default:
		return NextFire(spec, now)
	}
}

func parseCron(spec models.TriggerSpec) (cron.Schedule, error) {
	expr := spec.Expr
	if spec.Timezone != "" {
		if _, err := time.LoadLocation(spec.Timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone %q: %w", spec.Timezone, err)
		}
		expr = "CRON_TZ=" + spec.Timezone + " " + expr
	}
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec.Expr, err)
	}
	return sched, nil
}

// ValidateTrigger checks that a trigger spec is well formed and, for
// cron triggers, that the expression and timezone parse.
func ValidateTrigger(spec models.TriggerSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}
	if spec.Kind == models.TriggerCron {
		if _, err := parseCron(spec); err != nil {
			return err
		}
	}
	return nil
}
