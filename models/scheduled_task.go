package models

import (
	"fmt"
	"time"
)

// TriggerKind selects how a scheduled task's fire times are computed.
type TriggerKind string

const (
	TriggerCron     TriggerKind = "cron"
	TriggerInterval TriggerKind = "interval"
	TriggerDate     TriggerKind = "date"
)

// DefaultMisfireGraceSeconds is how long after a missed fire time a task may
// still be executed when the scheduler comes back up.
const DefaultMisfireGraceSeconds = 300

// TriggerSpec describes when a task fires. Exactly one of the kind-specific
// field groups is meaningful; the struct is stored as JSON in the job store.
type TriggerSpec struct {
	Kind TriggerKind `json:"kind"`

	// Cron: standard 5-field expression, optional IANA timezone.
	Expr     string `json:"expr,omitempty"`
	Timezone string `json:"timezone,omitempty"`

	// Interval: period between fires, in seconds.
	EverySeconds int64 `json:"every_seconds,omitempty"`

	// Date: the single fire time.
	RunAt *time.Time `json:"run_at,omitempty"`
}

// CronTrigger builds a cron trigger from a 5-field expression. An empty
// timezone means the scheduler's local time.
func CronTrigger(expr, timezone string) TriggerSpec {
	return TriggerSpec{Kind: TriggerCron, Expr: expr, Timezone: timezone}
}

// IntervalTrigger builds a trigger that fires repeatedly at the given period.
func IntervalTrigger(every time.Duration) TriggerSpec {
	return TriggerSpec{Kind: TriggerInterval, EverySeconds: int64(every / time.Second)}
}

// IntervalTriggerOf builds an interval trigger from calendar-style components.
func IntervalTriggerOf(weeks, days, hours, minutes, seconds int) TriggerSpec {
	every := time.Duration(weeks)*7*24*time.Hour +
		time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	return IntervalTrigger(every)
}

// DateTrigger builds a one-shot trigger that fires at the given time.
func DateTrigger(runAt time.Time) TriggerSpec {
	return TriggerSpec{Kind: TriggerDate, RunAt: &runAt}
}

// Every returns the interval period.
func (t TriggerSpec) Every() time.Duration {
	return time.Duration(t.EverySeconds) * time.Second
}

// Validate checks the spec's kind-specific fields.
func (t TriggerSpec) Validate() error {
	switch t.Kind {
	case TriggerCron:
		if t.Expr == "" {
			return fmt.Errorf("cron trigger requires an expression")
		}
	case TriggerInterval:
		if t.EverySeconds <= 0 {
			return fmt.Errorf("interval trigger requires a positive period")
		}
	case TriggerDate:
		if t.RunAt == nil {
			return fmt.Errorf("date trigger requires a run time")
		}
	default:
		return fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	return nil
}

// ScheduledTask is a persisted job definition plus its next fire time.
// Tasks are keyed by ID; re-adding an existing ID overwrites the trigger
// and arguments.
type ScheduledTask struct {
	ID                  string            `db:"id"`
	Trigger             TriggerSpec       `db:"trigger"`
	Callable            string            `db:"callable"`
	Args                map[string]string `db:"args"`
	MisfireGraceSeconds int               `db:"misfire_grace_seconds"`
	NextFire            *time.Time        `db:"next_fire"`
}

// MisfireGrace returns the task's grace window, applying the default when
// the stored value is unset.
func (t *ScheduledTask) MisfireGrace() time.Duration {
	if t.MisfireGraceSeconds <= 0 {
		return DefaultMisfireGraceSeconds * time.Second
	}
	return time.Duration(t.MisfireGraceSeconds) * time.Second
}
