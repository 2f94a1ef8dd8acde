// Package clock computes due times for schedules. It is purely functional:
// nothing here mutates a schedule or touches storage, so the dispatcher can
// be tested with any notion of "now".
package clock

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tapwire/tapwire/internal/models"
)

// ComputeNextRun returns the next run time for a schedule relative to now.
//
//   - cron: next activation of the standard 5-field expression after now
//   - interval: now + interval minutes
//   - once: the fixed fire-at timestamp; the caller is responsible for
//     disabling the schedule after its single firing
//
// Invalid configuration (bad cron expression, missing kind parameter) is
// surfaced synchronously; the dispatcher skips such schedules and logs.
func ComputeNextRun(s *models.Schedule, now time.Time) (time.Time, error) {
	switch s.Kind {
	case models.ScheduleKindCron:
		schedule, err := cron.ParseStandard(s.CronExpr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", s.CronExpr, err)
		}
		return schedule.Next(now), nil

	case models.ScheduleKindInterval:
		if s.IntervalMinutes < 1 {
			return time.Time{}, fmt.Errorf("interval schedule %s has interval_minutes %d, must be >= 1", s.ID, s.IntervalMinutes)
		}
		return now.Add(time.Duration(s.IntervalMinutes) * time.Minute), nil

	case models.ScheduleKindOnce:
		if s.FireAt == nil {
			return time.Time{}, fmt.Errorf("once schedule %s has no fire_at timestamp", s.ID)
		}
		return *s.FireAt, nil

	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

// IsDue reports whether a schedule should fire: enabled, with a computed
// next run at or before now.
func IsDue(s *models.Schedule, now time.Time) bool {
	if !s.Enabled || s.NextRun.IsZero() {
		return false
	}
	return !s.NextRun.After(now)
}
