package models

import (
	"errors"
	"fmt"
	"time"
)

// ScheduleKind represents how a schedule computes its next run
type ScheduleKind string

const (
	ScheduleKindCron     ScheduleKind = "cron"
	ScheduleKindInterval ScheduleKind = "interval"
	ScheduleKindOnce     ScheduleKind = "once"
)

// IsValidScheduleKind checks if a given ScheduleKind is one of the valid constants
func IsValidScheduleKind(kind ScheduleKind) bool {
	switch kind {
	case ScheduleKindCron, ScheduleKindInterval, ScheduleKindOnce:
		return true
	default:
		return false
	}
}

// Schedule describes when and how often a target is visited, and how many
// parallel worker contexts each firing spawns.
//
// Invariants:
//   - NextRun is consistent with Kind and its parameter at the moment it
//     was last computed.
//   - A "once" schedule is disabled immediately after its single firing.
//   - Other kinds recompute NextRun strictly after firing.
type Schedule struct {
	ID              string       `json:"id" badgerhold:"key"`
	TargetID        string       `json:"target_id"`
	Kind            ScheduleKind `json:"kind"`
	CronExpr        string       `json:"cron_expr,omitempty"`        // kind=cron
	IntervalMinutes int          `json:"interval_minutes,omitempty"` // kind=interval
	FireAt          *time.Time   `json:"fire_at,omitempty"`          // kind=once
	Quantity        int          `json:"quantity"`                   // Worker contexts per firing, >= 1
	Enabled         bool         `json:"enabled"`
	NextRun         time.Time    `json:"next_run"`
	LastRun         *time.Time   `json:"last_run,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Validate validates the schedule configuration. The kind-specific
// parameter must be present for the declared kind.
func (s *Schedule) Validate() error {
	if s.ID == "" {
		return errors.New("schedule ID is required")
	}
	if s.TargetID == "" {
		return errors.New("schedule target ID is required")
	}
	if !IsValidScheduleKind(s.Kind) {
		return fmt.Errorf("invalid schedule kind: %s", s.Kind)
	}
	if s.Quantity < 1 {
		return fmt.Errorf("schedule quantity must be at least 1, got %d", s.Quantity)
	}

	switch s.Kind {
	case ScheduleKindCron:
		if s.CronExpr == "" {
			return errors.New("cron schedule requires a cron expression")
		}
	case ScheduleKindInterval:
		if s.IntervalMinutes < 1 {
			return fmt.Errorf("interval schedule requires interval_minutes >= 1, got %d", s.IntervalMinutes)
		}
	case ScheduleKindOnce:
		if s.FireAt == nil {
			return errors.New("once schedule requires a fire_at timestamp")
		}
	}

	return nil
}
