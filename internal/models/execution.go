package models

import (
	"encoding/json"
	"time"
)

// ExecutionRecord captures one firing of a schedule. It is created when the
// dispatcher claims the schedule and finalized once every spawned worker
// context has completed or timed out. A nil EndTime means still running.
// Records are produced only by the dispatcher and are read-only for
// collaborators.
type ExecutionRecord struct {
	ID           string          `json:"id" badgerhold:"key"`
	TargetID     string          `json:"target_id"`
	ScheduleID   string          `json:"schedule_id"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      *time.Time      `json:"end_time,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage string          `json:"error_message,omitempty"`
	LogLines     []string        `json:"log_lines,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"` // Aggregated extraction results

	ContextsSpawned   int `json:"contexts_spawned"`
	ContextsSucceeded int `json:"contexts_succeeded"`
	ContextsFailed    int `json:"contexts_failed"`
	ContextsTimedOut  int `json:"contexts_timed_out"`
}

// IsRunning reports whether the record has not yet been finalized
func (r *ExecutionRecord) IsRunning() bool {
	return r.EndTime == nil
}

// AppendLog adds a timestamped line to the record's log
func (r *ExecutionRecord) AppendLog(line string) {
	r.LogLines = append(r.LogLines, time.Now().Format("15:04:05.000")+" "+line)
}
