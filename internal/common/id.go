package common

import (
	"github.com/google/uuid"
)

// NewTargetID generates a unique target ID with the "tgt_" prefix
func NewTargetID() string {
	return "tgt_" + uuid.New().String()
}

// NewScheduleID generates a unique schedule ID with the "sched_" prefix
func NewScheduleID() string {
	return "sched_" + uuid.New().String()
}

// NewExecutionID generates a unique execution record ID with the "exec_" prefix
func NewExecutionID() string {
	return "exec_" + uuid.New().String()
}

// NewExchangeID generates a unique captured exchange ID with the "exch_" prefix
func NewExchangeID() string {
	return "exch_" + uuid.New().String()
}

// NewSandboxID generates a unique sandbox ID with the "sbx_" prefix
func NewSandboxID() string {
	return "sbx_" + uuid.New().String()
}
