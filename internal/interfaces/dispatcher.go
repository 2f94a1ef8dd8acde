package interfaces

import (
	"context"
	"time"

	"github.com/tapwire/tapwire/internal/models"
)

// DispatcherService drives the schedule tick loop. It is the only part of
// the system that initiates firings.
type DispatcherService interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	// TriggerSchedule fires a schedule immediately, subject to the same
	// claim rules as a timer tick.
	TriggerSchedule(ctx context.Context, scheduleID string) error
}

// ContextResult is the outcome of one worker context
type ContextResult struct {
	SandboxID string
	Status    models.ContextStatus
	Exchanges int
	Err       error
}

// WorkerContextService runs one isolated worker context per call and
// reports live context state for status surfaces.
type WorkerContextService interface {
	RunContext(ctx context.Context, schedule *models.Schedule, target *models.Target) ContextResult
	Snapshot() []models.WorkerContext
	// StalledContexts returns live contexts without a recent heartbeat.
	// Stalled contexts are reported, never closed early; the hard timeout
	// still governs teardown.
	StalledContexts(now time.Time) []models.WorkerContext
}
