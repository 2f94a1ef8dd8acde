package interfaces

import (
	"context"
	"time"

	"github.com/tapwire/tapwire/internal/models"
)

// TargetStorage defines the interface for target persistence
type TargetStorage interface {
	SaveTarget(ctx context.Context, target *models.Target) error
	GetTarget(ctx context.Context, id string) (*models.Target, error)
	ListTargets(ctx context.Context) ([]*models.Target, error)
	DeleteTarget(ctx context.Context, id string) error
}

// ScheduleStorage defines the interface for schedule persistence
type ScheduleStorage interface {
	SaveSchedule(ctx context.Context, schedule *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)
	ListSchedules(ctx context.Context) ([]*models.Schedule, error)
	ListEnabledSchedules(ctx context.Context) ([]*models.Schedule, error)
	UpdateScheduleNextRun(ctx context.Context, id string, nextRun time.Time, lastRun time.Time) error
	DisableSchedule(ctx context.Context, id string) error
	DeleteSchedule(ctx context.Context, id string) error
}

// ExecutionStorage defines the interface for execution record persistence
type ExecutionStorage interface {
	CreateExecutionRecord(ctx context.Context, record *models.ExecutionRecord) (string, error)
	UpdateExecutionRecord(ctx context.Context, record *models.ExecutionRecord) error
	GetExecutionRecord(ctx context.Context, id string) (*models.ExecutionRecord, error)
	ListExecutionRecords(ctx context.Context, scheduleID string, limit int) ([]*models.ExecutionRecord, error)
	// ListRunningExecutionRecords returns records with no end time. Used at
	// startup to reconcile firings abandoned by a crash.
	ListRunningExecutionRecords(ctx context.Context) ([]*models.ExecutionRecord, error)
}

// ExchangeStorage defines the interface for captured exchange persistence.
// Exchanges are append-only and capped per schedule; appending past the cap
// evicts the oldest entries first.
type ExchangeStorage interface {
	AppendCapturedExchange(ctx context.Context, scheduleID string, exchange *models.CapturedExchange) error
	ListCapturedExchanges(ctx context.Context, scheduleID string) ([]*models.CapturedExchange, error)
	CountCapturedExchanges(ctx context.Context, scheduleID string) (int, error)
	DeleteCapturedExchanges(ctx context.Context, scheduleID string) error
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	TargetStorage() TargetStorage
	ScheduleStorage() ScheduleStorage
	ExecutionStorage() ExecutionStorage
	ExchangeStorage() ExchangeStorage
	Close() error
}
