package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
)

// ExecutionStorage implements the ExecutionStorage interface for Badger
type ExecutionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewExecutionStorage creates a new ExecutionStorage instance
func NewExecutionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ExecutionStorage {
	return &ExecutionStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ExecutionStorage) CreateExecutionRecord(ctx context.Context, record *models.ExecutionRecord) (string, error) {
	if record.ID == "" {
		record.ID = common.NewExecutionID()
	}
	if record.StartTime.IsZero() {
		record.StartTime = time.Now()
	}

	if err := s.db.Store().Insert(record.ID, record); err != nil {
		return "", fmt.Errorf("failed to create execution record: %w", err)
	}
	return record.ID, nil
}

func (s *ExecutionStorage) UpdateExecutionRecord(ctx context.Context, record *models.ExecutionRecord) error {
	if record.ID == "" {
		return fmt.Errorf("execution record ID is required")
	}

	if err := s.db.Store().Update(record.ID, record); err != nil {
		if err == badgerhold.ErrNotFound {
			return fmt.Errorf("execution record not found: %s", record.ID)
		}
		return fmt.Errorf("failed to update execution record: %w", err)
	}
	return nil
}

func (s *ExecutionStorage) GetExecutionRecord(ctx context.Context, id string) (*models.ExecutionRecord, error) {
	var record models.ExecutionRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("execution record not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get execution record: %w", err)
	}
	return &record, nil
}

func (s *ExecutionStorage) ListExecutionRecords(ctx context.Context, scheduleID string, limit int) ([]*models.ExecutionRecord, error) {
	query := badgerhold.Where("ScheduleID").Eq(scheduleID).SortBy("StartTime").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.ExecutionRecord
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, fmt.Errorf("failed to list execution records: %w", err)
	}

	result := make([]*models.ExecutionRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

func (s *ExecutionStorage) ListRunningExecutionRecords(ctx context.Context) ([]*models.ExecutionRecord, error) {
	var records []models.ExecutionRecord
	if err := s.db.Store().Find(&records, badgerhold.Where("EndTime").IsNil()); err != nil {
		return nil, fmt.Errorf("failed to list running execution records: %w", err)
	}

	result := make([]*models.ExecutionRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}
