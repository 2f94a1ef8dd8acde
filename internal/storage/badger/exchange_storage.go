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

// defaultExchangeCap bounds stored exchanges per schedule when no cap is
// configured.
const defaultExchangeCap = 200

// ExchangeStorage implements the ExchangeStorage interface for Badger.
// Captured exchanges are append-only and capped per schedule: appending
// past the cap evicts the oldest entries first.
type ExchangeStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	cap    int
}

// NewExchangeStorage creates a new ExchangeStorage instance
func NewExchangeStorage(db *BadgerDB, logger arbor.ILogger, cap int) interfaces.ExchangeStorage {
	if cap < 1 {
		cap = defaultExchangeCap
	}
	return &ExchangeStorage{
		db:     db,
		logger: logger,
		cap:    cap,
	}
}

func (s *ExchangeStorage) AppendCapturedExchange(ctx context.Context, scheduleID string, exchange *models.CapturedExchange) error {
	if scheduleID == "" {
		return fmt.Errorf("schedule ID is required")
	}
	if exchange.ID == "" {
		exchange.ID = common.NewExchangeID()
	}
	exchange.ScheduleID = scheduleID
	if exchange.CapturedAt.IsZero() {
		exchange.CapturedAt = time.Now()
	}

	if err := s.db.Store().Insert(exchange.ID, exchange); err != nil {
		return fmt.Errorf("failed to append captured exchange: %w", err)
	}

	return s.evictOverflow(scheduleID)
}

// evictOverflow deletes the oldest exchanges for a schedule until the
// stored count is back at the cap.
func (s *ExchangeStorage) evictOverflow(scheduleID string) error {
	count, err := s.db.Store().Count(&models.CapturedExchange{}, badgerhold.Where("ScheduleID").Eq(scheduleID))
	if err != nil {
		return fmt.Errorf("failed to count captured exchanges: %w", err)
	}

	overflow := int(count) - s.cap
	if overflow <= 0 {
		return nil
	}

	var oldest []models.CapturedExchange
	query := badgerhold.Where("ScheduleID").Eq(scheduleID).SortBy("CapturedAt").Limit(overflow)
	if err := s.db.Store().Find(&oldest, query); err != nil {
		return fmt.Errorf("failed to find oldest exchanges for eviction: %w", err)
	}

	for i := range oldest {
		if err := s.db.Store().Delete(oldest[i].ID, &models.CapturedExchange{}); err != nil && err != badgerhold.ErrNotFound {
			return fmt.Errorf("failed to evict exchange %s: %w", oldest[i].ID, err)
		}
	}

	s.logger.Debug().
		Str("schedule_id", scheduleID).
		Int("evicted", overflow).
		Int("cap", s.cap).
		Msg("Evicted oldest captured exchanges")

	return nil
}

func (s *ExchangeStorage) ListCapturedExchanges(ctx context.Context, scheduleID string) ([]*models.CapturedExchange, error) {
	var exchanges []models.CapturedExchange
	query := badgerhold.Where("ScheduleID").Eq(scheduleID).SortBy("CapturedAt")
	if err := s.db.Store().Find(&exchanges, query); err != nil {
		return nil, fmt.Errorf("failed to list captured exchanges: %w", err)
	}

	result := make([]*models.CapturedExchange, len(exchanges))
	for i := range exchanges {
		result[i] = &exchanges[i]
	}
	return result, nil
}

func (s *ExchangeStorage) CountCapturedExchanges(ctx context.Context, scheduleID string) (int, error) {
	count, err := s.db.Store().Count(&models.CapturedExchange{}, badgerhold.Where("ScheduleID").Eq(scheduleID))
	if err != nil {
		return 0, fmt.Errorf("failed to count captured exchanges: %w", err)
	}
	return int(count), nil
}

func (s *ExchangeStorage) DeleteCapturedExchanges(ctx context.Context, scheduleID string) error {
	if err := s.db.Store().DeleteMatching(&models.CapturedExchange{}, badgerhold.Where("ScheduleID").Eq(scheduleID)); err != nil {
		return fmt.Errorf("failed to delete captured exchanges: %w", err)
	}
	return nil
}
