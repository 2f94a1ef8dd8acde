package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
)

// ScheduleStorage implements the ScheduleStorage interface for Badger
type ScheduleStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewScheduleStorage creates a new ScheduleStorage instance
func NewScheduleStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ScheduleStorage {
	return &ScheduleStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ScheduleStorage) SaveSchedule(ctx context.Context, schedule *models.Schedule) error {
	if err := schedule.Validate(); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	now := time.Now()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	if err := s.db.Store().Upsert(schedule.ID, schedule); err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var schedule models.Schedule
	if err := s.db.Store().Get(id, &schedule); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("schedule not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	return &schedule, nil
}

func (s *ScheduleStorage) ListSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return toSchedulePointers(schedules), nil
}

func (s *ScheduleStorage) ListEnabledSchedules(ctx context.Context) ([]*models.Schedule, error) {
	var schedules []models.Schedule
	if err := s.db.Store().Find(&schedules, badgerhold.Where("Enabled").Eq(true)); err != nil {
		return nil, fmt.Errorf("failed to list enabled schedules: %w", err)
	}
	return toSchedulePointers(schedules), nil
}

func (s *ScheduleStorage) UpdateScheduleNextRun(ctx context.Context, id string, nextRun time.Time, lastRun time.Time) error {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}

	schedule.NextRun = nextRun
	if !lastRun.IsZero() {
		schedule.LastRun = &lastRun
	}
	schedule.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, schedule); err != nil {
		return fmt.Errorf("failed to update schedule next run: %w", err)
	}
	return nil
}

func (s *ScheduleStorage) DisableSchedule(ctx context.Context, id string) error {
	schedule, err := s.GetSchedule(ctx, id)
	if err != nil {
		return err
	}

	if !schedule.Enabled {
		return nil // Already disabled
	}

	schedule.Enabled = false
	schedule.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, schedule); err != nil {
		return fmt.Errorf("failed to disable schedule: %w", err)
	}

	s.logger.Info().Str("schedule_id", id).Msg("Schedule disabled")
	return nil
}

func (s *ScheduleStorage) DeleteSchedule(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Schedule{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	return nil
}

func toSchedulePointers(schedules []models.Schedule) []*models.Schedule {
	result := make([]*models.Schedule, len(schedules))
	for i := range schedules {
		result[i] = &schedules[i]
	}
	return result
}
