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

// TargetStorage implements the TargetStorage interface for Badger
type TargetStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTargetStorage creates a new TargetStorage instance
func NewTargetStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TargetStorage {
	return &TargetStorage{
		db:     db,
		logger: logger,
	}
}

func (s *TargetStorage) SaveTarget(ctx context.Context, target *models.Target) error {
	if err := target.Validate(); err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}

	now := time.Now()
	if target.CreatedAt.IsZero() {
		target.CreatedAt = now
	}
	target.UpdatedAt = now

	if err := s.db.Store().Upsert(target.ID, target); err != nil {
		return fmt.Errorf("failed to save target: %w", err)
	}
	return nil
}

func (s *TargetStorage) GetTarget(ctx context.Context, id string) (*models.Target, error) {
	var target models.Target
	if err := s.db.Store().Get(id, &target); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("target not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get target: %w", err)
	}
	return &target, nil
}

func (s *TargetStorage) ListTargets(ctx context.Context) ([]*models.Target, error) {
	var targets []models.Target
	if err := s.db.Store().Find(&targets, badgerhold.Where("ID").Ne("").SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	result := make([]*models.Target, len(targets))
	for i := range targets {
		result[i] = &targets[i]
	}
	return result, nil
}

func (s *TargetStorage) DeleteTarget(ctx context.Context, id string) error {
	if err := s.db.Store().Delete(id, &models.Target{}); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete target: %w", err)
	}
	return nil
}
