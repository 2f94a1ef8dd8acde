package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db        *BadgerDB
	targets   interfaces.TargetStorage
	schedules interfaces.ScheduleStorage
	records   interfaces.ExecutionStorage
	exchanges interfaces.ExchangeStorage
	logger    arbor.ILogger
}

// NewManager creates a new Badger storage manager. exchangeCap bounds the
// number of captured exchanges retained per schedule.
func NewManager(logger arbor.ILogger, config *common.BadgerConfig, exchangeCap int) (interfaces.StorageManager, error) {
	db, err := OpenBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:        db,
		targets:   NewTargetStorage(db, logger),
		schedules: NewScheduleStorage(db, logger),
		records:   NewExecutionStorage(db, logger),
		exchanges: NewExchangeStorage(db, logger, exchangeCap),
		logger:    logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// TargetStorage returns the Target storage interface
func (m *Manager) TargetStorage() interfaces.TargetStorage {
	return m.targets
}

// ScheduleStorage returns the Schedule storage interface
func (m *Manager) ScheduleStorage() interfaces.ScheduleStorage {
	return m.schedules
}

// ExecutionStorage returns the ExecutionRecord storage interface
func (m *Manager) ExecutionStorage() interfaces.ExecutionStorage {
	return m.records
}

// ExchangeStorage returns the CapturedExchange storage interface
func (m *Manager) ExchangeStorage() interfaces.ExchangeStorage {
	return m.exchanges
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
