package badger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tapwire/tapwire/internal/common"
)

// BadgerDB owns the embedded badgerhold store shared by the per-entity
// storage types. One connection serves the whole process.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// OpenBadgerDB opens the store directory, wiping it first when the config
// asks for a clean start.
func OpenBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		wipeStoreDir(logger, config.Path)
	}
	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	// Badger's built-in logger is noisy; arbor reports what matters.
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", config.Path, err)
	}

	logger.Debug().Str("path", config.Path).Msg("Badger store opened")

	return &BadgerDB{
		store:  store,
		logger: logger,
		config: config,
	}, nil
}

// wipeStoreDir deletes the store directory for reset_on_startup runs.
// A wipe failure is logged, not fatal; badgerhold will report anything
// genuinely unusable when it opens.
func wipeStoreDir(logger arbor.ILogger, path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	logger.Debug().Str("path", path).Msg("Resetting Badger store directory")
	if err := os.RemoveAll(path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Failed to reset store directory")
	}
}

// Store returns the underlying badgerhold store
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Close closes the store. Safe on a connection that never opened.
func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
