// Package app wires the application together: storage, the browser sandbox
// platform, the worker context manager, and the dispatcher.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/platform/browser"
	"github.com/tapwire/tapwire/internal/services/dispatcher"
	"github.com/tapwire/tapwire/internal/services/sandbox"
	"github.com/tapwire/tapwire/internal/storage/badger"
)

// App holds all initialized application components
type App struct {
	Config     *common.Config
	Logger     arbor.ILogger
	Storage    interfaces.StorageManager
	Platform   interfaces.SandboxPlatform
	Workers    interfaces.WorkerContextService
	Dispatcher interfaces.DispatcherService
}

// New initializes the application components in dependency order
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	storage, err := badger.NewManager(logger, &config.Storage.Badger, config.Dispatcher.ExchangeCap)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	platform := browser.NewPlatform(config.Sandbox, logger)
	workers := sandbox.NewManager(platform, storage.ExchangeStorage(), config, logger)
	dispatch := dispatcher.NewService(config, storage, workers, logger)

	logger.Info().
		Str("environment", config.Environment).
		Str("storage_path", config.Storage.Badger.Path).
		Msg("Application initialized")

	return &App{
		Config:     config,
		Logger:     logger,
		Storage:    storage,
		Platform:   platform,
		Workers:    workers,
		Dispatcher: dispatch,
	}, nil
}

// Start begins dispatching scheduled firings
func (a *App) Start(ctx context.Context) error {
	return a.Dispatcher.Start(ctx)
}

// Close shuts components down in reverse dependency order. In-flight
// firings are waited on before storage closes so finalization can persist.
func (a *App) Close() error {
	if err := a.Dispatcher.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Dispatcher stop reported error")
	}
	if err := a.Platform.Shutdown(); err != nil {
		a.Logger.Warn().Err(err).Msg("Platform shutdown reported error")
	}
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Application closed")
	return nil
}
