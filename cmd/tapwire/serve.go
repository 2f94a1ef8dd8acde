package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tapwire/tapwire/internal/app"
	"github.com/tapwire/tapwire/internal/common"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and interception engine",
	Long:  `Starts the dispatcher tick loop and serves scheduled firings until interrupted.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	common.PrintBanner(common.GetVersion())

	application, err := app.New(config, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		application.Close()
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	logger.Info().Msg("Tapwire running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	cancel()

	if err := application.Close(); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
		return err
	}

	logger.Info().Msg("Tapwire stopped")
	return nil
}
