package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
)

var (
	configFile string
	serverPort int
	serverHost string

	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:   "tapwire",
	Short: "Scheduled network interception orchestrator",
	Long: `Tapwire visits target web resources on a schedule, opens an isolated
headless-browser sandbox per visit, intercepts the network calls the page
makes, and extracts structured payloads from matching JSON responses.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initialize()
	},
}

// initialize runs the startup sequence: config (defaults -> file -> env ->
// flags), then logger, then banner.
func initialize() error {
	path := configFile
	if path == "" {
		if _, err := os.Stat("tapwire.toml"); err == nil {
			path = "tapwire.toml"
		}
	}

	var err error
	config, err = common.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	common.ApplyFlagOverrides(config, serverPort, serverHost)

	logger = common.InitLogger(config)

	logger.Info().
		Str("config_file", path).
		Str("log_level", config.Logging.Level).
		Msg("Configuration loaded")
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().IntVarP(&serverPort, "port", "p", 0, "Server port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&serverHost, "host", "", "Server host (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
