package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Dispatcher  DispatcherConfig `toml:"dispatcher"`
	Sandbox     SandboxConfig    `toml:"sandbox"`
	Intercept   InterceptConfig  `toml:"intercept"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// DispatcherConfig controls the schedule tick loop and firing fan-out
type DispatcherConfig struct {
	TickInterval      Duration `toml:"tick_interval"` // How often due schedules are polled
	BatchSize         int      `toml:"batch_size" validate:"gte=1"`
	BatchDelay        Duration `toml:"batch_delay"`                   // Pause between worker-context batches
	MaxGlobalContexts int      `toml:"max_global_contexts"`           // 0 = no cross-schedule cap
	ExchangeCap       int      `toml:"exchange_cap" validate:"gte=1"` // Max stored exchanges per schedule
}

// SandboxConfig controls the per-visit browser sandbox
type SandboxConfig struct {
	Headless         bool     `toml:"headless"`
	NoSandbox        bool     `toml:"no_sandbox"`
	DisableGPU       bool     `toml:"disable_gpu"`
	UserAgent        string   `toml:"user_agent"`
	ContextTimeout   Duration `toml:"context_timeout"`   // Hard budget per worker context
	InactivityWindow Duration `toml:"inactivity_window"` // No-heartbeat window before a context reports stalled
	InjectionRetries int      `toml:"injection_retries" validate:"gte=1,lte=10"`
}

// InterceptConfig controls URL matching and payload extraction
type InterceptConfig struct {
	URLPattern  string   `toml:"url_pattern"`  // Primary containment pattern
	Alternates  []string `toml:"alternates"`   // Fallback containment patterns
	ExtractPath string   `toml:"extract_path"` // Dot-separated path into the JSON body
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/tapwire.db",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Dispatcher: DispatcherConfig{
			TickInterval:      Duration(30 * time.Second),
			BatchSize:         3,
			BatchDelay:        Duration(2 * time.Second),
			MaxGlobalContexts: 0,
			ExchangeCap:       200,
		},
		Sandbox: SandboxConfig{
			Headless:         true,
			NoSandbox:        true,
			DisableGPU:       true,
			UserAgent:        "Tapwire/1.0",
			ContextTimeout:   Duration(45 * time.Second),
			InactivityWindow: Duration(15 * time.Second),
			InjectionRetries: 3,
		},
		Intercept: InterceptConfig{},
	}
}

// LoadFromFile loads configuration from a TOML file layered over the
// defaults, then applies environment overrides and validates the result.
// An empty path skips the file layer.
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies TAPWIRE_* environment variables over the loaded config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("TAPWIRE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("TAPWIRE_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("TAPWIRE_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("TAPWIRE_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("TAPWIRE_URL_PATTERN"); v != "" {
		config.Intercept.URLPattern = v
	}
	if v := os.Getenv("TAPWIRE_EXTRACT_PATH"); v != "" {
		config.Intercept.ExtractPath = v
	}
	if v := os.Getenv("TAPWIRE_HEADLESS"); v != "" {
		if headless, err := strconv.ParseBool(v); err == nil {
			config.Sandbox.Headless = headless
		}
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port != 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.Dispatcher.TickInterval.Std() < time.Second {
		return fmt.Errorf("dispatcher tick_interval must be at least 1s, got %s", c.Dispatcher.TickInterval)
	}
	if c.Sandbox.ContextTimeout.Std() < 5*time.Second {
		return fmt.Errorf("sandbox context_timeout must be at least 5s, got %s", c.Sandbox.ContextTimeout)
	}
	if c.Dispatcher.MaxGlobalContexts < 0 {
		return fmt.Errorf("dispatcher max_global_contexts must not be negative, got %d", c.Dispatcher.MaxGlobalContexts)
	}

	return nil
}

// ValidateCronSchedule validates a cron expression using the standard
// 5-field parser. Shared by config validation and the schedule clock.
func ValidateCronSchedule(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("cron expression is empty")
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
