package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tapwire.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromFileDefaults(t *testing.T) {
	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "development", config.Environment)
	assert.Equal(t, 30*time.Second, config.Dispatcher.TickInterval.Std())
	assert.Equal(t, 3, config.Dispatcher.BatchSize)
	assert.Equal(t, 200, config.Dispatcher.ExchangeCap)
	assert.Equal(t, 45*time.Second, config.Sandbox.ContextTimeout.Std())
	assert.Equal(t, 3, config.Sandbox.InjectionRetries)
	assert.True(t, config.Sandbox.Headless)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
environment = "production"

[dispatcher]
tick_interval = "10s"
batch_size = 5

[sandbox]
context_timeout = "20s"

[intercept]
url_pattern = "/api/v4/pdp/get_pc"
alternates = ["/api/v4/pdp/"]
extract_path = "data.item.models"
`)

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 10*time.Second, config.Dispatcher.TickInterval.Std())
	assert.Equal(t, 5, config.Dispatcher.BatchSize)
	assert.Equal(t, 20*time.Second, config.Sandbox.ContextTimeout.Std())
	assert.Equal(t, "/api/v4/pdp/get_pc", config.Intercept.URLPattern)
	assert.Equal(t, "data.item.models", config.Intercept.ExtractPath)

	// Untouched sections keep their defaults.
	assert.Equal(t, 8085, config.Server.Port)
	assert.Equal(t, 2*time.Second, config.Dispatcher.BatchDelay.Std())
}

func TestLoadFromFileEnvOverrides(t *testing.T) {
	t.Setenv("TAPWIRE_PORT", "9090")
	t.Setenv("TAPWIRE_URL_PATTERN", "/service/items")
	t.Setenv("TAPWIRE_HEADLESS", "false")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "/service/items", config.Intercept.URLPattern)
	assert.False(t, config.Sandbox.Headless)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tick interval too small", func(c *Config) { c.Dispatcher.TickInterval = Duration(100 * time.Millisecond) }},
		{"context timeout too small", func(c *Config) { c.Sandbox.ContextTimeout = Duration(time.Second) }},
		{"zero batch size", func(c *Config) { c.Dispatcher.BatchSize = 0 }},
		{"negative global cap", func(c *Config) { c.Dispatcher.MaxGlobalContexts = -1 }},
		{"excessive injection retries", func(c *Config) { c.Sandbox.InjectionRetries = 50 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			assert.Error(t, config.Validate())
		})
	}
}

func TestValidateCronSchedule(t *testing.T) {
	assert.NoError(t, ValidateCronSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateCronSchedule("0 9 * * 1-5"))
	assert.Error(t, ValidateCronSchedule(""))
	assert.Error(t, ValidateCronSchedule("   "))
	assert.Error(t, ValidateCronSchedule("not a cron"))
	assert.Error(t, ValidateCronSchedule("61 * * * *"))
}

func TestApplyFlagOverrides(t *testing.T) {
	config := DefaultConfig()
	ApplyFlagOverrides(config, 7070, "0.0.0.0")
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)

	// Zero values leave the config untouched.
	ApplyFlagOverrides(config, 0, "")
	assert.Equal(t, 7070, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
}
