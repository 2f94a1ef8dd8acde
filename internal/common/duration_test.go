package common

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	assert.Error(t, d.UnmarshalText([]byte("not a duration")))
	assert.Error(t, d.UnmarshalText([]byte("")))
}

func TestDurationMarshalRoundTrip(t *testing.T) {
	d := Duration(45 * time.Second)
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "45s", string(text))
}

// TOML duration strings must decode through the wrapper; this is the form
// the shipped config file uses.
func TestDurationDecodesFromTOMLString(t *testing.T) {
	var config struct {
		Wait Duration `toml:"wait"`
	}
	require.NoError(t, toml.Unmarshal([]byte(`wait = "2s"`), &config))
	assert.Equal(t, 2*time.Second, config.Wait.Std())

	err := toml.Unmarshal([]byte(`wait = "2 parsecs"`), &config)
	assert.Error(t, err)
}
