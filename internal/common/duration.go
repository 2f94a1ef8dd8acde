package common

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration so config fields accept TOML strings like
// "30s" or "2m". go-toml decodes through encoding.TextUnmarshaler, which
// a raw time.Duration does not implement.
type Duration time.Duration

// Std returns the wrapped time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText renders the duration back to its string form
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}
