package models

import (
	"errors"
	"strings"
	"time"
)

// Target represents a monitored network resource. Targets are user-authored
// and long-lived; schedules reference them by ID.
type Target struct {
	ID        string    `json:"id" badgerhold:"key"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate validates the target
func (t *Target) Validate() error {
	if t.ID == "" {
		return errors.New("target ID is required")
	}
	if t.Name == "" {
		return errors.New("target name is required")
	}
	if !strings.HasPrefix(t.URL, "http://") && !strings.HasPrefix(t.URL, "https://") {
		return errors.New("target URL must be an http or https URL")
	}
	return nil
}
