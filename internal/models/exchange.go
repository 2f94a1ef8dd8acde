package models

import (
	"encoding/json"
	"time"
)

// ExchangeSource identifies which interception hook captured an exchange
type ExchangeSource string

const (
	// ExchangeSourceNetwork is the platform-boundary hook. Headers and
	// timing are reliable; bodies need a separate capture step.
	ExchangeSourceNetwork ExchangeSource = "network"
	// ExchangeSourcePage is the page-script hook. Sees full request and
	// response bodies, but only for content it is loaded into.
	ExchangeSourcePage ExchangeSource = "page"
)

// CapturedExchange is a correlated request/response pair captured inside a
// sandbox. Append-only; storage keeps at most a configured number per
// schedule, evicting oldest first.
type CapturedExchange struct {
	ID              string            `json:"id" badgerhold:"key"`
	ScheduleID      string            `json:"schedule_id"`
	SandboxID       string            `json:"sandbox_id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	RequestHeaders  map[string]string `json:"request_headers,omitempty"`
	RequestBody     string            `json:"request_body,omitempty"`
	ResponseStatus  int               `json:"response_status"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	Extracted       json.RawMessage   `json:"extracted,omitempty"` // nil when extraction missed
	Source          ExchangeSource    `json:"source"`
	CapturedAt      time.Time         `json:"captured_at"`
	Complete        bool              `json:"complete"` // true once a response (or error) arrived
}
