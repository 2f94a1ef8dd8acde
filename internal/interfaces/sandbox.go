package interfaces

import (
	"context"
	"time"

	"github.com/tapwire/tapwire/internal/models"
)

// ExchangePhase identifies which half of an exchange an event carries
type ExchangePhase string

const (
	PhaseReady    ExchangePhase = "ready"    // Hook readiness handshake
	PhaseRequest  ExchangePhase = "request"  // Outbound request observed
	PhaseResponse ExchangePhase = "response" // Response (with body where available)
	PhaseError    ExchangePhase = "error"    // Request failed before a response arrived
)

// ExchangeEvent is the common event both interception hooks emit. LocalID
// is unique within one hook in one sandbox; the bridge correlates request
// and response halves by (source, local id).
type ExchangeEvent struct {
	LocalID         string
	Source          models.ExchangeSource
	Phase           ExchangePhase
	URL             string
	Method          string
	RequestHeaders  map[string]string
	RequestBody     string
	Status          int
	ResponseHeaders map[string]string
	Body            []byte
	At              time.Time
}

// URLMatcher decides whether an observed URL belongs to a call that should
// be captured. Both hooks apply the same predicate; everything else passes
// through untouched.
type URLMatcher interface {
	Match(url string) bool
}

// ObserverConfig is the shared configuration injected into both hooks.
// The raw pattern fields exist so hooks that run a match predicate outside
// the process (injected page code) can rebuild the same decision the
// Matcher makes in-process.
type ObserverConfig struct {
	ScheduleID string
	SandboxID  string
	Matcher    URLMatcher
	URLPattern string
	Alternates []string
}

// SandboxHandle is one isolated execution sandbox. Implementations are
// host-specific (the default is a dedicated headless-browser process);
// swapping the host must not touch the bridge's correlation or extraction
// logic.
type SandboxHandle interface {
	// ID returns the sandbox id assigned at creation
	ID() string

	// Navigate loads the target resource. Returns once navigation has been
	// issued; content load completion is signalled via LoadStarted.
	Navigate(ctx context.Context, url string) error

	// ObserveNetworkLayer installs the network-visibility hook. Events are
	// delivered on the given channel until the sandbox closes.
	ObserveNetworkLayer(ctx context.Context, cfg ObserverConfig, events chan<- ExchangeEvent) error

	// ObservePageLayer installs the page-script-visibility hook. May fail
	// transiently while the page is not ready to receive injected code;
	// callers are expected to retry.
	ObservePageLayer(ctx context.Context, cfg ObserverConfig, events chan<- ExchangeEvent) error

	// LoadStarted is closed once the sandbox signals it has started
	// loading content.
	LoadStarted() <-chan struct{}

	// Done is closed when the sandbox goes away for any reason, including
	// an out-of-band close by something outside the orchestrator.
	Done() <-chan struct{}

	// Close tears the sandbox down. Idempotent; closing an already-closed
	// sandbox is not an error.
	Close() error
}

// SandboxPlatform creates sandboxes. The chromedp implementation is the
// default; tests substitute a fake.
type SandboxPlatform interface {
	CreateSandbox(ctx context.Context, sandboxID string) (SandboxHandle, error)
	Shutdown() error
}
