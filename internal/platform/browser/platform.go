// Package browser implements the sandbox platform on headless Chrome via
// chromedp. One sandbox is one dedicated browser process with its own exec
// allocator; the orchestrator above never touches CDP directly.
package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
)

// Platform implements the SandboxPlatform interface
type Platform struct {
	config common.SandboxConfig
	logger arbor.ILogger

	mu        sync.Mutex
	sandboxes map[string]*Sandbox
	shutdown  bool
}

// NewPlatform creates a new browser sandbox platform
func NewPlatform(config common.SandboxConfig, logger arbor.ILogger) *Platform {
	return &Platform{
		config:    config,
		logger:    logger,
		sandboxes: make(map[string]*Sandbox),
	}
}

// CreateSandbox launches a dedicated browser process bound to the given
// context. Cancelling the context kills the process, which is what enforces
// the hard per-context budget even if teardown logic misbehaves.
func (p *Platform) CreateSandbox(ctx context.Context, sandboxID string) (interfaces.SandboxHandle, error) {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return nil, fmt.Errorf("platform is shut down")
	}
	p.mu.Unlock()

	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.config.Headless),
		chromedp.Flag("disable-gpu", p.config.DisableGPU),
		chromedp.Flag("no-sandbox", p.config.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(p.config.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)

	sandbox := &Sandbox{
		id:          sandboxID,
		pageCtx:     pageCtx,
		cancelPage:  cancelPage,
		cancelAlloc: cancelAlloc,
		loadStarted: make(chan struct{}),
		done:        make(chan struct{}),
		logger:      p.logger,
	}

	// Startup test launches the process and enables network events before
	// any caller navigation, so the earliest requests are observable.
	if err := chromedp.Run(pageCtx, network.Enable(), chromedp.Navigate("about:blank")); err != nil {
		cancelPage()
		cancelAlloc()
		return nil, fmt.Errorf("browser instance failed startup test: %w", err)
	}

	// Out-of-band death of the browser process cancels the page context;
	// surface that as the sandbox being done.
	go func() {
		<-pageCtx.Done()
		sandbox.signalDone()
		p.mu.Lock()
		delete(p.sandboxes, sandboxID)
		p.mu.Unlock()
	}()

	p.mu.Lock()
	p.sandboxes[sandboxID] = sandbox
	p.mu.Unlock()

	p.logger.Debug().
		Str("sandbox_id", sandboxID).
		Bool("headless", p.config.Headless).
		Msg("Browser sandbox created")

	return sandbox, nil
}

// Shutdown closes every live sandbox and refuses further creation
func (p *Platform) Shutdown() error {
	p.mu.Lock()
	p.shutdown = true
	remaining := make([]*Sandbox, 0, len(p.sandboxes))
	for _, sandbox := range p.sandboxes {
		remaining = append(remaining, sandbox)
	}
	p.sandboxes = make(map[string]*Sandbox)
	p.mu.Unlock()

	for _, sandbox := range remaining {
		if err := sandbox.Close(); err != nil {
			p.logger.Warn().Err(err).Str("sandbox_id", sandbox.id).Msg("Sandbox close reported error")
		}
	}

	p.logger.Info().Int("closed", len(remaining)).Msg("Browser platform shut down")
	return nil
}
