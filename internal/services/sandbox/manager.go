// Package sandbox manages the lifecycle of worker contexts: one isolated
// sandbox per visit, driven through a small state machine from Loading to a
// terminal status, with a hard time budget that no sandbox may outlive.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
	"github.com/tapwire/tapwire/internal/services/bridge"
	"github.com/tapwire/tapwire/internal/services/extract"
)

// defaultInjectionDelays spaces the page-hook injection attempts: the first
// try is immediate, later tries back off while the page settles.
var defaultInjectionDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second}

// Manager implements the WorkerContextService interface
type Manager struct {
	platform  interfaces.SandboxPlatform
	exchanges interfaces.ExchangeStorage
	sandbox   common.SandboxConfig
	intercept common.InterceptConfig
	logger    arbor.ILogger

	injectionDelays []time.Duration

	mu       sync.Mutex
	contexts map[string]*models.WorkerContext
}

// NewManager creates a new worker-context manager
func NewManager(platform interfaces.SandboxPlatform, exchanges interfaces.ExchangeStorage, config *common.Config, logger arbor.ILogger) *Manager {
	return &Manager{
		platform:        platform,
		exchanges:       exchanges,
		sandbox:         config.Sandbox,
		intercept:       config.Intercept,
		logger:          logger,
		injectionDelays: defaultInjectionDelays,
		contexts:        make(map[string]*models.WorkerContext),
	}
}

// RunContext runs one worker context to completion: create the sandbox,
// install both interception hooks, track exchanges until the time budget or
// an external close ends the visit, then tear everything down. It never
// outlives the configured context timeout.
func (m *Manager) RunContext(ctx context.Context, schedule *models.Schedule, target *models.Target) interfaces.ContextResult {
	sandboxID := common.NewSandboxID()
	m.register(sandboxID, schedule.ID)
	defer m.unregister(sandboxID)

	runCtx, cancel := context.WithTimeout(ctx, m.sandbox.ContextTimeout.Std())
	defer cancel()

	m.logger.Info().
		Str("sandbox_id", sandboxID).
		Str("schedule_id", schedule.ID).
		Str("url", target.URL).
		Msg("Starting worker context")

	handle, err := m.platform.CreateSandbox(runCtx, sandboxID)
	if err != nil {
		m.transition(sandboxID, models.ContextEventFailed)
		return m.finalize(sandboxID, 0, fmt.Errorf("failed to create sandbox: %w", err))
	}

	// Teardown is idempotent and unconditional: whatever path ends the
	// visit, the sandbox is closed exactly once and half-open exchanges
	// are discarded.
	events := make(chan interfaces.ExchangeEvent, 128)
	br := bridge.New(m.exchanges, m.intercept.ExtractPath, schedule.ID, sandboxID,
		func(*models.CapturedExchange) { m.heartbeat(sandboxID) }, m.logger)

	bridgeCtx, stopBridge := context.WithCancel(context.Background())
	go br.Run(bridgeCtx, events)

	var closeOnce sync.Once
	teardown := func() {
		closeOnce.Do(func() {
			if err := handle.Close(); err != nil {
				m.logger.Warn().Err(err).Str("sandbox_id", sandboxID).Msg("Sandbox close reported error")
			}
			br.DiscardIncomplete()
			stopBridge()
		})
	}
	defer teardown()

	obsCfg := interfaces.ObserverConfig{
		ScheduleID: schedule.ID,
		SandboxID:  sandboxID,
		Matcher:    extract.NewMatcher(m.intercept.URLPattern, m.intercept.Alternates),
		URLPattern: m.intercept.URLPattern,
		Alternates: m.intercept.Alternates,
	}

	// The network hook goes in before navigation so the earliest requests
	// are already visible.
	if err := handle.ObserveNetworkLayer(runCtx, obsCfg, events); err != nil {
		m.transition(sandboxID, models.ContextEventFailed)
		return m.finalize(sandboxID, br.Captured(), fmt.Errorf("failed to install network hook: %w", err))
	}

	if err := handle.Navigate(runCtx, target.URL); err != nil {
		m.transition(sandboxID, models.ContextEventFailed)
		return m.finalize(sandboxID, br.Captured(), fmt.Errorf("failed to navigate: %w", err))
	}

	select {
	case <-handle.LoadStarted():
		m.transition(sandboxID, models.ContextEventLoadStarted)
	case <-handle.Done():
		m.transition(sandboxID, m.closeEvent(runCtx))
		return m.finalize(sandboxID, br.Captured(), nil)
	case <-runCtx.Done():
		m.transition(sandboxID, models.ContextEventTimedOut)
		return m.finalize(sandboxID, br.Captured(), nil)
	}

	if err := m.injectPageHook(runCtx, handle, obsCfg, events); err != nil {
		m.transition(sandboxID, models.ContextEventFailed)
		return m.finalize(sandboxID, br.Captured(), err)
	}

	select {
	case <-br.Ready():
		m.transition(sandboxID, models.ContextEventHooksConfirmed)
	case <-handle.Done():
		m.transition(sandboxID, m.closeEvent(runCtx))
		return m.finalize(sandboxID, br.Captured(), nil)
	case <-runCtx.Done():
		m.transition(sandboxID, models.ContextEventTimedOut)
		return m.finalize(sandboxID, br.Captured(), nil)
	}

	// Tracking phase. The visit runs until the hard budget expires or the
	// sandbox disappears out from under us; exchanges persist as they
	// complete, so a force-close here loses nothing already captured.
	select {
	case <-handle.Done():
		m.transition(sandboxID, m.closeEvent(runCtx))
	case <-runCtx.Done():
		m.transition(sandboxID, models.ContextEventTimedOut)
	}

	return m.finalize(sandboxID, br.Captured(), nil)
}

// closeEvent disambiguates a closed sandbox: when the time budget expired,
// the platform kills the browser, so Done and the context deadline close
// together. The timeout takes precedence over an apparent external close.
func (m *Manager) closeEvent(runCtx context.Context) models.ContextEvent {
	if runCtx.Err() != nil {
		return models.ContextEventTimedOut
	}
	return models.ContextEventClosedExternally
}

// injectPageHook installs the page-script hook, retrying on transient
// failure. Attempts are spaced by the configured delays; the last delay
// repeats if retries exceed the delay table.
func (m *Manager) injectPageHook(ctx context.Context, handle interfaces.SandboxHandle, cfg interfaces.ObserverConfig, events chan<- interfaces.ExchangeEvent) error {
	attempts := m.sandbox.InjectionRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		delay := m.injectionDelays[len(m.injectionDelays)-1]
		if attempt < len(m.injectionDelays) {
			delay = m.injectionDelays[attempt]
		}
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("page hook injection cancelled: %w", ctx.Err())
			}
		}

		if lastErr = handle.ObservePageLayer(ctx, cfg, events); lastErr == nil {
			return nil
		}
		m.logger.Warn().
			Err(lastErr).
			Str("sandbox_id", handle.ID()).
			Int("attempt", attempt+1).
			Msg("Page hook injection failed")
	}

	return fmt.Errorf("page hook injection failed after %d attempts: %w", attempts, lastErr)
}

// Snapshot returns a copy of all live worker contexts for status surfaces
func (m *Manager) Snapshot() []models.WorkerContext {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.WorkerContext, 0, len(m.contexts))
	for _, wc := range m.contexts {
		out = append(out, *wc)
	}
	return out
}

// StalledContexts returns live contexts that have not heartbeat within the
// configured inactivity window. Reporting only; a stalled context is not
// closed early, the hard timeout still governs teardown.
func (m *Manager) StalledContexts(now time.Time) []models.WorkerContext {
	window := m.sandbox.InactivityWindow.Std()
	if window <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.WorkerContext
	for _, wc := range m.contexts {
		if wc.Stalled(now, window) {
			out = append(out, *wc)
		}
	}
	return out
}

func (m *Manager) register(sandboxID, scheduleID string) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contexts[sandboxID] = &models.WorkerContext{
		SandboxID:     sandboxID,
		ScheduleID:    scheduleID,
		StartTime:     now,
		Status:        models.ContextStatusLoading,
		LastHeartbeat: now,
	}
}

func (m *Manager) unregister(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, sandboxID)
}

// transition applies one state-machine event and logs the change.
// Terminal states absorb late events, so a timer firing after an external
// close cannot flip the recorded outcome.
func (m *Manager) transition(sandboxID string, event models.ContextEvent) models.ContextStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	wc, ok := m.contexts[sandboxID]
	if !ok {
		return models.ContextStatusError
	}

	next := models.NextContextStatus(wc.Status, event)
	if next != wc.Status {
		m.logger.Debug().
			Str("sandbox_id", sandboxID).
			Str("event", string(event)).
			Str("from", string(wc.Status)).
			Str("to", string(next)).
			Msg("Worker context transition")
		wc.Status = next
	}
	return next
}

// heartbeat records a captured exchange against the context
func (m *Manager) heartbeat(sandboxID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wc, ok := m.contexts[sandboxID]
	if !ok {
		return
	}
	wc.ExchangesCaptured++
	wc.LastHeartbeat = time.Now()
	wc.Status = models.NextContextStatus(wc.Status, models.ContextEventExchangeCaptured)
}

func (m *Manager) finalize(sandboxID string, captured int, err error) interfaces.ContextResult {
	m.mu.Lock()
	wc, ok := m.contexts[sandboxID]
	status := models.ContextStatusError
	if ok {
		status = wc.Status
	}
	m.mu.Unlock()

	if status == models.ContextStatusError && err == nil {
		err = fmt.Errorf("worker context %s ended in error", sandboxID)
	}

	m.logger.Info().
		Str("sandbox_id", sandboxID).
		Str("status", string(status)).
		Int("exchanges", captured).
		Err(err).
		Msg("Worker context finished")

	return interfaces.ContextResult{
		SandboxID: sandboxID,
		Status:    status,
		Exchanges: captured,
		Err:       err,
	}
}
