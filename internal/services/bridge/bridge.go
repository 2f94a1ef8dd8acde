// Package bridge correlates the events emitted by the two interception
// hooks into complete captured exchanges, runs payload extraction, and
// persists each exchange the moment it completes. It is host-agnostic: any
// platform that emits ExchangeEvents can sit underneath it.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/tapwire/tapwire/internal/common"
	"github.com/tapwire/tapwire/internal/interfaces"
	"github.com/tapwire/tapwire/internal/models"
	"github.com/tapwire/tapwire/internal/services/extract"
)

// dedupWindow is how long a persisted exchange suppresses an identical
// capture from the other hook. Both hooks see the same traffic; the first
// arrival wins.
const dedupWindow = 2 * time.Second

// Bridge correlates request/response halves for one sandbox during one
// firing.
type Bridge struct {
	exchanges   interfaces.ExchangeStorage
	extractPath string
	scheduleID  string
	sandboxID   string
	logger      arbor.ILogger

	// onCapture is invoked after each persisted exchange; the worker
	// context manager uses it as a heartbeat.
	onCapture func(*models.CapturedExchange)

	mu       sync.Mutex
	pending  map[string]*models.CapturedExchange // source:localID -> half-open exchange
	seen     map[string]time.Time                // method+url -> last persisted (dedup)
	ready    map[models.ExchangeSource]bool
	captured int

	readyOnce sync.Once
	readyCh   chan struct{}
}

// New creates a bridge for one sandbox
func New(exchanges interfaces.ExchangeStorage, extractPath, scheduleID, sandboxID string, onCapture func(*models.CapturedExchange), logger arbor.ILogger) *Bridge {
	return &Bridge{
		exchanges:   exchanges,
		extractPath: extractPath,
		scheduleID:  scheduleID,
		sandboxID:   sandboxID,
		onCapture:   onCapture,
		logger:      logger,
		pending:     make(map[string]*models.CapturedExchange),
		seen:        make(map[string]time.Time),
		ready:       make(map[models.ExchangeSource]bool),
		readyCh:     make(chan struct{}),
	}
}

// Ready is closed once both hooks have confirmed readiness via their
// handshake message.
func (b *Bridge) Ready() <-chan struct{} {
	return b.readyCh
}

// Captured returns the number of exchanges persisted so far
func (b *Bridge) Captured() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.captured
}

// Run consumes events until the channel closes or the context is
// cancelled. It never returns an error: a broken event is logged and
// skipped, not allowed to kill the stream.
func (b *Bridge) Run(ctx context.Context, events <-chan interfaces.ExchangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			b.handle(ctx, ev)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, ev interfaces.ExchangeEvent) {
	switch ev.Phase {
	case interfaces.PhaseReady:
		b.markReady(ev.Source)
	case interfaces.PhaseRequest:
		b.openExchange(ev)
	case interfaces.PhaseResponse:
		b.completeExchange(ctx, ev, false)
	case interfaces.PhaseError:
		b.completeExchange(ctx, ev, true)
	default:
		b.logger.Warn().
			Str("phase", string(ev.Phase)).
			Str("sandbox_id", b.sandboxID).
			Msg("Dropping exchange event with unknown phase")
	}
}

func (b *Bridge) markReady(source models.ExchangeSource) {
	b.mu.Lock()
	b.ready[source] = true
	bothReady := b.ready[models.ExchangeSourceNetwork] && b.ready[models.ExchangeSourcePage]
	b.mu.Unlock()

	b.logger.Debug().
		Str("sandbox_id", b.sandboxID).
		Str("source", string(source)).
		Msg("Interception hook confirmed ready")

	if bothReady {
		b.readyOnce.Do(func() { close(b.readyCh) })
	}
}

// openExchange records the request half. A second request event for the
// same local id carries late-arriving detail (the request body needs its
// own round trip on some hooks) and merges into the open exchange instead
// of replacing it.
func (b *Bridge) openExchange(ev interfaces.ExchangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := pendingKey(ev.Source, ev.LocalID)
	if ex, ok := b.pending[key]; ok {
		if ev.RequestBody != "" {
			ex.RequestBody = ev.RequestBody
		}
		if len(ev.RequestHeaders) > 0 {
			ex.RequestHeaders = ev.RequestHeaders
		}
		return
	}

	b.pending[key] = &models.CapturedExchange{
		ID:             common.NewExchangeID(),
		ScheduleID:     b.scheduleID,
		SandboxID:      b.sandboxID,
		URL:            ev.URL,
		Method:         ev.Method,
		RequestHeaders: ev.RequestHeaders,
		RequestBody:    ev.RequestBody,
		Source:         ev.Source,
		CapturedAt:     ev.At,
	}
}

// completeExchange matches the response half to its request half and
// persists the result. When the request half was never seen (the platform
// request id was unavailable), it falls back to the most recent pending
// exchange for the same URL, and finally to synthesizing the exchange from
// the response event alone.
func (b *Bridge) completeExchange(ctx context.Context, ev interfaces.ExchangeEvent, failed bool) {
	b.mu.Lock()

	key := pendingKey(ev.Source, ev.LocalID)
	ex, ok := b.pending[key]
	if ok {
		delete(b.pending, key)
	} else {
		ex = b.matchByURLLocked(ev)
	}
	if ex == nil {
		ex = &models.CapturedExchange{
			ID:         common.NewExchangeID(),
			ScheduleID: b.scheduleID,
			SandboxID:  b.sandboxID,
			URL:        ev.URL,
			Method:     ev.Method,
			Source:     ev.Source,
			CapturedAt: ev.At,
		}
	}

	ex.Complete = true
	if !failed {
		ex.ResponseStatus = ev.Status
		ex.ResponseHeaders = ev.ResponseHeaders
		ex.ResponseBody = string(ev.Body)
	}

	// First arrival wins across hooks observing the same call.
	dedupKey := ex.Method + " " + ex.URL
	if last, dup := b.seen[dedupKey]; dup && ev.At.Sub(last) < dedupWindow {
		b.mu.Unlock()
		b.logger.Debug().
			Str("sandbox_id", b.sandboxID).
			Str("url", ex.URL).
			Str("source", string(ev.Source)).
			Msg("Duplicate exchange suppressed")
		return
	}
	b.seen[dedupKey] = ev.At
	b.mu.Unlock()

	if !failed && len(ev.Body) > 0 {
		if payload, ok := extract.Extract(ev.Body, b.extractPath); ok {
			ex.Extracted = payload
		}
	}

	// Persist immediately, never batched, so captures survive a later
	// force-close of the sandbox.
	if err := b.exchanges.AppendCapturedExchange(ctx, b.scheduleID, ex); err != nil {
		b.logger.Error().
			Err(err).
			Str("sandbox_id", b.sandboxID).
			Str("url", ex.URL).
			Msg("Failed to persist captured exchange")
		return
	}

	b.mu.Lock()
	b.captured++
	b.mu.Unlock()

	b.logger.Info().
		Str("sandbox_id", b.sandboxID).
		Str("url", ex.URL).
		Str("source", string(ex.Source)).
		Int("status", ex.ResponseStatus).
		Bool("extracted", ex.Extracted != nil).
		Msg("Captured exchange persisted")

	if b.onCapture != nil {
		b.onCapture(ex)
	}
}

// matchByURLLocked finds the most recent pending exchange for the same URL
// from the same source. Caller holds b.mu.
func (b *Bridge) matchByURLLocked(ev interfaces.ExchangeEvent) *models.CapturedExchange {
	var best *models.CapturedExchange
	var bestKey string
	for key, ex := range b.pending {
		if ex.Source != ev.Source || ex.URL != ev.URL {
			continue
		}
		if best == nil || ex.CapturedAt.After(best.CapturedAt) {
			best = ex
			bestKey = key
		}
	}
	if best != nil {
		delete(b.pending, bestKey)
	}
	return best
}

// DiscardIncomplete drops all half-open exchanges. Called at teardown:
// an exchange with no response past the context budget is noise, not data.
func (b *Bridge) DiscardIncomplete() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.pending)
	if n > 0 {
		b.logger.Debug().
			Str("sandbox_id", b.sandboxID).
			Int("count", n).
			Msg(fmt.Sprintf("Discarding %d incomplete exchanges at teardown", n))
	}
	b.pending = make(map[string]*models.CapturedExchange)
	return n
}

func pendingKey(source models.ExchangeSource, localID string) string {
	return string(source) + ":" + localID
}
