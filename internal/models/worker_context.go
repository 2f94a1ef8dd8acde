package models

import (
	"time"
)

// ContextStatus represents the state of a worker context
type ContextStatus string

const (
	ContextStatusLoading   ContextStatus = "loading"
	ContextStatusInjecting ContextStatus = "injecting"
	ContextStatusReady     ContextStatus = "ready"
	ContextStatusTracking  ContextStatus = "tracking"
	ContextStatusCompleted ContextStatus = "completed"
	ContextStatusError     ContextStatus = "error"
	ContextStatusTimedOut  ContextStatus = "timed_out"
)

// IsTerminal reports whether the status is a final state
func (s ContextStatus) IsTerminal() bool {
	switch s {
	case ContextStatusCompleted, ContextStatusError, ContextStatusTimedOut:
		return true
	default:
		return false
	}
}

// ContextEvent is an event driving the worker-context state machine
type ContextEvent string

const (
	ContextEventLoadStarted      ContextEvent = "load_started"      // Sandbox signalled it started loading content
	ContextEventHooksConfirmed   ContextEvent = "hooks_confirmed"   // Both hooks completed their readiness handshake
	ContextEventExchangeCaptured ContextEvent = "exchange_captured" // First (or any) exchange arrived
	ContextEventFinished         ContextEvent = "finished"          // Visit finished normally
	ContextEventFailed           ContextEvent = "failed"            // Unrecoverable error
	ContextEventTimedOut         ContextEvent = "timed_out"         // Hard timeout fired
	ContextEventClosedExternally ContextEvent = "closed_externally" // Sandbox removed out-of-band
)

// NextContextStatus is the pure transition function of the worker-context
// state machine: (current status, event) -> next status. Unknown or illegal
// combinations keep the current status; terminal states absorb everything,
// so a late timer firing after completion cannot regress the status.
func NextContextStatus(current ContextStatus, event ContextEvent) ContextStatus {
	if current.IsTerminal() {
		return current
	}

	switch event {
	case ContextEventTimedOut:
		return ContextStatusTimedOut
	case ContextEventFailed:
		return ContextStatusError
	case ContextEventClosedExternally:
		// An external close finalizes with whatever was captured so far.
		if current == ContextStatusTracking {
			return ContextStatusCompleted
		}
		return ContextStatusError
	case ContextEventFinished:
		return ContextStatusCompleted
	case ContextEventExchangeCaptured:
		// A persisted exchange proves both hooks are live, even when the
		// readiness handshake has not been applied yet.
		return ContextStatusTracking
	}

	switch current {
	case ContextStatusLoading:
		if event == ContextEventLoadStarted {
			return ContextStatusInjecting
		}
	case ContextStatusInjecting:
		if event == ContextEventHooksConfirmed {
			return ContextStatusReady
		}
	}

	return current
}

// WorkerContext is the runtime-only state for one sandbox during one firing.
// It is never persisted and is discarded on teardown.
type WorkerContext struct {
	SandboxID         string
	ScheduleID        string
	StartTime         time.Time
	Status            ContextStatus
	LastHeartbeat     time.Time
	ExchangesCaptured int
}

// Stalled reports whether the context has not heartbeat within the given
// window. Used for status reporting only; stalled contexts are not closed
// early, the hard timeout still governs teardown.
func (w *WorkerContext) Stalled(now time.Time, window time.Duration) bool {
	if w.Status.IsTerminal() {
		return false
	}
	return now.Sub(w.LastHeartbeat) > window
}
