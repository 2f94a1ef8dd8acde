package models

import (
	"testing"
	"time"
)

func TestNextContextStatusHappyPath(t *testing.T) {
	status := ContextStatusLoading
	steps := []struct {
		event ContextEvent
		want  ContextStatus
	}{
		{ContextEventLoadStarted, ContextStatusInjecting},
		{ContextEventHooksConfirmed, ContextStatusReady},
		{ContextEventExchangeCaptured, ContextStatusTracking},
		{ContextEventExchangeCaptured, ContextStatusTracking},
		{ContextEventFinished, ContextStatusCompleted},
	}

	for _, step := range steps {
		status = NextContextStatus(status, step.event)
		if status != step.want {
			t.Fatalf("after %s: status = %s, want %s", step.event, status, step.want)
		}
	}
}

func TestNextContextStatusTerminalAbsorbs(t *testing.T) {
	events := []ContextEvent{
		ContextEventLoadStarted,
		ContextEventHooksConfirmed,
		ContextEventExchangeCaptured,
		ContextEventFinished,
		ContextEventFailed,
		ContextEventTimedOut,
		ContextEventClosedExternally,
	}

	for _, terminal := range []ContextStatus{ContextStatusCompleted, ContextStatusError, ContextStatusTimedOut} {
		for _, event := range events {
			if got := NextContextStatus(terminal, event); got != terminal {
				t.Errorf("NextContextStatus(%s, %s) = %s, want %s", terminal, event, got, terminal)
			}
		}
	}
}

func TestNextContextStatusTimeoutFromAnyLiveState(t *testing.T) {
	for _, live := range []ContextStatus{ContextStatusLoading, ContextStatusInjecting, ContextStatusReady, ContextStatusTracking} {
		if got := NextContextStatus(live, ContextEventTimedOut); got != ContextStatusTimedOut {
			t.Errorf("NextContextStatus(%s, timed_out) = %s, want %s", live, got, ContextStatusTimedOut)
		}
	}
}

func TestNextContextStatusExternalClose(t *testing.T) {
	// Closed while tracking finalizes with what was captured.
	if got := NextContextStatus(ContextStatusTracking, ContextEventClosedExternally); got != ContextStatusCompleted {
		t.Errorf("close while tracking = %s, want %s", got, ContextStatusCompleted)
	}
	// Closed before anything was captured is an error.
	for _, early := range []ContextStatus{ContextStatusLoading, ContextStatusInjecting, ContextStatusReady} {
		if got := NextContextStatus(early, ContextEventClosedExternally); got != ContextStatusError {
			t.Errorf("close at %s = %s, want %s", early, got, ContextStatusError)
		}
	}
}

func TestNextContextStatusIgnoresOutOfOrderEvents(t *testing.T) {
	if got := NextContextStatus(ContextStatusInjecting, ContextEventLoadStarted); got != ContextStatusInjecting {
		t.Errorf("repeated load_started = %s, want unchanged", got)
	}
	if got := NextContextStatus(ContextStatusTracking, ContextEventHooksConfirmed); got != ContextStatusTracking {
		t.Errorf("late hooks_confirmed = %s, want unchanged", got)
	}
}

func TestNextContextStatusCapturePromotesToTracking(t *testing.T) {
	// A capture can race ahead of the readiness handshake; data arriving
	// means both hooks are live, so the context goes straight to tracking
	// and a later external close counts as completed.
	for _, live := range []ContextStatus{ContextStatusLoading, ContextStatusInjecting, ContextStatusReady, ContextStatusTracking} {
		got := NextContextStatus(live, ContextEventExchangeCaptured)
		if got != ContextStatusTracking {
			t.Errorf("NextContextStatus(%s, exchange_captured) = %s, want %s", live, got, ContextStatusTracking)
			continue
		}
		if closed := NextContextStatus(got, ContextEventClosedExternally); closed != ContextStatusCompleted {
			t.Errorf("close after capture from %s = %s, want %s", live, closed, ContextStatusCompleted)
		}
	}
}

func TestWorkerContextStalled(t *testing.T) {
	now := time.Now()
	wc := &WorkerContext{
		Status:        ContextStatusTracking,
		LastHeartbeat: now.Add(-20 * time.Second),
	}

	if !wc.Stalled(now, 15*time.Second) {
		t.Error("context past the inactivity window should report stalled")
	}
	if wc.Stalled(now, 30*time.Second) {
		t.Error("context within the inactivity window should not report stalled")
	}

	wc.Status = ContextStatusCompleted
	if wc.Stalled(now, 15*time.Second) {
		t.Error("terminal context should never report stalled")
	}
}
