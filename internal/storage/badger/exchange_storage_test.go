package badger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/tapwire/tapwire/internal/models"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir := t.TempDir()

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestAppendCapturedExchangeCapEviction(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()

	const maxKept = 5
	storage := NewExchangeStorage(db, logger, maxKept)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Append twice the cap; each exchange gets a strictly increasing
	// capture time so eviction order is deterministic.
	for i := 0; i < maxKept*2; i++ {
		ex := &models.CapturedExchange{
			ID:         fmt.Sprintf("exch-%02d", i),
			SandboxID:  "sbx-1",
			URL:        "https://x/api/v4/pdp/get_pc?id=1",
			Method:     "GET",
			Source:     models.ExchangeSourceNetwork,
			CapturedAt: base.Add(time.Duration(i) * time.Second),
			Complete:   true,
		}
		if err := storage.AppendCapturedExchange(ctx, "sched-1", ex); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	count, err := storage.CountCapturedExchanges(ctx, "sched-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != maxKept {
		t.Errorf("count after overflow = %d, want %d", count, maxKept)
	}

	// The survivors must be exactly the newest cap entries, oldest first.
	exchanges, err := storage.ListCapturedExchanges(ctx, "sched-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(exchanges) != maxKept {
		t.Fatalf("listed %d exchanges, want %d", len(exchanges), maxKept)
	}
	for i, ex := range exchanges {
		wantID := fmt.Sprintf("exch-%02d", maxKept+i)
		if ex.ID != wantID {
			t.Errorf("exchange[%d].ID = %s, want %s", i, ex.ID, wantID)
		}
	}
}

func TestAppendCapturedExchangePerScheduleIsolation(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()

	storage := NewExchangeStorage(db, logger, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		for _, scheduleID := range []string{"sched-a", "sched-b"} {
			ex := &models.CapturedExchange{
				SandboxID:  "sbx-1",
				URL:        "https://x/api/items",
				Method:     "GET",
				Source:     models.ExchangeSourcePage,
				CapturedAt: time.Now().Add(time.Duration(i) * time.Millisecond),
			}
			if err := storage.AppendCapturedExchange(ctx, scheduleID, ex); err != nil {
				t.Fatal(err)
			}
		}
	}

	for _, scheduleID := range []string{"sched-a", "sched-b"} {
		count, err := storage.CountCapturedExchanges(ctx, scheduleID)
		if err != nil {
			t.Fatal(err)
		}
		if count != 3 {
			t.Errorf("count for %s = %d, want 3", scheduleID, count)
		}
	}
}

func TestAppendCapturedExchangeRequiresScheduleID(t *testing.T) {
	db := newTestDB(t)
	storage := NewExchangeStorage(db, arbor.NewLogger(), 10)

	err := storage.AppendCapturedExchange(context.Background(), "", &models.CapturedExchange{})
	if err == nil {
		t.Error("expected error for empty schedule ID")
	}
}

func TestDeleteCapturedExchanges(t *testing.T) {
	db := newTestDB(t)
	storage := NewExchangeStorage(db, arbor.NewLogger(), 10)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		ex := &models.CapturedExchange{URL: "https://x/api/items", CapturedAt: time.Now()}
		if err := storage.AppendCapturedExchange(ctx, "sched-1", ex); err != nil {
			t.Fatal(err)
		}
	}

	if err := storage.DeleteCapturedExchanges(ctx, "sched-1"); err != nil {
		t.Fatal(err)
	}

	count, err := storage.CountCapturedExchanges(ctx, "sched-1")
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("count after delete = %d, want 0", count)
	}
}
