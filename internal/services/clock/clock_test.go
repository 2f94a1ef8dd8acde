package clock

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tapwire/tapwire/internal/models"
)

func TestComputeNextRunInterval(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		minutes int
		want    time.Time
		wantErr bool
	}{
		{"five minutes", 5, now.Add(5 * time.Minute), false},
		{"one minute", 1, now.Add(1 * time.Minute), false},
		{"daily", 1440, now.Add(24 * time.Hour), false},
		{"zero is invalid", 0, time.Time{}, true},
		{"negative is invalid", -10, time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.Schedule{
				ID:              "sched-1",
				Kind:            models.ScheduleKindInterval,
				IntervalMinutes: tt.minutes,
			}
			got, err := ComputeNextRun(s, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ComputeNextRun() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ComputeNextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeNextRunIntervalNeverInPast(t *testing.T) {
	// Property: for any now and any valid interval, the result is strictly
	// after now.
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		now := time.Unix(rng.Int63n(4_000_000_000), 0)
		s := &models.Schedule{
			ID:              "sched-prop",
			Kind:            models.ScheduleKindInterval,
			IntervalMinutes: 1 + rng.Intn(10_000),
		}
		got, err := ComputeNextRun(s, now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.After(now) {
			t.Fatalf("next run %v not after now %v", got, now)
		}
	}
}

func TestComputeNextRunCron(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		expr    string
		want    time.Time
		wantErr bool
	}{
		{"every hour", "0 * * * *", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), false},
		{"midnight daily", "0 0 * * *", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), false},
		{"every five minutes", "*/5 * * * *", time.Date(2025, 6, 1, 12, 35, 0, 0, time.UTC), false},
		{"invalid expression", "not a cron", time.Time{}, true},
		{"too few fields", "* *", time.Time{}, true},
		{"empty expression", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.Schedule{
				ID:       "sched-cron",
				Kind:     models.ScheduleKindCron,
				CronExpr: tt.expr,
			}
			got, err := ComputeNextRun(s, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ComputeNextRun() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("ComputeNextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeNextRunOnce(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fireAt := time.Date(2025, 6, 3, 9, 0, 0, 0, time.UTC)

	s := &models.Schedule{ID: "sched-once", Kind: models.ScheduleKindOnce, FireAt: &fireAt}
	got, err := ComputeNextRun(s, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(fireAt) {
		t.Errorf("ComputeNextRun() = %v, want %v", got, fireAt)
	}

	missing := &models.Schedule{ID: "sched-once-bad", Kind: models.ScheduleKindOnce}
	if _, err := ComputeNextRun(missing, now); err == nil {
		t.Error("expected error for once schedule without fire_at")
	}
}

func TestComputeNextRunUnknownKind(t *testing.T) {
	s := &models.Schedule{ID: "sched-bad", Kind: "hourly"}
	if _, err := ComputeNextRun(s, time.Now()); err == nil {
		t.Error("expected error for unknown schedule kind")
	}
}

func TestIsDue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		enabled bool
		nextRun time.Time
		want    bool
	}{
		{"enabled and past due", true, now.Add(-time.Minute), true},
		{"enabled and due exactly now", true, now, true},
		{"enabled but future", true, now.Add(time.Minute), false},
		{"disabled and past due", false, now.Add(-time.Minute), false},
		{"enabled with zero next run", true, time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &models.Schedule{ID: "s", Enabled: tt.enabled, NextRun: tt.nextRun}
			if got := IsDue(s, now); got != tt.want {
				t.Errorf("IsDue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDueProperty(t *testing.T) {
	// Property: IsDue is true iff enabled && nextRun <= now, over random
	// timestamps.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		now := time.Unix(rng.Int63n(4_000_000_000), 0)
		next := time.Unix(rng.Int63n(4_000_000_000), 0)
		enabled := rng.Intn(2) == 0

		s := &models.Schedule{ID: "s", Enabled: enabled, NextRun: next}
		want := enabled && !next.After(now)
		if got := IsDue(s, now); got != want {
			t.Fatalf("IsDue(enabled=%v next=%v now=%v) = %v, want %v", enabled, next, now, got, want)
		}
	}
}
