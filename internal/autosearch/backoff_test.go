package autosearch

import (
	"context"
	"testing"
	"time"

	"github.com/sportarr/sportarr/internal/testutil"
)

func TestBackoffExponentialGrowth(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := newBackoffStore(tdb.Conn, 30*time.Minute, 24*time.Hour)
	ctx := context.Background()

	eligible, _, err := store.Eligible(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if !eligible {
		t.Fatal("Target with no failure history should be eligible")
	}

	// Each recorded failure doubles the window: 30m, 1h, 2h, ...
	wants := []time.Duration{30 * time.Minute, time.Hour, 2 * time.Hour}
	for i, want := range wants {
		before := time.Now()
		if err := store.RecordFailure(ctx, 1, 0, "no results"); err != nil {
			t.Fatalf("RecordFailure %d failed: %v", i+1, err)
		}
		eligible, next, err := store.Eligible(ctx, 1, 0)
		if err != nil {
			t.Fatalf("Eligible failed: %v", err)
		}
		if eligible {
			t.Fatalf("Target should be ineligible after failure %d", i+1)
		}
		got := next.Sub(before)
		if got < want-time.Minute || got > want+time.Minute {
			t.Errorf("Failure %d: next eligible in %v, want about %v", i+1, got, want)
		}
	}
}

func TestBackoffCap(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := newBackoffStore(tdb.Conn, 30*time.Minute, 2*time.Hour)
	ctx := context.Background()

	before := time.Now()
	for i := 0; i < 6; i++ {
		if err := store.RecordFailure(ctx, 1, 2, "no results"); err != nil {
			t.Fatalf("RecordFailure failed: %v", err)
		}
	}

	_, next, err := store.Eligible(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if got := next.Sub(before); got > 2*time.Hour+time.Minute {
		t.Errorf("Backoff window %v exceeds 2h cap", got)
	}
}

func TestBackoffReset(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	store := newBackoffStore(tdb.Conn, 30*time.Minute, 24*time.Hour)
	ctx := context.Background()

	if err := store.RecordFailure(ctx, 5, 1, "dispatch failed"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	if eligible, _, _ := store.Eligible(ctx, 5, 1); eligible {
		t.Fatal("Target should be ineligible after a failure")
	}

	if err := store.Reset(ctx, 5, 1); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	eligible, _, err := store.Eligible(ctx, 5, 1)
	if err != nil {
		t.Fatalf("Eligible failed: %v", err)
	}
	if !eligible {
		t.Error("Target should be eligible again after reset")
	}

	// Failure count starts over: the next failure waits the base window.
	before := time.Now()
	if err := store.RecordFailure(ctx, 5, 1, "no results"); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}
	_, next, _ := store.Eligible(ctx, 5, 1)
	if got := next.Sub(before); got > 31*time.Minute {
		t.Errorf("Expected base window after reset, got %v", got)
	}
}
