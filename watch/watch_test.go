package watch

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDataVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := DataVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Fatalf("expected non-negative version, got %d", v)
	}
}

func TestOnChangeFiresOnVersionAdvance(t *testing.T) {
	db := testDB(t)

	var version atomic.Int64
	detector := func(_ context.Context, _ *sql.DB) (int64, error) {
		return version.Load(), nil
	}

	var fired atomic.Int64
	w := New(db, Options{Interval: 5 * time.Millisecond, Detector: detector})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})

	// No change yet.
	time.Sleep(30 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("action fired %d times before any change", fired.Load())
	}

	version.Store(1)
	deadline := time.Now().Add(time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fired.Load() != 1 {
		t.Fatalf("action fired %d times, want 1", fired.Load())
	}
}

func TestOnChangeRetriesFailedAction(t *testing.T) {
	db := testDB(t)

	var version atomic.Int64
	version.Store(1)
	detector := func(_ context.Context, _ *sql.DB) (int64, error) {
		return version.Load(), nil
	}

	var calls atomic.Int64
	w := New(db, Options{Interval: 5 * time.Millisecond, Detector: detector})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		// Seed happens with version=1; bump after start so a change is seen.
		time.Sleep(20 * time.Millisecond)
		version.Store(2)
	}()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	deadline := time.Now().Add(time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("action called %d times, want retries until success", calls.Load())
	}
}
