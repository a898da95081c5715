package winddown

import (
	"context"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestServiceRecoversAcrossRestart(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "winddown.db")
	ctx := context.Background()

	svc, err := New(ctx, Config{DBPath: dbPath, SessionID: "night-1"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	svc.Engine().HandleNavigation(ctx, 7, netflixURL)
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Same session id: the timer survives the restart.
	svc2, err := New(ctx, Config{DBPath: dbPath, SessionID: "night-1"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	defer svc2.Close()

	timers := svc2.Engine().ListTimers()
	if len(timers) != 1 || timers[0].TabID != 7 {
		t.Fatalf("timers after restart: got %+v, want tab 7", timers)
	}
}

func TestServiceNewSessionStartsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "winddown.db")
	ctx := context.Background()

	svc, err := New(ctx, Config{DBPath: dbPath, SessionID: "night-1"})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	svc.Engine().HandleNavigation(ctx, 7, netflixURL)
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// A different session id means the browser restarted: stale timers
	// from the previous night are wiped.
	svc2, err := New(ctx, Config{DBPath: dbPath, SessionID: "night-2"})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	defer svc2.Close()

	if got := len(svc2.Engine().ListTimers()); got != 0 {
		t.Fatalf("timers in new session: got %d, want 0", got)
	}
}

func TestServiceStartStop(t *testing.T) {
	svc, err := New(context.Background(), Config{
		DBPath:    filepath.Join(t.TempDir(), "winddown.db"),
		SessionID: "lifecycle",
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	cancel()
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
