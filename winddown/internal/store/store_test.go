package store

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/winddown/dbopen"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if _, err := db.Exec(Schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return &Store{DB: db}
}

func TestSaveAndLoadTimers(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	rows := []TimerRow{
		{TabID: 7, State: "watching", StartTime: now, URL: "https://www.netflix.com/watch/123"},
		{TabID: 12, State: "snoozed", StartTime: now - 600_000, SnoozedUntil: now + 900_000, NotifiedBedtime: true, URL: "https://www.youtube.com/watch?v=x"},
	}
	if err := s.SaveTimers(ctx, rows); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadTimers(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("load: got %d rows, want 2", len(got))
	}
	if got[0].TabID != 7 || got[0].State != "watching" {
		t.Errorf("row 0: got %+v", got[0])
	}
	if got[0].SnoozedUntil != 0 {
		t.Errorf("row 0 snoozed_until: got %d, want 0", got[0].SnoozedUntil)
	}
	if got[1].SnoozedUntil != now+900_000 {
		t.Errorf("row 1 snoozed_until: got %d, want %d", got[1].SnoozedUntil, now+900_000)
	}
	if !got[1].NotifiedBedtime {
		t.Error("row 1 notified_bedtime: got false, want true")
	}
}

func TestSaveTimersReplacesPriorSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	s.SaveTimers(ctx, []TimerRow{
		{TabID: 1, State: "watching", StartTime: now},
		{TabID: 2, State: "watching", StartTime: now},
	})
	if err := s.SaveTimers(ctx, []TimerRow{{TabID: 3, State: "watching", StartTime: now}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.LoadTimers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].TabID != 3 {
		t.Fatalf("got %+v, want only tab 3", got)
	}
}

func TestSaveTimersEmptySet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.SaveTimers(ctx, []TimerRow{{TabID: 1, State: "watching", StartTime: 1}})
	if err := s.SaveTimers(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}

	got, err := s.LoadTimers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d rows, want 0", len(got))
	}
}

func TestBeginSession(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	fresh, err := s.BeginSession(ctx, "sess-a")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Fatal("first session should be fresh")
	}

	s.SaveTimers(ctx, []TimerRow{{TabID: 1, State: "watching", StartTime: 1}})

	// Same session: timers survive.
	fresh, err = s.BeginSession(ctx, "sess-a")
	if err != nil {
		t.Fatal(err)
	}
	if fresh {
		t.Fatal("same session id should not be fresh")
	}
	got, _ := s.LoadTimers(ctx)
	if len(got) != 1 {
		t.Fatalf("timers after same-session restart: got %d, want 1", len(got))
	}

	// New session: timers wiped.
	fresh, err = s.BeginSession(ctx, "sess-b")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Fatal("new session id should be fresh")
	}
	got, _ = s.LoadTimers(ctx)
	if len(got) != 0 {
		t.Fatalf("timers after new session: got %d, want 0", len(got))
	}
}

func TestSettingsSlot(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("settings should be absent before first write")
	}

	if err := s.SetSettings(ctx, []byte(`{"watch_minutes":30}`)); err != nil {
		t.Fatal(err)
	}
	payload, ok, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(payload) != `{"watch_minutes":30}` {
		t.Fatalf("got %q ok=%v", payload, ok)
	}

	// Replace.
	if err := s.SetSettings(ctx, []byte(`{"watch_minutes":60}`)); err != nil {
		t.Fatal(err)
	}
	payload, _, _ = s.GetSettings(ctx)
	if string(payload) != `{"watch_minutes":60}` {
		t.Fatalf("after replace: got %q", payload)
	}
}

func TestEventLog(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	logger := NewEventLogger(s)

	logger.Log(ctx, "timer_started", 7, `{"url":"https://www.netflix.com"}`)
	logger.Log(ctx, "timer_snoozed", 7, "")

	events, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != "timer_snoozed" {
		t.Errorf("events[0]: got %q, want timer_snoozed", events[0].Type)
	}
	if events[1].TabID != 7 {
		t.Errorf("events[1] tab: got %d, want 7", events[1].TabID)
	}
}
