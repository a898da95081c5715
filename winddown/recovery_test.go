package winddown

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/winddown/winddown/internal/store"
)

func seedTimers(t *testing.T, st *store.Store, rows []store.TimerRow) {
	t.Helper()
	if err := st.SaveTimers(context.Background(), rows); err != nil {
		t.Fatalf("seed timers: %v", err)
	}
}

func TestRecoverReArmsRemainingTime(t *testing.T) {
	clk := at(23)
	eng, sched, sink, st := testEngine(t, clk)
	ctx := context.Background()

	// Started 10 minutes ago against a 30-minute watch.
	seedTimers(t, st, []store.TimerRow{{
		TabID:     7,
		State:     string(StateWatching),
		StartTime: clk.now().Add(-10 * time.Minute).UnixMilli(),
		URL:       netflixURL,
	}})

	eng.Recover(ctx)

	d, ok := sched.delay(WakeupName(7))
	if !ok {
		t.Fatal("expected a re-armed wakeup")
	}
	if want := 20 * time.Minute; d != want {
		t.Fatalf("re-armed delay: got %v, want %v", d, want)
	}
	if len(sink.countdowns) != 0 {
		t.Fatal("a live timer must not expire during recovery")
	}
	if st2, _ := eng.Status(7); st2.State != StateWatching {
		t.Fatalf("state: got %q, want %q", st2.State, StateWatching)
	}
}

func TestRecoverExpiresOverdueTimer(t *testing.T) {
	clk := at(23)
	eng, sched, sink, st := testEngine(t, clk)
	ctx := context.Background()

	// Deadline passed while the process was down.
	seedTimers(t, st, []store.TimerRow{{
		TabID:     7,
		State:     string(StateWatching),
		StartTime: clk.now().Add(-45 * time.Minute).UnixMilli(),
		URL:       netflixURL,
	}})

	eng.Recover(ctx)

	if sched.Get(WakeupName(7)) {
		t.Fatal("overdue timer must not get a wakeup")
	}
	if len(sink.countdowns) != 1 || sink.countdowns[0] != 7 {
		t.Fatalf("countdowns: got %v, want [7]", sink.countdowns)
	}
	st2, _ := eng.Status(7)
	if st2.State != StateExpired {
		t.Fatalf("state: got %q, want %q", st2.State, StateExpired)
	}
}

func TestRecoverHonorsSnoozeDeadline(t *testing.T) {
	clk := at(23)
	eng, sched, _, st := testEngine(t, clk)
	ctx := context.Background()

	seedTimers(t, st, []store.TimerRow{{
		TabID:        7,
		State:        string(StateSnoozed),
		StartTime:    clk.now().Add(-40 * time.Minute).UnixMilli(),
		SnoozedUntil: clk.now().Add(8 * time.Minute).UnixMilli(),
		URL:          netflixURL,
	}})

	eng.Recover(ctx)

	if d, _ := sched.delay(WakeupName(7)); d != 8*time.Minute {
		t.Fatalf("snooze re-arm: got %v, want 8m", d)
	}
	st2, _ := eng.Status(7)
	if st2.State != StateSnoozed {
		t.Fatalf("state: got %q, want %q", st2.State, StateSnoozed)
	}
}

func TestRecoverDropsClosedTabs(t *testing.T) {
	clk := at(23)
	tabs := &fakeTabs{open: map[int]string{12: netflixURL}}
	eng, sched, _, st := testEngine(t, clk, WithTabSource(tabs))
	ctx := context.Background()

	seedTimers(t, st, []store.TimerRow{
		{TabID: 7, State: string(StateWatching), StartTime: clk.now().Add(-5 * time.Minute).UnixMilli(), URL: netflixURL},
		{TabID: 12, State: string(StateWatching), StartTime: clk.now().Add(-5 * time.Minute).UnixMilli(), URL: netflixURL},
	})

	eng.Recover(ctx)

	if _, ok := eng.Status(7); ok {
		t.Fatal("record for closed tab must be dropped")
	}
	if sched.Get(WakeupName(7)) {
		t.Fatal("no wakeup for closed tab")
	}
	if _, ok := eng.Status(12); !ok {
		t.Fatal("record for open tab must survive")
	}

	// The dropped record is also gone from the store.
	rows, err := st.LoadTimers(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].TabID != 12 {
		t.Fatalf("stored rows after recovery: got %v", rows)
	}
}

func TestRecoverLeavesExistingWakeupsAlone(t *testing.T) {
	clk := at(23)
	eng, sched, _, st := testEngine(t, clk)
	ctx := context.Background()

	seedTimers(t, st, []store.TimerRow{{
		TabID:     7,
		State:     string(StateWatching),
		StartTime: clk.now().Add(-10 * time.Minute).UnixMilli(),
		URL:       netflixURL,
	}})
	sched.Create(WakeupName(7), 99*time.Minute)

	eng.Recover(ctx)

	if d, _ := sched.delay(WakeupName(7)); d != 99*time.Minute {
		t.Fatalf("existing wakeup replaced: got %v", d)
	}
}

func TestRecoverIsDeterministic(t *testing.T) {
	clk := at(23)
	rows := []store.TimerRow{
		{TabID: 3, State: string(StateWatching), StartTime: clk.now().Add(-45 * time.Minute).UnixMilli(), URL: netflixURL},
		{TabID: 7, State: string(StateWatching), StartTime: clk.now().Add(-15 * time.Minute).UnixMilli(), URL: netflixURL},
	}

	for run := 0; run < 2; run++ {
		eng, sched, sink, st := testEngine(t, clk)
		seedTimers(t, st, rows)
		eng.Recover(context.Background())

		if len(sink.countdowns) != 1 || sink.countdowns[0] != 3 {
			t.Fatalf("run %d: countdowns %v, want [3]", run, sink.countdowns)
		}
		if d, _ := sched.delay(WakeupName(7)); d != 15*time.Minute {
			t.Fatalf("run %d: tab 7 re-arm %v, want 15m", run, d)
		}
	}
}

func TestRecoverWhilePausedDiscardsStoredTimers(t *testing.T) {
	clk := at(23)
	st := testStore(t)
	ctx := context.Background()

	// A crash between writing the pause and wiping the timers leaves
	// paused settings next to live rows.
	paused := DefaultSettings()
	paused.PausedForTonight = true
	raw, err := paused.MarshalJSONPayload()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := st.SetSettings(ctx, raw); err != nil {
		t.Fatalf("seed settings: %v", err)
	}
	seedTimers(t, st, []store.TimerRow{{
		TabID:     7,
		State:     string(StateWatching),
		StartTime: clk.now().Add(-10 * time.Minute).UnixMilli(),
		URL:       netflixURL,
	}})

	sched := newFakeSched()
	sink := &fakeSink{}
	eng, err := NewEngine(ctx, sched, st, WithSink(sink), WithClock(clk.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	eng.Recover(ctx)

	if got := len(eng.ListTimers()); got != 0 {
		t.Fatalf("timers after paused recovery: got %d, want 0", got)
	}
	if sched.Get(WakeupName(7)) {
		t.Fatal("paused recovery must not re-arm wakeups")
	}
	if len(sink.countdowns) != 0 {
		t.Fatal("paused recovery must not show countdowns")
	}
	rows, err := st.LoadTimers(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("stored rows after paused recovery: got %d, want 0 (wipe must finish)", len(rows))
	}
}

func TestRecoverWithEmptyStore(t *testing.T) {
	eng, sched, sink, _ := testEngine(t, at(23))
	eng.Recover(context.Background())

	if len(eng.ListTimers()) != 0 {
		t.Fatal("expected no timers")
	}
	if sched.Get(BadgeWakeupName) {
		t.Fatal("recovery must not create the badge wakeup")
	}
	if len(sink.countdowns) != 0 {
		t.Fatal("expected no countdowns")
	}
}
