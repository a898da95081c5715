package winddown

import (
	"context"
	"fmt"
	"time"
)

// Recover rebuilds in-memory timer state and scheduler wake-ups from the
// durable store after a restart. The store is the source of truth; the
// scheduler lost everything with the process.
//
// For each stored record: records for tabs that no longer exist are
// dropped; a record whose deadline already passed while the process was
// down expires immediately; otherwise its wake-up is re-armed for the
// remaining time. Recovery is deterministic for a given store contents
// and clock, and it never fails the caller — individual problems are
// logged and skipped.
func (e *Engine) Recover(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settings.PausedForTonight {
		// A crash between the pause write and the timer wipe can leave
		// stale rows behind; finish the wipe instead of resurrecting them.
		e.persistLocked(ctx)
		e.events.Log(ctx, "recovery_run", 0, "paused")
		e.logger.Info("recovery: paused for tonight, stored timers discarded")
		return
	}

	rows, err := e.store.LoadTimers(ctx)
	if err != nil {
		e.logger.Error("recovery: timer load failed, starting empty", "error", err)
		return
	}
	if len(rows) == 0 {
		e.logger.Info("recovery: no stored timers")
		return
	}

	now := e.now()
	var restored, expired, dropped int
	for _, row := range rows {
		if _, ok := e.records[row.TabID]; ok {
			continue
		}
		if e.tabs != nil {
			exists, err := e.tabs.TabExists(ctx, row.TabID)
			if err != nil {
				e.logger.Warn("recovery: liveness check failed, keeping record",
					"tab", row.TabID, "error", err)
			} else if !exists {
				dropped++
				continue
			}
		}
		rec := &TimerRecord{
			TabID:           row.TabID,
			State:           State(row.State),
			StartTime:       row.StartTime,
			SnoozedUntil:    row.SnoozedUntil,
			NotifiedBedtime: row.NotifiedBedtime,
			URL:             row.URL,
		}
		e.records[row.TabID] = rec

		if e.sched.Get(WakeupName(row.TabID)) {
			restored++
			continue
		}
		remaining := e.remainingLocked(rec, now)
		if remaining <= 0 {
			rec.State = StateExpired
			rec.SnoozedUntil = 0
			expired++
			if err := e.sink.ShowCountdown(ctx, row.TabID, e.settings.CountdownSeconds); err != nil {
				e.logger.Warn("recovery: countdown delivery failed",
					"tab", row.TabID, "error", err)
			}
			continue
		}
		e.sched.Create(WakeupName(row.TabID), remaining)
		restored++
	}

	e.persistLocked(ctx)
	e.refreshBadgeLocked(ctx)
	e.events.Log(ctx, "recovery_run", 0,
		fmt.Sprintf("restored=%d expired=%d dropped=%d", restored, expired, dropped))
	e.logger.Info("recovery: reconciled stored timers",
		"restored", restored, "expired", expired, "dropped", dropped)
}

// remainingLocked computes how long until a recovered record's deadline.
// Snoozed records run until SnoozedUntil; watching records run until
// StartTime plus the watch duration; expired records are already due.
// Caller holds e.mu.
func (e *Engine) remainingLocked(rec *TimerRecord, now time.Time) time.Duration {
	switch rec.State {
	case StateSnoozed:
		return time.UnixMilli(rec.SnoozedUntil).Sub(now)
	case StateWatching:
		deadline := time.UnixMilli(rec.StartTime).
			Add(time.Duration(e.settings.WatchMinutes) * time.Minute)
		return deadline.Sub(now)
	default:
		return 0
	}
}
