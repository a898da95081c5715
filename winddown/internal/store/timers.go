package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// TimerRow is a persisted per-tab timer. Timestamps are milliseconds since
// epoch; SnoozedUntil is zero unless the timer is snoozed.
type TimerRow struct {
	TabID           int
	State           string
	StartTime       int64
	SnoozedUntil    int64
	NotifiedBedtime bool
	URL             string
}

// SaveTimers persists the full current timer set, replacing any prior value.
// The replace is transactional: a restart observes either the pre-save or the
// post-save set, never a mix.
func (s *Store) SaveTimers(ctx context.Context, rows []TimerRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: save timers: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_timers`); err != nil {
		return fmt.Errorf("store: clear timers: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, r := range rows {
		var snoozed sql.NullInt64
		if r.SnoozedUntil > 0 {
			snoozed = sql.NullInt64{Int64: r.SnoozedUntil, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_timers
				(tab_id, state, start_time, snoozed_until, notified_bedtime, url, updated_at)
			VALUES (?,?,?,?,?,?,?)`,
			r.TabID, r.State, r.StartTime, snoozed, r.NotifiedBedtime, r.URL, now)
		if err != nil {
			return fmt.Errorf("store: insert timer tab=%d: %w", r.TabID, err)
		}
	}

	return tx.Commit()
}

// LoadTimers returns the persisted timer set. Rows that fail to scan are
// skipped with a warning rather than failing the load: malformed persisted
// state degrades to "less prior state", never to a startup error.
func (s *Store) LoadTimers(ctx context.Context) ([]TimerRow, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT tab_id, state, start_time, snoozed_until, notified_bedtime, url
		FROM session_timers ORDER BY tab_id`)
	if err != nil {
		return nil, fmt.Errorf("store: load timers: %w", err)
	}
	defer rows.Close()

	var out []TimerRow
	for rows.Next() {
		var r TimerRow
		var snoozed sql.NullInt64
		if err := rows.Scan(&r.TabID, &r.State, &r.StartTime, &snoozed, &r.NotifiedBedtime, &r.URL); err != nil {
			slog.Warn("store: skipping malformed timer row", "error", err)
			continue
		}
		if snoozed.Valid {
			r.SnoozedUntil = snoozed.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
