package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/hazyhaar/winddown/idgen"
)

// Event is a domain-level audit record: a timer started, expired, was
// snoozed, settings changed, a recovery pass ran.
type Event struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	TabID   int    `json:"tab_id,omitempty"`
	Details string `json:"details,omitempty"` // optional JSON
	At      int64  `json:"at"`                // milliseconds since epoch
}

// EventLogger writes audit events to the event_log table.
type EventLogger struct {
	store *Store
	newID idgen.Generator
}

// NewEventLogger creates an event logger backed by the store.
func NewEventLogger(s *Store) *EventLogger {
	return &EventLogger{
		store: s,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
}

// Log records an event. Best-effort: failures are logged via slog but never
// propagate, so a failing audit trail never blocks a timer operation.
func (l *EventLogger) Log(ctx context.Context, eventType string, tabID int, details string) {
	_, err := l.store.DB.ExecContext(ctx, `
		INSERT INTO event_log (event_id, event_type, tab_id, details, created_at)
		VALUES (?,?,?,?,?)`,
		l.newID(), eventType, tabID, details, time.Now().UnixMilli())
	if err != nil {
		slog.Error("store: event log failed", "error", err, "event_type", eventType)
	}
}

// Recent returns the most recent events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT event_id, event_type, COALESCE(tab_id, 0), COALESCE(details, ''), created_at
		FROM event_log ORDER BY created_at DESC, event_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Type, &e.TabID, &e.Details, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
