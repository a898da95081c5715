package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSettings returns the raw settings payload, or ok=false when no settings
// have been written yet. The store treats the payload as opaque JSON; the
// engine owns the shape and its validation.
func (s *Store) GetSettings(ctx context.Context) (payload []byte, ok bool, err error) {
	var p string
	err = s.DB.QueryRowContext(ctx,
		`SELECT payload FROM settings WHERE id = 1`).Scan(&p)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get settings: %w", err)
	}
	return []byte(p), true, nil
}

// SetSettings replaces the settings payload. The write bumps the database
// version, which is what the settings watcher observes.
func (s *Store) SetSettings(ctx context.Context, payload []byte) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO settings (id, payload, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		string(payload), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: set settings: %w", err)
	}
	return nil
}
