// Package store provides the SQLite persistence layer for winddown: the
// session-scoped timer set, the settings slot, and the event log.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/winddown/dbopen"
)

// Store is the winddown database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the winddown SQLite database at path and applies
// the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// BeginSession declares the browser session this daemon run belongs to.
// Timer state is session-scoped: when the session id differs from the one on
// disk, the persisted timer set belongs to a closed browser and is wiped.
// Within the same session the set is kept, so a daemon restart can recover.
func (s *Store) BeginSession(ctx context.Context, sessionID string) (fresh bool, err error) {
	var prev string
	err = s.DB.QueryRowContext(ctx,
		`SELECT v FROM session_meta WHERE k = 'session_id'`).Scan(&prev)
	if err != nil && err != sql.ErrNoRows {
		return false, fmt.Errorf("store: read session id: %w", err)
	}

	if prev == sessionID {
		return false, nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin session: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM session_timers`); err != nil {
		return false, fmt.Errorf("store: wipe stale session timers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_meta (k, v) VALUES ('session_id', ?)
		ON CONFLICT (k) DO UPDATE SET v = excluded.v`, sessionID); err != nil {
		return false, fmt.Errorf("store: write session id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
