// Package watch provides the "poll SQLite, detect change, reload" loop that
// drives winddown's settings-change notifications. Every settings write lands
// in the database; the watcher notices the write — no matter which process or
// surface made it — and triggers a reload, so the engine observes one uniform
// change stream.
package watch

import (
	"context"
	"database/sql"
	"log/slog"
	"time"
)

// Detector reads a version token from the database. Two calls returning
// different values mean "something changed".
type Detector func(ctx context.Context, db *sql.DB) (int64, error)

// DataVersion uses PRAGMA data_version, which increments whenever another
// connection writes to the same database file. Detects cross-process and
// cross-connection mutations.
func DataVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var v int64
	err := db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, err
}

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 500ms.
	Interval time.Duration
	// Detector overrides the default DataVersion detector.
	Detector Detector
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Detector == nil {
		o.Detector = DataVersion
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Watcher polls a SQLite database and runs an action when its version token
// advances.
type Watcher struct {
	db      *sql.DB
	opts    Options
	version int64
}

// New creates a Watcher. Call OnChange to start the loop.
func New(db *sql.DB, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{db: db, opts: opts}
}

// OnChange blocks until ctx is cancelled, polling at opts.Interval. When the
// detector reports a new version, action is called. If action returns an
// error the version is not advanced, so the action retries on the next poll.
func (w *Watcher) OnChange(ctx context.Context, action func() error) {
	log := w.opts.Logger

	// Seed the initial version so startup does not count as a change.
	v, err := w.opts.Detector(ctx, w.db)
	if err != nil {
		log.Warn("watch: initial version check failed", "error", err)
	} else {
		w.version = v
	}

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	log.Info("watch: started", "interval", w.opts.Interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			return
		case <-ticker.C:
			cur, err := w.opts.Detector(ctx, w.db)
			if err != nil {
				log.Warn("watch: version check failed", "error", err)
				continue
			}
			if cur == w.version {
				continue
			}
			if err := action(); err != nil {
				log.Error("watch: reload failed", "error", err, "version", cur)
				continue
			}
			log.Debug("watch: reload complete", "old_version", w.version, "new_version", cur)
			w.version = cur
		}
	}
}
