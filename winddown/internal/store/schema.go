package store

// Schema is the winddown database schema. Applied on every Open; all
// statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS session_meta (
    k TEXT PRIMARY KEY,
    v TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS session_timers (
    tab_id           INTEGER PRIMARY KEY,
    state            TEXT NOT NULL,
    start_time       INTEGER NOT NULL,             -- milliseconds since epoch
    snoozed_until    INTEGER,                      -- NULL unless snoozed
    notified_bedtime INTEGER NOT NULL DEFAULT 0,
    url              TEXT NOT NULL DEFAULT '',
    updated_at       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    payload    TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS event_log (
    event_id   TEXT PRIMARY KEY,
    event_type TEXT NOT NULL,
    tab_id     INTEGER,
    details    TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_event_log_created ON event_log (created_at);
`
