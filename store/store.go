// Package store is the data access layer for watched sources, sync runs,
// and the known-files set backing orphan cleanup.
//
// Timestamps are stored as Unix milliseconds; durations as milliseconds.
// The store receives an already-opened *sql.DB (see dbopen) and never
// opens connections itself.
package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("store: not found")

// Schema is applied on startup. Idempotent.
const Schema = `
-- Sources kept in sync on a schedule
CREATE TABLE IF NOT EXISTS watched_sources (
    source_uri      TEXT PRIMARY KEY,
    kind            TEXT NOT NULL,
    last_synced_at  INTEGER,
    stale_after     INTEGER NOT NULL DEFAULT 604800000,
    enabled         INTEGER NOT NULL DEFAULT 1,
    fail_count      INTEGER NOT NULL DEFAULT 0,
    last_hash       TEXT NOT NULL DEFAULT '',
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_watched_enabled ON watched_sources(enabled, last_synced_at);

-- One row per sync attempt; immutable after finalization
CREATE TABLE IF NOT EXISTS sync_runs (
    id              TEXT PRIMARY KEY,
    source_uri      TEXT NOT NULL,
    started_at      INTEGER NOT NULL,
    finished_at     INTEGER,
    outcome         TEXT NOT NULL DEFAULT '',
    error_detail    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_runs_source ON sync_runs(source_uri, started_at DESC);

-- Files in the scratch directory that belong to live documents
CREATE TABLE IF NOT EXISTS known_files (
    name            TEXT PRIMARY KEY,
    registered_at   INTEGER NOT NULL
);
`

// Store wraps the collector database.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}
