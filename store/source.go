package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultStaleAfter is how long a synced source stays fresh before the
// scheduler considers it due again.
const DefaultStaleAfter = 7 * 24 * time.Hour

// WatchedSource is a source kept in sync on a schedule.
type WatchedSource struct {
	SourceURI    string
	Kind         string
	LastSyncedAt time.Time // zero = never synced
	StaleAfter   time.Duration
	Enabled      bool
	FailCount    int
	LastHash     string // content hash of the last successful sync
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Watch registers a source, or re-enables and updates an existing one.
// Sync history (last_synced_at, fail_count) survives re-watching.
func (s *Store) Watch(ctx context.Context, src *WatchedSource) error {
	if src.SourceURI == "" {
		return fmt.Errorf("store: source uri required")
	}
	if src.StaleAfter <= 0 {
		src.StaleAfter = DefaultStaleAfter
	}
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO watched_sources (source_uri, kind, stale_after, enabled, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON CONFLICT(source_uri) DO UPDATE SET
			kind = excluded.kind,
			stale_after = excluded.stale_after,
			enabled = 1,
			updated_at = excluded.updated_at`,
		src.SourceURI, src.Kind, src.StaleAfter.Milliseconds(), now, now)
	if err != nil {
		return fmt.Errorf("store: watch %s: %w", src.SourceURI, err)
	}
	return nil
}

// Unwatch removes a source. Its run history is kept.
func (s *Store) Unwatch(ctx context.Context, uri string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watched_sources WHERE source_uri = ?`, uri)
	if err != nil {
		return fmt.Errorf("store: unwatch %s: %w", uri, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: unwatch %s: %w", uri, ErrNotFound)
	}
	return nil
}

const sourceColumns = `source_uri, kind, last_synced_at, stale_after, enabled,
	fail_count, last_hash, created_at, updated_at`

// GetSource retrieves one watched source.
func (s *Store) GetSource(ctx context.Context, uri string) (*WatchedSource, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM watched_sources WHERE source_uri = ?`, uri)
	src, err := scanSource(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: source %s: %w", uri, ErrNotFound)
	}
	return src, err
}

// ListSources returns all watched sources, newest first.
func (s *Store) ListSources(ctx context.Context) ([]*WatchedSource, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM watched_sources ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var out []*WatchedSource
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DueSources returns enabled sources whose content has gone stale at the
// given instant: strictly more than stale_after has elapsed since the last
// sync. Never-synced sources are always due.
func (s *Store) DueSources(ctx context.Context, now time.Time) ([]*WatchedSource, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM watched_sources
		WHERE enabled = 1
		  AND (last_synced_at IS NULL OR last_synced_at + stale_after < ?)
		ORDER BY last_synced_at ASC`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("store: due sources: %w", err)
	}
	defer rows.Close()

	var out []*WatchedSource
	for rows.Next() {
		src, err := scanSource(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// TouchSynced records a successful (or skipped-not-stale) sync: bumps
// last_synced_at, stores the content hash, and clears the failure streak.
func (s *Store) TouchSynced(ctx context.Context, uri string, at time.Time, hash string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE watched_sources
		SET last_synced_at = ?, last_hash = ?, fail_count = 0, updated_at = ?
		WHERE source_uri = ?`,
		at.UnixMilli(), hash, time.Now().UnixMilli(), uri)
	if err != nil {
		return fmt.Errorf("store: touch %s: %w", uri, err)
	}
	return nil
}

// RecordFailure increments the failure streak and disables the source once
// it reaches maxFailCount. Returns the new count. last_synced_at is left
// unchanged so the source stays due for the next tick.
func (s *Store) RecordFailure(ctx context.Context, uri string, maxFailCount int) (int, error) {
	res := s.DB.QueryRowContext(ctx,
		`UPDATE watched_sources
		SET fail_count = fail_count + 1,
		    enabled = CASE WHEN fail_count + 1 >= ? THEN 0 ELSE enabled END,
		    updated_at = ?
		WHERE source_uri = ?
		RETURNING fail_count`,
		maxFailCount, time.Now().UnixMilli(), uri)

	var count int
	if err := res.Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("store: record failure %s: %w", uri, ErrNotFound)
		}
		return 0, fmt.Errorf("store: record failure %s: %w", uri, err)
	}
	return count, nil
}

// SetEnabled flips a source on or off. Re-enabling clears the failure streak.
func (s *Store) SetEnabled(ctx context.Context, uri string, enabled bool) error {
	query := `UPDATE watched_sources SET enabled = ?, updated_at = ? WHERE source_uri = ?`
	if enabled {
		query = `UPDATE watched_sources SET enabled = ?, fail_count = 0, updated_at = ? WHERE source_uri = ?`
	}
	res, err := s.DB.ExecContext(ctx, query, enabled, time.Now().UnixMilli(), uri)
	if err != nil {
		return fmt.Errorf("store: set enabled %s: %w", uri, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: set enabled %s: %w", uri, ErrNotFound)
	}
	return nil
}

func scanSource(scan func(...any) error) (*WatchedSource, error) {
	var (
		src        WatchedSource
		lastSynced sql.NullInt64
		staleAfter int64
		created    int64
		updated    int64
	)
	err := scan(&src.SourceURI, &src.Kind, &lastSynced, &staleAfter,
		&src.Enabled, &src.FailCount, &src.LastHash, &created, &updated)
	if err != nil {
		return nil, err
	}
	if lastSynced.Valid {
		src.LastSyncedAt = time.UnixMilli(lastSynced.Int64).UTC()
	}
	src.StaleAfter = time.Duration(staleAfter) * time.Millisecond
	src.CreatedAt = time.UnixMilli(created).UTC()
	src.UpdatedAt = time.UnixMilli(updated).UTC()
	return &src, nil
}
