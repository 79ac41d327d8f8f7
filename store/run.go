package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Run outcomes. A run is created with no outcome and finalized exactly once.
const (
	OutcomeSuccess         = "success"
	OutcomeFailed          = "failed"
	OutcomeSkippedNotStale = "skipped-not-stale"
	OutcomeCancelled       = "cancelled"
)

// SyncRun records one sync attempt.
type SyncRun struct {
	ID          string
	SourceURI   string
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Outcome     string    // empty while running
	ErrorDetail string
}

// Running reports whether the run has not been finalized yet.
func (r *SyncRun) Running() bool { return r.Outcome == "" }

// CreateRun inserts a new in-flight run.
func (s *Store) CreateRun(ctx context.Context, run *SyncRun) error {
	if run.ID == "" || run.SourceURI == "" {
		return fmt.Errorf("store: run id and source uri required")
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO sync_runs (id, source_uri, started_at) VALUES (?, ?, ?)`,
		run.ID, run.SourceURI, run.StartedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: create run %s: %w", run.ID, err)
	}
	return nil
}

// FinalizeRun sets the outcome exactly once. A second finalization is a bug
// upstream and comes back as an error instead of silently rewriting history.
func (s *Store) FinalizeRun(ctx context.Context, id, outcome, errorDetail string) error {
	switch outcome {
	case OutcomeSuccess, OutcomeFailed, OutcomeSkippedNotStale, OutcomeCancelled:
	default:
		return fmt.Errorf("store: invalid outcome %q", outcome)
	}
	res, err := s.DB.ExecContext(ctx,
		`UPDATE sync_runs SET finished_at = ?, outcome = ?, error_detail = ?
		WHERE id = ? AND outcome = ''`,
		time.Now().UnixMilli(), outcome, errorDetail, id)
	if err != nil {
		return fmt.Errorf("store: finalize run %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: finalize run %s: already finalized or %w", id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, source_uri, started_at, finished_at, outcome, error_detail`

// GetRun retrieves one run.
func (s *Store) GetRun(ctx context.Context, id string) (*SyncRun, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs WHERE id = ?`, id)
	run, err := scanRun(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: run %s: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRuns returns runs for a source, newest first. limit <= 0 means 50.
func (s *Store) ListRuns(ctx context.Context, sourceURI string, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+runColumns+` FROM sync_runs
		WHERE source_uri = ? ORDER BY started_at DESC LIMIT ?`, sourceURI, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []*SyncRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func scanRun(scan func(...any) error) (*SyncRun, error) {
	var (
		run      SyncRun
		started  int64
		finished sql.NullInt64
	)
	err := scan(&run.ID, &run.SourceURI, &started, &finished, &run.Outcome, &run.ErrorDetail)
	if err != nil {
		return nil, err
	}
	run.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		run.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return &run, nil
}
