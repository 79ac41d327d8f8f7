package store

import (
	"context"
	"fmt"
	"time"
)

// RegisterFile marks a scratch-directory file as belonging to a live
// document so the reaper leaves it alone.
func (s *Store) RegisterFile(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO known_files (name, registered_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: register file %s: %w", name, err)
	}
	return nil
}

// ForgetFile removes a file from the known set; the reaper may then
// collect it.
func (s *Store) ForgetFile(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM known_files WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("store: forget file %s: %w", name, err)
	}
	return nil
}

// KnownFiles returns the full set of registered names.
func (s *Store) KnownFiles(ctx context.Context) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT name FROM known_files`)
	if err != nil {
		return nil, fmt.Errorf("store: known files: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}
