// Package reaper removes orphaned files from the scratch directory: anything
// on disk that no live document claims. Deletion runs in batches so a huge
// backlog cannot starve the rest of the process.
package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hazyhaar/collector/store"
)

// DefaultBatchSize bounds how many deletions happen between context checks.
const DefaultBatchSize = 500

// Config configures a Reaper.
type Config struct {
	// ScratchDir is the directory swept for orphans.
	ScratchDir string

	Logger *slog.Logger
}

// SweepOptions tune a single sweep.
type SweepOptions struct {
	// BatchSize bounds deletions per batch. Default: DefaultBatchSize.
	BatchSize int

	// DryRun reports what would be deleted without touching anything.
	DryRun bool
}

// Report summarizes one sweep.
type Report struct {
	Scanned  int               `json:"scanned"`
	Orphans  int               `json:"orphans"`
	Deleted  int               `json:"deleted"`
	DryRun   bool              `json:"dryRun"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Reaper sweeps the scratch directory.
type Reaper struct {
	cfg   Config
	store *store.Store
}

// New creates a Reaper.
func New(cfg Config, st *store.Store) (*Reaper, error) {
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("reaper: scratch dir required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Reaper{cfg: cfg, store: st}, nil
}

// Sweep lists the scratch directory, subtracts the known-files set, and
// deletes (or reports) the rest. Subdirectories are left alone. A failure to
// delete one file never aborts the sweep; it lands in Report.Failures.
func (r *Reaper) Sweep(ctx context.Context, opts SweepOptions) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	known, err := r.store.KnownFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("reaper: load known files: %w", err)
	}

	entries, err := os.ReadDir(r.cfg.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("reaper: read scratch dir: %w", err)
	}

	report := &Report{DryRun: opts.DryRun, Failures: map[string]string{}}
	inBatch := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		report.Scanned++

		name := entry.Name()
		if known[name] {
			continue
		}
		report.Orphans++

		if opts.DryRun {
			continue
		}

		if inBatch >= opts.BatchSize {
			inBatch = 0
			if err := ctx.Err(); err != nil {
				return report, err
			}
		}
		inBatch++

		if err := os.Remove(filepath.Join(r.cfg.ScratchDir, name)); err != nil {
			r.cfg.Logger.Warn("reaper: delete failed", "file", name, "error", err)
			report.Failures[name] = err.Error()
			continue
		}
		report.Deleted++
	}

	r.cfg.Logger.Info("reaper: sweep complete",
		"scanned", report.Scanned,
		"orphans", report.Orphans,
		"deleted", report.Deleted,
		"dry_run", opts.DryRun,
		"failures", len(report.Failures))

	if len(report.Failures) == 0 {
		report.Failures = nil
	}
	return report, nil
}
