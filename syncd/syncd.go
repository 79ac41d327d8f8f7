// Package syncd keeps watched sources fresh. A ticker polls for stale
// sources and dispatches sync jobs to a bounded worker pool; SyncNow forces
// a source through the same path.
//
// Per-source mutual exclusion: at most one sync runs per source URI at any
// time. A second request while one is in flight returns the existing run ID
// instead of starting duplicate work.
package syncd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/hazyhaar/collector/idgen"
	"github.com/hazyhaar/collector/normalize"
	"github.com/hazyhaar/collector/store"
)

// Result is what one sync attempt produced.
type Result struct {
	Document *normalize.Document

	// ContentHash identifies the fetched content; compared against the
	// source's previous hash to detect unchanged content.
	ContentHash string
}

// Syncer re-fetches and re-processes one source.
type Syncer func(ctx context.Context, src *store.WatchedSource) (*Result, error)

// Sink receives freshly synced documents (the embedding/index collaborator).
type Sink interface {
	Receive(ctx context.Context, doc *normalize.Document) error
}

// Config configures a Scheduler.
type Config struct {
	// TickInterval is how often to poll for stale sources. Default: 5m.
	TickInterval time.Duration

	// Workers bounds concurrent syncs. Default: 4.
	Workers int

	// MaxFailCount disables a source after this many consecutive
	// failures. Default: 10.
	MaxFailCount int

	// NewRunID generates run IDs. Default: "run_" + UUIDv7.
	NewRunID idgen.Generator

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Minute
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxFailCount <= 0 {
		c.MaxFailCount = 10
	}
	if c.NewRunID == nil {
		c.NewRunID = idgen.Prefixed("run_", idgen.UUIDv7)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Scheduler drives the sync state machine.
type Scheduler struct {
	cfg    Config
	store  *store.Store
	sync   Syncer
	sink   Sink
	pool   *ants.Pool
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]string // source URI → run ID
	baseCtx  context.Context
}

// New creates a Scheduler. Close releases the worker pool.
func New(cfg Config, st *store.Store, syncFn Syncer, sink Sink) (*Scheduler, error) {
	cfg.defaults()
	if syncFn == nil {
		return nil, errors.New("syncd: syncer required")
	}
	pool, err := ants.NewPool(cfg.Workers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("syncd: worker pool: %w", err)
	}
	return &Scheduler{
		cfg:      cfg,
		store:    st,
		sync:     syncFn,
		sink:     sink,
		pool:     pool,
		logger:   cfg.Logger,
		inflight: make(map[string]string),
		baseCtx:  context.Background(),
	}, nil
}

// Close releases the worker pool. In-flight syncs finish on their own ctx.
func (s *Scheduler) Close() {
	s.pool.Release()
}

// Run polls for stale sources on a ticker. Blocks until ctx is cancelled.
// Workers inherit ctx, so cancellation finalizes in-flight runs as cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// SyncNow forces a source through a sync immediately, regardless of
// staleness. If a sync for the same source is already running, the existing
// run ID comes back and no new work starts.
func (s *Scheduler) SyncNow(ctx context.Context, sourceURI string) (string, error) {
	src, err := s.store.GetSource(ctx, sourceURI)
	if err != nil {
		return "", err
	}
	return s.dispatch(src)
}

func (s *Scheduler) tick(ctx context.Context) {
	due, err := s.store.DueSources(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("syncd: due sources", "error", err)
		return
	}
	for _, src := range due {
		if _, err := s.dispatch(src); err != nil {
			s.logger.Warn("syncd: dispatch", "source", src.SourceURI, "error", err)
		}
	}
	if len(due) > 0 {
		s.logger.Debug("syncd: tick dispatched", "sources", len(due))
	}
}

// dispatch starts a sync worker for the source unless one is already
// running. Returns the run ID either way.
func (s *Scheduler) dispatch(src *store.WatchedSource) (string, error) {
	s.mu.Lock()
	if runID, ok := s.inflight[src.SourceURI]; ok {
		s.mu.Unlock()
		return runID, nil
	}
	runID := s.cfg.NewRunID()
	s.inflight[src.SourceURI] = runID
	ctx := s.baseCtx
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.inflight, src.SourceURI)
		s.mu.Unlock()
	}

	if err := s.store.CreateRun(ctx, &store.SyncRun{ID: runID, SourceURI: src.SourceURI}); err != nil {
		release()
		return "", err
	}

	if err := s.pool.Submit(func() {
		defer release()
		s.execute(ctx, src, runID)
	}); err != nil {
		release()
		s.finalize(runID, store.OutcomeFailed, "worker pool: "+err.Error())
		return "", fmt.Errorf("syncd: submit: %w", err)
	}
	return runID, nil
}

// execute runs one sync attempt and finalizes the run exactly once.
func (s *Scheduler) execute(ctx context.Context, src *store.WatchedSource, runID string) {
	log := s.logger.With("source", src.SourceURI, "run", runID)
	start := time.Now()

	res, err := s.sync(ctx, src)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || ctx.Err() != nil):
		log.Info("syncd: run cancelled")
		s.finalize(runID, store.OutcomeCancelled, err.Error())
		return

	case err != nil:
		count, ferr := s.store.RecordFailure(ctx, src.SourceURI, s.cfg.MaxFailCount)
		if ferr != nil {
			log.Error("syncd: record failure", "error", ferr)
		}
		if count >= s.cfg.MaxFailCount {
			log.Warn("syncd: source disabled after repeated failures", "fail_count", count)
		}
		log.Warn("syncd: run failed", "error", err, "duration", time.Since(start))
		s.finalize(runID, store.OutcomeFailed, err.Error())
		return
	}

	// Unchanged content is not re-handed to the sink, but the source is
	// still considered freshly synced.
	if res.ContentHash != "" && res.ContentHash == src.LastHash {
		if err := s.store.TouchSynced(ctx, src.SourceURI, time.Now().UTC(), res.ContentHash); err != nil {
			log.Error("syncd: touch synced", "error", err)
		}
		log.Info("syncd: content unchanged", "duration", time.Since(start))
		s.finalize(runID, store.OutcomeSkippedNotStale, "")
		return
	}

	if s.sink != nil && res.Document != nil {
		if err := s.sink.Receive(ctx, res.Document); err != nil {
			log.Warn("syncd: sink rejected document", "error", err)
			s.finalize(runID, store.OutcomeFailed, "sink: "+err.Error())
			return
		}
	}
	if err := s.store.TouchSynced(ctx, src.SourceURI, time.Now().UTC(), res.ContentHash); err != nil {
		log.Error("syncd: touch synced", "error", err)
	}
	log.Info("syncd: run succeeded", "duration", time.Since(start))
	s.finalize(runID, store.OutcomeSuccess, "")
}

// finalize records the outcome on a background context: a cancelled worker
// ctx must not prevent the run from being finalized.
func (s *Scheduler) finalize(runID, outcome, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.FinalizeRun(ctx, runID, outcome, detail); err != nil {
		s.logger.Error("syncd: finalize run", "run", runID, "outcome", outcome, "error", err)
	}
}
