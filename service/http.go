package service

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/collector/normalize"
	"github.com/hazyhaar/collector/store"
)

// processResponse is the envelope for every processing endpoint.
type processResponse struct {
	Success   bool                  `json:"success"`
	Documents []*normalize.Document `json:"documents"`
	Reason    string                `json:"reason,omitempty"`
}

// Routes builds the HTTP API. All mutating endpoints pass the gate
// middleware; read endpoints are open.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/formats", s.handleFormats)
		r.Get("/watch", s.handleWatchList)
		r.Get("/sync-runs/{sourceURI}", s.handleRunHistory)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.Middleware)
			r.Post("/process/file", s.handleProcessFile)
			r.Post("/process/link", s.handleProcessLink)
			r.Post("/process/raw-text", s.handleProcessRawText)
			r.Post("/sync/{sourceURI}", s.handleSyncNow)
			r.Post("/cleanup-orphans", s.handleCleanupOrphans)
			r.Post("/watch", s.handleWatch)
			r.Delete("/watch/{sourceURI}", s.handleUnwatch)
		})
	})

	return r
}

func (s *Service) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Service) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"formats": s.Formats()})
}

func (s *Service) handleProcessFile(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Filename == "" {
		http.Error(w, "filename required", http.StatusBadRequest)
		return
	}
	doc, err := s.ProcessFile(r.Context(), req)
	s.writeProcessResult(w, doc, err)
}

func (s *Service) handleProcessLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url required", http.StatusBadRequest)
		return
	}
	doc, err := s.ProcessLink(r.Context(), req)
	s.writeProcessResult(w, doc, err)
}

func (s *Service) handleProcessRawText(w http.ResponseWriter, r *http.Request) {
	var req RawTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	doc, err := s.ProcessRawText(r.Context(), req)
	s.writeProcessResult(w, doc, err)
}

func (s *Service) handleSyncNow(w http.ResponseWriter, r *http.Request) {
	uri, ok := pathSourceURI(w, r)
	if !ok {
		return
	}
	runID, err := s.SyncNow(r.Context(), uri)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"runId": runID})
}

func (s *Service) handleCleanupOrphans(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchSize int  `json:"batchSize,omitempty"`
		DryRun    bool `json:"dryRun,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	report, err := s.CleanupOrphans(r.Context(), req.BatchSize, req.DryRun)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleWatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceURI    string `json:"sourceURI"`
		Kind         string `json:"kind"`
		StaleAfterMs int64  `json:"staleAfterMs,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.SourceURI == "" || req.Kind == "" {
		http.Error(w, "sourceURI and kind required", http.StatusBadRequest)
		return
	}
	src := &store.WatchedSource{
		SourceURI:  req.SourceURI,
		Kind:       req.Kind,
		StaleAfter: time.Duration(req.StaleAfterMs) * time.Millisecond,
	}
	if err := s.store.Watch(r.Context(), src); err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"sourceURI": req.SourceURI})
}

func (s *Service) handleUnwatch(w http.ResponseWriter, r *http.Request) {
	uri, ok := pathSourceURI(w, r)
	if !ok {
		return
	}
	if err := s.store.Unwatch(r.Context(), uri); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleWatchList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	type watchEntry struct {
		SourceURI    string `json:"sourceURI"`
		Kind         string `json:"kind"`
		LastSyncedAt string `json:"lastSyncedAt,omitempty"`
		StaleAfterMs int64  `json:"staleAfterMs"`
		Enabled      bool   `json:"enabled"`
		FailCount    int    `json:"failCount"`
	}
	out := make([]watchEntry, 0, len(sources))
	for _, src := range sources {
		e := watchEntry{
			SourceURI:    src.SourceURI,
			Kind:         src.Kind,
			StaleAfterMs: src.StaleAfter.Milliseconds(),
			Enabled:      src.Enabled,
			FailCount:    src.FailCount,
		}
		if !src.LastSyncedAt.IsZero() {
			e.LastSyncedAt = src.LastSyncedAt.Format(time.RFC3339)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Service) handleRunHistory(w http.ResponseWriter, r *http.Request) {
	uri, ok := pathSourceURI(w, r)
	if !ok {
		return
	}
	runs, err := s.store.ListRuns(r.Context(), uri, 0)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	type runEntry struct {
		ID          string `json:"id"`
		SourceURI   string `json:"sourceURI"`
		StartedAt   string `json:"startedAt"`
		FinishedAt  string `json:"finishedAt,omitempty"`
		Outcome     string `json:"outcome,omitempty"`
		ErrorDetail string `json:"errorDetail,omitempty"`
	}
	out := make([]runEntry, 0, len(runs))
	for _, run := range runs {
		e := runEntry{
			ID:          run.ID,
			SourceURI:   run.SourceURI,
			StartedAt:   run.StartedAt.Format(time.RFC3339),
			Outcome:     run.Outcome,
			ErrorDetail: run.ErrorDetail,
		}
		if !run.FinishedAt.IsZero() {
			e.FinishedAt = run.FinishedAt.Format(time.RFC3339)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Service) writeProcessResult(w http.ResponseWriter, doc *normalize.Document, err error) {
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Success:   true,
		Documents: []*normalize.Document{doc},
	})
}

func (s *Service) writeFailure(w http.ResponseWriter, err error) {
	reason := Reason(err)
	if reason == ReasonInternal {
		// Internal detail stays in the log.
		s.logger.Error("request failed", "error", err)
	} else {
		s.logger.Warn("request rejected", "reason", reason)
	}
	writeJSON(w, statusFor(reason), processResponse{
		Success:   false,
		Documents: []*normalize.Document{},
		Reason:    reason,
	})
}

func statusFor(reason string) int {
	switch reason {
	case ReasonIntegrityViolation:
		return http.StatusForbidden
	case ReasonNotFound:
		return http.StatusNotFound
	case ReasonUnsupportedFormat, ReasonUnsupportedSubformat,
		ReasonNoTextExtracted, ReasonCorruptInput:
		return http.StatusUnprocessableEntity
	case ReasonTimeout:
		return http.StatusGatewayTimeout
	case ReasonCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// pathSourceURI extracts and decodes the {sourceURI} path parameter.
// URIs contain slashes, so clients percent-encode them.
func pathSourceURI(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "sourceURI")
	uri, err := url.PathUnescape(raw)
	if err != nil || uri == "" {
		http.Error(w, "invalid source URI", http.StatusBadRequest)
		return "", false
	}
	return uri, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
