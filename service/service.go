// Package service wires the pipeline together: gate → sniff → convert →
// normalize → sink. It owns the HTTP surface and the sync/reaper wiring.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/collector/docconv"
	"github.com/hazyhaar/collector/gate"
	"github.com/hazyhaar/collector/normalize"
	"github.com/hazyhaar/collector/reaper"
	"github.com/hazyhaar/collector/store"
	"github.com/hazyhaar/collector/syncd"
)

// Failure reasons reported to clients. Internal detail never crosses this
// boundary; the reason string is the whole story.
const (
	ReasonUnsupportedFormat    = "unsupported-format"
	ReasonNoTextExtracted      = "no-text-extracted"
	ReasonCorruptInput         = "corrupt-input"
	ReasonUnsupportedSubformat = "unsupported-subformat"
	ReasonIntegrityViolation   = "integrity-violation"
	ReasonTimeout              = "timeout"
	ReasonCancelled            = "cancelled"
	ReasonNotFound             = "not-found"
	ReasonInternal             = "internal-error"
)

// Config configures a Service.
type Config struct {
	// ScratchDir is where uploaded files live and where the reaper sweeps.
	ScratchDir string

	// DefaultOCRLanguages applies when a request names none.
	DefaultOCRLanguages []string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.DefaultOCRLanguages) == 0 {
		c.DefaultOCRLanguages = []string{"eng"}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Service is the pipeline orchestrator.
type Service struct {
	cfg    Config
	gate   *gate.Gate
	conv   *docconv.Registry
	norm   *normalize.Normalizer
	store  *store.Store
	reaper *reaper.Reaper
	sched  *syncd.Scheduler
	sink   syncd.Sink
	logger *slog.Logger
}

// New creates a Service. The scheduler is wired afterwards with SetScheduler
// because the scheduler's Syncer closes over the service.
func New(cfg Config, g *gate.Gate, conv *docconv.Registry, norm *normalize.Normalizer,
	st *store.Store, rp *reaper.Reaper, sink syncd.Sink) (*Service, error) {
	cfg.defaults()
	if cfg.ScratchDir == "" {
		return nil, errors.New("service: scratch dir required")
	}
	return &Service{
		cfg:    cfg,
		gate:   g,
		conv:   conv,
		norm:   norm,
		store:  st,
		reaper: rp,
		sink:   sink,
		logger: cfg.Logger,
	}, nil
}

// SetScheduler attaches the sync scheduler once it exists.
func (s *Service) SetScheduler(sched *syncd.Scheduler) { s.sched = sched }

// FileRequest asks for one already-uploaded file to be processed.
type FileRequest struct {
	Filename     string   `json:"filename"`
	OCRLanguages []string `json:"ocrLanguages,omitempty"`
	ParseOnly    bool     `json:"parseOnly,omitempty"`
}

// ProcessFile runs the full pipeline over a file inside the scratch dir.
func (s *Service) ProcessFile(ctx context.Context, req FileRequest) (*normalize.Document, error) {
	path, err := s.gate.ResolvePath(req.Filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", req.Filename, store.ErrNotFound)
		}
		return nil, fmt.Errorf("service: stat: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("service: read: %w", err)
	}

	format, err := docconv.Detect(path, data)
	if err != nil {
		return nil, err
	}

	res, err := s.conv.Convert(ctx, format, docconv.Input{
		Name:    filepath.Base(path),
		Data:    data,
		ModTime: info.ModTime(),
	}, docconv.Options{
		OCRLanguages: s.ocrLanguages(req.OCRLanguages),
	})
	if err != nil {
		return nil, err
	}

	doc := s.norm.Normalize(res, normalize.Meta{
		SourceURI:  "file://" + path,
		SourceKind: normalize.KindUploadedFile,
		ModTime:    info.ModTime(),
	})

	if req.ParseOnly {
		return doc, nil
	}
	return doc, s.deliver(ctx, doc, filepath.Base(path))
}

// LinkRequest asks for a web page or repository to be processed.
type LinkRequest struct {
	URL         string            `json:"url"`
	CaptureMode string            `json:"captureMode,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	ParseOnly   bool              `json:"parseOnly,omitempty"`
}

// ProcessLink fetches and processes a link. repo:// locators route to the
// repository adapter, everything else to the web fetcher.
func (s *Service) ProcessLink(ctx context.Context, req LinkRequest) (*normalize.Document, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, fmt.Errorf("%w: empty url", docconv.ErrUnsupportedFormat)
	}

	format := docconv.FormatWeb
	kind := normalize.KindWebLink
	if strings.HasPrefix(req.URL, "repo://") {
		format = docconv.FormatRepo
		kind = normalize.KindRepository
	}

	res, err := s.conv.Convert(ctx, format, docconv.Input{Name: req.URL}, docconv.Options{
		CaptureMode: req.CaptureMode,
		Headers:     req.Headers,
	})
	if err != nil {
		return nil, err
	}

	doc := s.norm.Normalize(res, normalize.Meta{
		SourceURI:  req.URL,
		SourceKind: kind,
	})
	if req.ParseOnly {
		return doc, nil
	}
	return doc, s.deliver(ctx, doc, "")
}

// RawTextRequest submits text directly, no file or fetch involved.
type RawTextRequest struct {
	TextContent string `json:"textContent"`
	Metadata    struct {
		Title  string `json:"title,omitempty"`
		Author string `json:"author,omitempty"`
	} `json:"metadata"`
	ParseOnly bool `json:"parseOnly,omitempty"`
}

// ProcessRawText normalizes caller-supplied text. The source URI is derived
// from the content hash so identical submissions share an identity.
func (s *Service) ProcessRawText(ctx context.Context, req RawTextRequest) (*normalize.Document, error) {
	content := normalize.CleanContent(req.TextContent)
	if content == "" {
		return nil, docconv.ErrNoTextExtracted
	}

	doc := s.norm.Normalize(&docconv.Result{
		Title:   req.Metadata.Title,
		Content: content,
	}, normalize.Meta{
		SourceURI:  normalize.RawTextURI(content),
		SourceKind: normalize.KindRawText,
		Title:      req.Metadata.Title,
		Author:     req.Metadata.Author,
	})
	if req.ParseOnly {
		return doc, nil
	}
	return doc, s.deliver(ctx, doc, "")
}

// SyncNow forces a sync run for a watched source and returns the run ID.
func (s *Service) SyncNow(ctx context.Context, sourceURI string) (string, error) {
	if s.sched == nil {
		return "", errors.New("service: scheduler not attached")
	}
	return s.sched.SyncNow(ctx, sourceURI)
}

// CleanupOrphans sweeps the scratch directory.
func (s *Service) CleanupOrphans(ctx context.Context, batchSize int, dryRun bool) (*reaper.Report, error) {
	return s.reaper.Sweep(ctx, reaper.SweepOptions{BatchSize: batchSize, DryRun: dryRun})
}

// Formats lists the formats the converter registry can handle.
func (s *Service) Formats() []docconv.Format {
	return s.conv.Formats()
}

// SyncSource is the Syncer given to the scheduler: it re-runs the pipeline
// for a watched source and reports the content hash for change detection.
func (s *Service) SyncSource(ctx context.Context, src *store.WatchedSource) (*syncd.Result, error) {
	var (
		doc *normalize.Document
		err error
	)
	switch normalize.Kind(src.Kind) {
	case normalize.KindWebLink, normalize.KindRepository:
		doc, err = s.ProcessLink(ctx, LinkRequest{URL: src.SourceURI, ParseOnly: true})
	case normalize.KindUploadedFile:
		name := strings.TrimPrefix(src.SourceURI, "file://")
		doc, err = s.ProcessFile(ctx, FileRequest{Filename: filepath.Base(name), ParseOnly: true})
	default:
		return nil, fmt.Errorf("%w: kind %q is not syncable", docconv.ErrUnsupportedFormat, src.Kind)
	}
	if err != nil {
		return nil, err
	}
	return &syncd.Result{
		Document:    doc,
		ContentHash: contentHash(doc.PageContent),
	}, nil
}

// deliver hands a document to the sink and registers its backing file with
// the known-files set.
func (s *Service) deliver(ctx context.Context, doc *normalize.Document, fileName string) error {
	if s.sink != nil {
		if err := s.sink.Receive(ctx, doc); err != nil {
			return fmt.Errorf("service: sink: %w", err)
		}
	}
	if fileName != "" {
		if err := s.store.RegisterFile(ctx, fileName); err != nil {
			return err
		}
	}
	s.logger.Info("document processed",
		"id", doc.ID,
		"source", doc.SourceURI,
		"kind", doc.SourceKind,
		"words", doc.WordCount)
	return nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func (s *Service) ocrLanguages(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	return s.cfg.DefaultOCRLanguages
}

// Reason maps an error to the external failure taxonomy.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, gate.ErrIntegrityViolation):
		return ReasonIntegrityViolation
	case errors.Is(err, docconv.ErrUnsupportedSubformat):
		return ReasonUnsupportedSubformat
	case errors.Is(err, docconv.ErrUnsupportedFormat):
		return ReasonUnsupportedFormat
	case errors.Is(err, docconv.ErrNoTextExtracted):
		return ReasonNoTextExtracted
	case errors.Is(err, docconv.ErrCorruptInput):
		return ReasonCorruptInput
	case errors.Is(err, store.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCancelled
	default:
		return ReasonInternal
	}
}
