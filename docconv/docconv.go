// Package docconv converts raw source content into extracted text.
//
// One converter handles each format family:
//   - text/markdown — passthrough with whitespace normalization
//   - html          — DOM text extraction with boilerplate stripping
//   - pdf           — structured extraction, OCR fallback on poor quality
//   - docx/odt      — archive/zip → XML body text
//   - xlsx/csv      — sheets serialized row-per-line
//   - image         — direct OCR
//   - audio         — pluggable transcription
//   - web           — browser fetch with HTTP fallback
//   - repo          — git hosting API listing + per-file conversion
//
// Converters never panic on malformed input; they return wrapped sentinel
// errors from errors.go that the caller maps onto its failure taxonomy.
package docconv

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/panjf2000/ants/v2"

	"github.com/hazyhaar/collector/ocr"
	"github.com/hazyhaar/collector/webfetch"
)

// Transcriber converts an audio stream to text. Implementations wrap a local
// model or a remote service.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Config configures a Registry.
type Config struct {
	// OCR is the recognition engine for the image converter and the PDF
	// fallback. Nil disables OCR; affected conversions then fail with
	// ErrNoTextExtracted when structured extraction yields nothing.
	OCR ocr.Engine

	// Transcriber handles audio. Nil makes FormatAudio unsupported.
	Transcriber Transcriber

	// Web handles FormatWeb fetches. Nil makes FormatWeb unsupported.
	Web *webfetch.Fetcher

	// Repo handles FormatRepo listings. Nil makes FormatRepo unsupported.
	Repo *RepoClient

	// MaxFileSize caps accepted input size in bytes. Default: 100MB.
	MaxFileSize int64

	// OCRWorkers bounds concurrent page recognitions for multi-page PDF
	// fallback. Default: 4.
	OCRWorkers int

	// PDFRenderBinary renders PDF pages to images for OCR.
	// Default: "pdftoppm".
	PDFRenderBinary string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 100 << 20
	}
	if c.OCRWorkers <= 0 {
		c.OCRWorkers = 4
	}
	if c.PDFRenderBinary == "" {
		c.PDFRenderBinary = "pdftoppm"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Registry dispatches conversions by detected format.
type Registry struct {
	cfg     Config
	logger  *slog.Logger
	ocrPool *ants.Pool
}

// New creates a Registry. Close releases the OCR worker pool.
func New(cfg Config) (*Registry, error) {
	cfg.defaults()
	pool, err := ants.NewPool(cfg.OCRWorkers, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("docconv: ocr pool: %w", err)
	}
	return &Registry{cfg: cfg, logger: cfg.Logger, ocrPool: pool}, nil
}

// Close releases pooled resources.
func (r *Registry) Close() {
	r.ocrPool.Release()
}

// Formats returns the formats this registry can convert, reflecting which
// optional collaborators are configured. The set is static per process.
func (r *Registry) Formats() []Format {
	out := []Format{
		FormatText, FormatMarkdown, FormatHTML, FormatPDF,
		FormatDocx, FormatODT, FormatXLSX, FormatCSV,
	}
	if r.cfg.OCR != nil {
		out = append(out, FormatImage)
	}
	if r.cfg.Transcriber != nil {
		out = append(out, FormatAudio)
	}
	if r.cfg.Web != nil {
		out = append(out, FormatWeb)
	}
	if r.cfg.Repo != nil {
		out = append(out, FormatRepo)
	}
	return out
}

// Convert runs the converter for the detected format. Unknown formats and
// formats whose collaborator is not configured fail with
// ErrUnsupportedFormat.
func (r *Registry) Convert(ctx context.Context, format Format, in Input, opts Options) (*Result, error) {
	if int64(len(in.Data)) > r.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrCorruptInput, len(in.Data), r.cfg.MaxFileSize)
	}

	r.logger.Debug("converting", "name", in.Name, "format", format, "bytes", len(in.Data))

	var (
		res *Result
		err error
	)
	switch format {
	case FormatText, FormatMarkdown:
		res, err = convertText(in, format)
	case FormatHTML:
		res, err = convertHTML(in)
	case FormatPDF:
		res, err = r.convertPDF(ctx, in, opts)
	case FormatDocx:
		res, err = convertDocx(in)
	case FormatODT:
		res, err = convertODT(in)
	case FormatXLSX:
		res, err = convertXLSX(in)
	case FormatCSV:
		res, err = convertCSV(in)
	case FormatImage:
		res, err = r.convertImage(ctx, in, opts)
	case FormatAudio:
		res, err = r.convertAudio(ctx, in)
	case FormatWeb:
		res, err = r.convertWeb(ctx, in, opts)
	case FormatRepo:
		res, err = r.convertRepo(ctx, in, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("convert %s (%s): %w", in.Name, format, err)
	}
	return res, nil
}
