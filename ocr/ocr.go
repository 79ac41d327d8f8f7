// Package ocr provides the optical character recognition fallback used by the
// PDF and image converters when structured text extraction yields nothing.
//
// The default engine shells out to the tesseract binary. An empty recognition
// result is not an error here — the calling converter decides whether empty
// text is fatal for its request.
package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultLanguages is used when the caller supplies no target languages.
var DefaultLanguages = []string{"eng"}

// Engine recognizes text in a single image. Implementations must be safe for
// concurrent use and must honor ctx cancellation.
type Engine interface {
	Recognize(ctx context.Context, image []byte, languages []string) (string, error)
}

// Config configures the tesseract-backed engine.
type Config struct {
	// Binary is the tesseract executable name or path. Default: "tesseract".
	Binary string

	// Timeout bounds a single recognition call. Default: 60s.
	Timeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Binary == "" {
		c.Binary = "tesseract"
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tesseract runs the tesseract CLI over stdin/stdout.
type Tesseract struct {
	cfg Config
}

// NewTesseract creates a tesseract-backed Engine.
func NewTesseract(cfg Config) *Tesseract {
	cfg.defaults()
	return &Tesseract{cfg: cfg}
}

// Recognize runs tesseract on the image bytes and returns the recognized text.
// The subprocess is killed when ctx is cancelled or the timeout elapses.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, languages []string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("ocr: empty image")
	}
	if len(languages) == 0 {
		languages = DefaultLanguages
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, t.cfg.Binary, "stdin", "stdout", "-l", strings.Join(languages, "+"))
	cmd.Stdin = bytes.NewReader(image)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("ocr: tesseract: %w (%s)", err, strings.TrimSpace(stderr.String()))
	}

	text := strings.TrimSpace(stdout.String())
	t.cfg.Logger.Debug("ocr: recognized",
		"bytes_in", len(image), "chars_out", len(text),
		"languages", languages, "duration", time.Since(start))
	return text, nil
}
