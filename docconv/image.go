package docconv

import (
	"context"
	"fmt"
	"strings"
)

// convertImage runs OCR directly over the image bytes. No quality gate here:
// an image has no structured text path, OCR is the only source.
func (r *Registry) convertImage(ctx context.Context, in Input, opts Options) (*Result, error) {
	if r.cfg.OCR == nil {
		return nil, fmt.Errorf("%w: no OCR engine configured", ErrUnsupportedFormat)
	}

	text, err := r.cfg.OCR.Recognize(ctx, in.Data, opts.OCRLanguages)
	if err != nil {
		return nil, fmt.Errorf("ocr image: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoTextExtracted
	}
	return &Result{
		Title:       in.Name,
		Content:     text,
		ChunkSource: in.Name,
		OCRUsed:     true,
	}, nil
}
