package docconv

import (
	"context"
	"fmt"
	"strings"
)

// convertAudio delegates to the configured transcriber.
func (r *Registry) convertAudio(ctx context.Context, in Input) (*Result, error) {
	if r.cfg.Transcriber == nil {
		return nil, fmt.Errorf("%w: no transcriber configured", ErrUnsupportedFormat)
	}

	text, err := r.cfg.Transcriber.Transcribe(ctx, in.Data, in.Name)
	if err != nil {
		return nil, fmt.Errorf("transcribe: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoTextExtracted
	}
	return &Result{
		Title:       in.Name,
		Content:     text,
		ChunkSource: in.Name,
	}, nil
}
