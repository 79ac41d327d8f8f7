package docconv

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/collector/webfetch"
)

// convertWeb fetches a URL through the browser/HTTP fallback chain.
// In.Name carries the URL.
func (r *Registry) convertWeb(ctx context.Context, in Input, opts Options) (*Result, error) {
	if r.cfg.Web == nil {
		return nil, fmt.Errorf("%w: no web fetcher configured", ErrUnsupportedFormat)
	}

	page, err := r.cfg.Web.Fetch(ctx, in.Name, webfetch.Options{
		CaptureMode: opts.CaptureMode,
		Headers:     opts.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", in.Name, err)
	}
	if strings.TrimSpace(page.Content) == "" {
		return nil, ErrNoTextExtracted
	}

	title := page.Title
	if title == "" {
		title = page.URL
	}
	return &Result{
		Title:       title,
		Content:     page.Content,
		ChunkSource: page.URL,
		PublishedAt: page.FetchedAt,
	}, nil
}
