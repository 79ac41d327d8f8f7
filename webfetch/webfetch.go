// Package webfetch retrieves web page content for the pipeline.
//
// The primary path drives a headless Chrome via Rod so JS-rendered pages
// come back fully populated. Any browser-path error (launch failure,
// navigation error, timeout) triggers exactly one plain HTTP GET fallback
// with a tighter budget; the raw body is sanitized and reduced to text.
// The fallback order is a fixed, testable chain — not implicit control flow.
package webfetch

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/hazyhaar/collector/guard"
)

// CaptureText and CaptureHTML are the built-in capture modes. Any other
// non-empty mode is treated as a JavaScript extraction expression evaluated
// in the page.
const (
	CaptureText = "text"
	CaptureHTML = "html"
)

// Page is the outcome of one fetch.
type Page struct {
	URL       string
	Title     string
	Content   string // extracted text
	HTML      string // raw HTML when captured
	Hash      string // SHA-256 of Content, for change detection
	FetchedAt time.Time
	Via       string // "browser" or "http"
}

// Options tune a single fetch.
type Options struct {
	// CaptureMode is CaptureText (default), CaptureHTML, or a custom
	// JavaScript expression returning a string.
	CaptureMode string

	// Headers are extra request headers applied to both paths.
	Headers map[string]string
}

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds the whole browser attempt. Default: 45s.
	Timeout time.Duration

	// FallbackTimeout bounds the plain HTTP attempt. Default: 15s.
	FallbackTimeout time.Duration

	// MaxBytes caps the response body size. Default: guard.MaxResponseBody.
	MaxBytes int64

	// UserAgent sent on the HTTP fallback path.
	UserAgent string

	// RatePerHost throttles fetches per host. Default: 1 req/s, burst 3.
	RatePerHost rate.Limit

	// URLValidator validates URLs before any request (SSRF prevention).
	// Default: guard.ValidateURL.
	URLValidator func(string) error

	// RemoteBrowserURL is the WebSocket URL of an external Chrome.
	// Empty = launch a local headless Chrome on first use.
	RemoteBrowserURL string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.FallbackTimeout <= 0 {
		c.FallbackTimeout = 15 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = guard.MaxResponseBody
	}
	if c.UserAgent == "" {
		c.UserAgent = "collector/1.0"
	}
	if c.RatePerHost <= 0 {
		c.RatePerHost = rate.Limit(1)
	}
	if c.URLValidator == nil {
		c.URLValidator = guard.ValidateURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// browseFunc is the browser strategy signature, replaceable in tests.
type browseFunc func(ctx context.Context, pageURL string, opts Options) (*Page, error)

// Fetcher performs the browser → HTTP fallback chain.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	browse  browseFunc
	browser *browserHandle
	md      *converter.Converter
	policy  *bluemonday.Policy

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithBrowseFunc overrides the browser strategy. Used by tests to exercise
// the fallback chain without spawning Chrome.
func WithBrowseFunc(fn func(ctx context.Context, pageURL string, opts Options) (*Page, error)) Option {
	return func(f *Fetcher) { f.browse = fn }
}

// New creates a Fetcher. Chrome is launched lazily on the first browser-path
// fetch; Close releases it.
func New(cfg Config, opts ...Option) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	f := &Fetcher{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.FallbackTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked: %w", err)
				}
				return nil
			},
		},
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy:   bluemonday.UGCPolicy(),
		limiters: make(map[string]*rate.Limiter),
	}
	f.browser = newBrowserHandle(cfg)
	f.browse = f.browserFetch
	for _, o := range opts {
		o(f)
	}
	return f
}

// Close shuts down the lazily launched Chrome, if any.
func (f *Fetcher) Close() error {
	return f.browser.close()
}

// Fetch retrieves a URL through the fallback chain. Both paths honor ctx;
// cancelling releases the browser page and returns ctx.Err() with no partial
// result.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, opts Options) (*Page, error) {
	if err := f.cfg.URLValidator(pageURL); err != nil {
		return nil, fmt.Errorf("webfetch: URL blocked: %w", err)
	}
	if err := f.waitHost(ctx, pageURL); err != nil {
		return nil, err
	}

	log := f.cfg.Logger.With("url", pageURL)

	browserCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	page, err := f.browse(browserCtx, pageURL, opts)
	cancel()
	if err == nil && strings.TrimSpace(page.Content) != "" {
		return page, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		log.Warn("webfetch: browser path failed, falling back to http", "error", err)
	} else {
		log.Warn("webfetch: browser returned empty content, falling back to http")
	}

	// Single fallback attempt, never retried.
	fallbackCtx, cancel := context.WithTimeout(ctx, f.cfg.FallbackTimeout)
	defer cancel()
	page, err = f.httpFetch(fallbackCtx, pageURL, opts)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("webfetch: both paths failed: %w", err)
	}
	return page, nil
}

// httpFetch is the plain GET fallback: raw body, best-effort HTML-to-text
// reduction.
func (f *Fetcher) httpFetch(ctx context.Context, pageURL string, opts Options) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http %d", resp.StatusCode)
	}

	body, err := guard.LimitedReadAll(resp.Body, f.cfg.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	content := html
	if opts.CaptureMode != CaptureHTML {
		content = f.HTMLToText(html, pageURL)
	}
	return f.finish(pageURL, titleFromHTML(html), content, html, "http"), nil
}

// HTMLToText sanitizes markup and reduces it to readable text. If the
// reduction fails or comes back empty the sanitized input is returned as-is
// so body text is never dropped.
func (f *Fetcher) HTMLToText(html, sourceURL string) string {
	sanitized := f.policy.Sanitize(html)
	out, err := f.md.ConvertString(sanitized, converter.WithDomain(sourceURL))
	if err != nil || strings.TrimSpace(out) == "" {
		return strings.TrimSpace(sanitized)
	}
	return strings.TrimSpace(out)
}

func (f *Fetcher) finish(pageURL, title, content, html, via string) *Page {
	sum := sha256.Sum256([]byte(content))
	return &Page{
		URL:       pageURL,
		Title:     title,
		Content:   content,
		HTML:      html,
		Hash:      fmt.Sprintf("%x", sum),
		FetchedAt: time.Now().UTC(),
		Via:       via,
	}
}

func (f *Fetcher) waitHost(ctx context.Context, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil {
		return fmt.Errorf("webfetch: parse url: %w", err)
	}
	f.mu.Lock()
	lim, ok := f.limiters[u.Host]
	if !ok {
		lim = rate.NewLimiter(f.cfg.RatePerHost, 3)
		f.limiters[u.Host] = lim
	}
	f.mu.Unlock()
	return lim.Wait(ctx)
}

// titleFromHTML pulls the <title> element out of raw HTML without a full
// parse. Good enough for the fallback path; the browser path reads
// document.title directly.
func titleFromHTML(html string) string {
	lower := strings.ToLower(html)
	start := strings.Index(lower, "<title")
	if start < 0 {
		return ""
	}
	gt := strings.IndexByte(html[start:], '>')
	if gt < 0 {
		return ""
	}
	rest := html[start+gt+1:]
	end := strings.Index(strings.ToLower(rest), "</title>")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
