package webfetch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// networkIdleWindow is how long the network must stay quiet after page load
// before capture proceeds.
const networkIdleWindow = 2 * time.Second

// browserHandle owns the Chrome connection. Chrome is expensive, so it is
// launched on the first browser-path fetch and kept until close.
type browserHandle struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

func newBrowserHandle(cfg Config) *browserHandle {
	return &browserHandle{cfg: cfg}
}

// get returns the connected browser, launching Chrome if needed.
func (h *browserHandle) get() (*rod.Browser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, fmt.Errorf("browser is closed")
	}
	if h.browser != nil {
		return h.browser, nil
	}

	wsURL := h.cfg.RemoteBrowserURL
	if wsURL == "" {
		l := launcher.New().
			Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		wsURL = u
		h.lnch = l
		h.cfg.Logger.Info("webfetch: launched local chrome", "url", wsURL)
	} else {
		h.cfg.Logger.Info("webfetch: connecting to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if h.lnch != nil {
			h.lnch.Cleanup()
			h.lnch = nil
		}
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		h.cfg.Logger.Warn("webfetch: ignore cert errors failed", "error", err)
	}

	h.browser = b
	return b, nil
}

func (h *browserHandle) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	if h.browser != nil {
		h.browser.Close()
		h.browser = nil
	}
	if h.lnch != nil {
		h.lnch.Cleanup()
		h.lnch = nil
	}
	return nil
}

// browserFetch is the primary path: stealth tab, navigate, wait for load,
// evaluate the capture expression.
func (f *Fetcher) browserFetch(ctx context.Context, pageURL string, opts Options) (*Page, error) {
	b, err := f.browser.get()
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if len(opts.Headers) > 0 {
		headers := make([]string, 0, len(opts.Headers)*2)
		for k, v := range opts.Headers {
			headers = append(headers, k, v)
		}
		if _, err := page.SetExtraHeaders(headers); err != nil {
			return nil, fmt.Errorf("browser: set headers: %w", err)
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.WaitLoad(); err != nil {
		f.cfg.Logger.Warn("webfetch: wait load incomplete, capturing anyway",
			"url", pageURL, "error", err)
	}
	// Let late JS settle; bounded so SPAs with long-polling don't stall us.
	waitIdle(page)

	title, err := evalString(page, `() => document.title`)
	if err != nil {
		return nil, fmt.Errorf("browser: read title: %w", err)
	}

	var content, html string
	switch opts.CaptureMode {
	case "", CaptureText:
		content, err = evalString(page, `() => document.body ? document.body.innerText : ""`)
		if err != nil {
			return nil, fmt.Errorf("browser: capture text: %w", err)
		}
		html, _ = evalString(page, `() => document.documentElement.outerHTML`)
	case CaptureHTML:
		html, err = evalString(page, `() => document.documentElement.outerHTML`)
		if err != nil {
			return nil, fmt.Errorf("browser: capture html: %w", err)
		}
		content = f.HTMLToText(html, pageURL)
	default:
		// Custom extraction script supplied by the caller.
		content, err = evalString(page, opts.CaptureMode)
		if err != nil {
			return nil, fmt.Errorf("browser: capture script: %w", err)
		}
	}

	return f.finish(pageURL, strings.TrimSpace(title), strings.TrimSpace(content), html, "browser"), nil
}

// waitIdle gives the network a short window to go quiet. Failure is not
// fatal; the page load event already fired.
func waitIdle(page *rod.Page) {
	defer func() {
		// Rod panics on CDP errors in some wait helpers.
		if r := recover(); r != nil {
			slog.Debug("webfetch: wait idle aborted", "reason", fmt.Sprint(r))
		}
	}()
	wait := page.WaitRequestIdle(networkIdleWindow, nil, nil, []proto.NetworkResourceType{
		proto.NetworkResourceTypeWebSocket,
		proto.NetworkResourceTypeEventSource,
		proto.NetworkResourceTypeMedia,
	})
	wait()
}

func evalString(page *rod.Page, js string) (string, error) {
	res, err := page.Eval(js)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}
