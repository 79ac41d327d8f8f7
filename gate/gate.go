// Package gate is the integrity barrier every processing request crosses
// before any filesystem or converter work happens: request signature
// verification and path containment.
//
// Violations are logged without payload content — the log line says what was
// rejected, never what was inside.
package gate

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/collector/guard"
)

// SignatureHeader carries the request signature: "sha256=<hex>".
const SignatureHeader = "X-Integrity-Signature"

// ErrIntegrityViolation covers every gate rejection: bad or missing
// signature, path escape. Callers map it to 403 without detail leakage.
var ErrIntegrityViolation = errors.New("gate: integrity violation")

// Config configures a Gate.
type Config struct {
	// Key is the shared HMAC-SHA256 key. Must be at least
	// guard.MinSecretLen bytes unless DevMode is set.
	Key []byte

	// StorageRoot is the only directory file requests may resolve into.
	StorageRoot string

	// DevMode disables signature verification. Never set in production.
	DevMode bool

	Logger *slog.Logger
}

// Gate verifies request integrity.
type Gate struct {
	cfg Config
}

// New creates a Gate. A short key is refused outright rather than silently
// weakening verification.
func New(cfg Config) (*Gate, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if !cfg.DevMode {
		if err := guard.ValidateSecret(cfg.Key); err != nil {
			return nil, fmt.Errorf("gate: %w (%d bytes, need %d)",
				err, len(cfg.Key), guard.MinSecretLen)
		}
	}
	if cfg.StorageRoot == "" {
		return nil, errors.New("gate: storage root required")
	}
	if cfg.DevMode {
		cfg.Logger.Warn("gate: dev mode enabled, signature verification is OFF")
	}
	return &Gate{cfg: cfg}, nil
}

// Sign computes the signature header value for a body. Used by trusted
// callers and tests.
func (g *Gate) Sign(body []byte) string {
	mac := hmac.New(sha256.New, g.cfg.Key)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an HMAC-SHA256 signature over the raw body.
// The compare is constant-time. DevMode accepts everything.
func (g *Gate) VerifySignature(body []byte, signature string) error {
	if g.cfg.DevMode {
		return nil
	}
	if signature == "" {
		g.cfg.Logger.Warn("gate: missing signature")
		return fmt.Errorf("%w: missing signature", ErrIntegrityViolation)
	}
	const prefix = "sha256="
	if len(signature) > len(prefix) && signature[:len(prefix)] == prefix {
		signature = signature[len(prefix):]
	}
	decoded, err := hex.DecodeString(signature)
	if err != nil {
		g.cfg.Logger.Warn("gate: malformed signature")
		return fmt.Errorf("%w: malformed signature", ErrIntegrityViolation)
	}
	mac := hmac.New(sha256.New, g.cfg.Key)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), decoded) {
		g.cfg.Logger.Warn("gate: signature mismatch", "body_bytes", len(body))
		return fmt.Errorf("%w: signature mismatch", ErrIntegrityViolation)
	}
	return nil
}

// ResolvePath resolves a client-supplied filename inside the storage root.
// Rejection happens before any filesystem access.
func (g *Gate) ResolvePath(name string) (string, error) {
	p, err := guard.SafePath(g.cfg.StorageRoot, name)
	if err != nil {
		g.cfg.Logger.Warn("gate: path rejected", "error", err)
		return "", fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	return p, nil
}

// Middleware verifies the signature of every request carrying a body and
// rejects failures with 403. The body is re-wound for downstream handlers.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body == nil || r.ContentLength == 0 {
			if err := g.VerifySignature(nil, r.Header.Get(SignatureHeader)); err != nil {
				http.Error(w, "integrity check failed", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		body, err := guard.LimitedReadAll(r.Body, guard.MaxResponseBody)
		r.Body.Close()
		if err != nil {
			http.Error(w, "request too large", http.StatusRequestEntityTooLarge)
			return
		}
		if err := g.VerifySignature(body, r.Header.Get(SignatureHeader)); err != nil {
			http.Error(w, "integrity check failed", http.StatusForbidden)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}
