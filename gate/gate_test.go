package gate

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/collector/guard"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	g, err := New(Config{Key: testKey, StorageRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, testKey)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestNewRejectsShortKey(t *testing.T) {
	_, err := New(Config{Key: []byte("short"), StorageRoot: t.TempDir()})
	if !errors.Is(err, guard.ErrSecretTooShort) {
		t.Fatalf("err = %v, want ErrSecretTooShort", err)
	}
}

func TestNewDevModeAllowsNoKey(t *testing.T) {
	if _, err := New(Config{DevMode: true, StorageRoot: t.TempDir()}); err != nil {
		t.Fatalf("dev mode must not require a key: %v", err)
	}
}

func TestVerifySignature(t *testing.T) {
	g := newTestGate(t)
	body := []byte(`{"filename":"a.pdf"}`)

	if err := g.VerifySignature(body, sign(body)); err != nil {
		t.Errorf("valid signature rejected: %v", err)
	}
	if err := g.VerifySignature(body, g.Sign(body)); err != nil {
		t.Errorf("Sign output must verify: %v", err)
	}

	tests := []struct {
		name string
		sig  string
	}{
		{"missing", ""},
		{"wrong", "sha256=" + strings.Repeat("00", 32)},
		{"not hex", "sha256=zzzz"},
		{"signature of other body", sign([]byte("other"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.VerifySignature(body, tt.sig); !errors.Is(err, ErrIntegrityViolation) {
				t.Errorf("err = %v, want ErrIntegrityViolation", err)
			}
		})
	}
}

func TestVerifySignatureDevModeBypass(t *testing.T) {
	g, err := New(Config{DevMode: true, StorageRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := g.VerifySignature([]byte("anything"), ""); err != nil {
		t.Errorf("dev mode must bypass verification: %v", err)
	}
}

func TestResolvePath(t *testing.T) {
	g := newTestGate(t)

	p, err := g.ResolvePath("inbox/report.pdf")
	if err != nil {
		t.Fatalf("ResolvePath: %v", err)
	}
	if !strings.HasSuffix(p, "inbox/report.pdf") {
		t.Errorf("resolved to %q", p)
	}

	escapes := []string{
		"../etc/passwd",
		"a/../../etc/passwd",
		"%2e%2e/secret",
		"..%2fsecret",
	}
	for _, name := range escapes {
		if _, err := g.ResolvePath(name); !errors.Is(err, ErrIntegrityViolation) {
			t.Errorf("ResolvePath(%q) err = %v, want ErrIntegrityViolation", name, err)
		}
	}
}

func TestMiddleware(t *testing.T) {
	g := newTestGate(t)

	var gotBody []byte
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))

	body := []byte(`{"url":"https://example.com"}`)

	// Valid signature passes and the body survives for the handler.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/process/link", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, sign(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("handler body = %q, want original", gotBody)
	}

	// Tampered body is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/process/link", bytes.NewReader([]byte(`{"url":"evil"}`)))
	req.Header.Set(SignatureHeader, sign(body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("tampered status = %d, want 403", rec.Code)
	}

	// Missing signature is rejected.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/process/link", bytes.NewReader(body))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unsigned status = %d, want 403", rec.Code)
	}
}
