package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestSafePath(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"report.pdf", false},
		{"sub/dir/report.pdf", false},
		{"../secret.txt", true},
		{"../../etc/passwd", true},
		{"sub/../../escape.txt", true},
		{"%2e%2e/secret.txt", true},
		{"..%2fsecret.txt", true},
		{"", true},
	}

	for _, tt := range tests {
		got, err := SafePath("/data/uploads", tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SafePath(%q) = %q, want error", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("SafePath(%q): %v", tt.input, err)
			continue
		}
		if !strings.HasPrefix(got, "/data/uploads/") {
			t.Errorf("SafePath(%q) = %q, escapes root", tt.input, got)
		}
	}
}

func TestSafePathTraversalError(t *testing.T) {
	_, err := SafePath("/data/uploads", "../../etc/passwd")
	if !errors.Is(err, ErrPathTraversal) {
		t.Fatalf("expected ErrPathTraversal, got %v", err)
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr error
	}{
		{"https://example.com/page", nil},
		{"http://203.0.113.10/doc", nil},
		{"ftp://example.com/file", ErrUnsafeScheme},
		{"file:///etc/passwd", ErrUnsafeScheme},
		{"http://127.0.0.1/admin", ErrSSRF},
		{"http://10.0.0.5/internal", ErrSSRF},
		{"http://192.168.1.1/", ErrSSRF},
		{"http://169.254.169.254/latest/meta-data", ErrSSRF},
		{"http://[::1]/", ErrSSRF},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.url)
		if tt.wantErr == nil {
			if err != nil {
				t.Errorf("ValidateURL(%q): %v", tt.url, err)
			}
			continue
		}
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ValidateURL(%q) = %v, want %v", tt.url, err, tt.wantErr)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{`bad<name>.txt`, "bad_name_.txt"},
		{"  spaced.md  ", "spaced.md"},
		{"slash/in/name.txt", "slash_in_name.txt"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in, 255); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := strings.Repeat("a", 300) + ".txt"
	got := SanitizeFilename(long, 255)
	if len(got) > 255 {
		t.Errorf("SanitizeFilename did not truncate: %d bytes", len(got))
	}
	if !strings.HasSuffix(got, ".txt") {
		t.Errorf("SanitizeFilename lost extension: %q", got)
	}
}

func TestLimitedReadAll(t *testing.T) {
	data, err := LimitedReadAll(strings.NewReader("hello"), 10)
	if err != nil || string(data) != "hello" {
		t.Fatalf("LimitedReadAll = %q, %v", data, err)
	}
	if _, err := LimitedReadAll(strings.NewReader("hello world"), 5); err == nil {
		t.Fatal("expected error for oversized content")
	}
}

func TestValidateSecret(t *testing.T) {
	if err := ValidateSecret(make([]byte, 31)); !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("expected ErrSecretTooShort, got %v", err)
	}
	if err := ValidateSecret(make([]byte, 32)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
