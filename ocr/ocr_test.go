package ocr

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// stubBinary writes an executable shell script standing in for tesseract.
func stubBinary(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub not portable to windows")
	}
	path := filepath.Join(t.TempDir(), "fake-tesseract")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRecognize(t *testing.T) {
	// Echo stdin back, like tesseract in stdin/stdout mode.
	bin := stubBinary(t, "cat")
	eng := NewTesseract(Config{Binary: bin})

	text, err := eng.Recognize(context.Background(), []byte("  scanned text  "), nil)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if text != "scanned text" {
		t.Errorf("text = %q, want trimmed %q", text, "scanned text")
	}
}

func TestRecognizeEmptyImage(t *testing.T) {
	eng := NewTesseract(Config{Binary: "true"})
	if _, err := eng.Recognize(context.Background(), nil, nil); err == nil {
		t.Error("empty image must be rejected")
	}
}

func TestRecognizeBinaryFailure(t *testing.T) {
	bin := stubBinary(t, "echo 'boom' >&2; exit 1")
	eng := NewTesseract(Config{Binary: bin})
	if _, err := eng.Recognize(context.Background(), []byte("img"), []string{"eng"}); err == nil {
		t.Error("failing binary must surface an error")
	}
}

func TestRecognizeTimeout(t *testing.T) {
	bin := stubBinary(t, "sleep 30")
	eng := NewTesseract(Config{Binary: bin, Timeout: 50 * time.Millisecond})

	start := time.Now()
	_, err := eng.Recognize(context.Background(), []byte("img"), nil)
	if err == nil {
		t.Fatal("timeout must surface an error")
	}
	if time.Since(start) > 5*time.Second {
		t.Error("subprocess was not killed on timeout")
	}
}
