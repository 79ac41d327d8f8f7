package spool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/collector/normalize"
)

func TestReceiveWritesDocument(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "outbox")
	w := NewWriter(dir)

	doc := &normalize.Document{
		ID:          "doc_001",
		SourceURI:   "raw://abc",
		Title:       "Notes",
		PageContent: "hello",
	}
	if err := w.Receive(context.Background(), doc); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "doc_001.json"))
	if err != nil {
		t.Fatalf("read spooled file: %v", err)
	}
	var got normalize.Document
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Title != "Notes" || got.PageContent != "hello" {
		t.Errorf("spooled document = %+v", got)
	}
}

func TestReceiveSanitizesID(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	doc := &normalize.Document{ID: "doc/../../etc", PageContent: "x"}
	if err := w.Receive(context.Background(), doc); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	name := entries[0].Name()
	if strings.Contains(name, "/") || strings.Contains(name, "..") {
		t.Errorf("unsafe spool filename %q", name)
	}
}

func TestReceiveNoTmpLeftovers(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	for i := 0; i < 3; i++ {
		doc := &normalize.Document{ID: "doc_same", PageContent: "v"}
		if err := w.Receive(context.Background(), doc); err != nil {
			t.Fatalf("Receive: %v", err)
		}
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover tmp file %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1 (rewrites replace)", len(entries))
	}
}

func TestReceiveMissingIDGetsGenerated(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	if err := w.Receive(context.Background(), &normalize.Document{PageContent: "x"}); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if !strings.HasSuffix(entries[0].Name(), ".json") || entries[0].Name() == ".json" {
		t.Errorf("generated filename %q lacks an ID", entries[0].Name())
	}
}

func TestReceiveCancelledContext(t *testing.T) {
	w := NewWriter(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := w.Receive(ctx, &normalize.Document{ID: "d"}); err == nil {
		t.Error("cancelled context must abort the write")
	}
}
