// Package spool deposits normalized documents as JSON files in an outbox
// directory for asynchronous consumption by a downstream indexer.
//
// Files are written atomically (write .tmp then rename) so a consumer
// never observes a partial document.
package spool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/collector/guard"
	"github.com/hazyhaar/collector/idgen"
	"github.com/hazyhaar/collector/normalize"
)

// Writer is a syncd.Sink that spools documents to disk.
type Writer struct {
	dir   string
	newID func() string
}

// NewWriter creates a Writer targeting the given outbox directory.
// The directory is created on first write if it does not exist.
func NewWriter(outboxDir string) *Writer {
	return &Writer{dir: outboxDir, newID: idgen.New}
}

// Receive writes the document as <id>.json in the outbox. A document without
// an ID gets a generated one for the filename.
func (w *Writer) Receive(ctx context.Context, doc *normalize.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := doc.ID
	if id == "" {
		id = w.newID()
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("spool: mkdir %s: %w", w.dir, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("spool: marshal %s: %w", id, err)
	}

	target := filepath.Join(w.dir, guard.SanitizeFilename(id, 0)+".json")
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("spool: write tmp: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("spool: rename: %w", err)
	}
	return nil
}
