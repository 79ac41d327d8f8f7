package idgen

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDv7Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := UUIDv7()
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("generated ID does not parse: %v", err)
		}
	}
}

func TestPrefixed(t *testing.T) {
	gen := Prefixed("doc_", Default)
	id := gen()
	if !strings.HasPrefix(id, "doc_") {
		t.Fatalf("expected doc_ prefix, got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "doc_")); err != nil {
		t.Fatalf("suffix is not a UUID: %v", err)
	}
}

func TestNew(t *testing.T) {
	if a, b := New(), New(); a == b {
		t.Fatalf("New returned the same ID twice: %s", a)
	}
}
