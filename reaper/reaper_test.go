package reaper

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/collector/dbopen"
	"github.com/hazyhaar/collector/store"
)

func setupSweep(t *testing.T) (*Reaper, *store.Store, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)))
	r, err := New(Config{ScratchDir: dir}, st)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, st, dir
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestSweepDeletesOrphansOnly(t *testing.T) {
	r, st, dir := setupSweep(t)
	ctx := context.Background()

	touch(t, dir, "keep.json")
	touch(t, dir, "orphan1.json")
	touch(t, dir, "orphan2.json")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := st.RegisterFile(ctx, "keep.json"); err != nil {
		t.Fatal(err)
	}

	report, err := r.Sweep(ctx, SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3 (subdir skipped)", report.Scanned)
	}
	if report.Orphans != 2 || report.Deleted != 2 {
		t.Errorf("Orphans/Deleted = %d/%d, want 2/2", report.Orphans, report.Deleted)
	}

	if _, err := os.Stat(filepath.Join(dir, "keep.json")); err != nil {
		t.Error("known file must survive the sweep")
	}
	if _, err := os.Stat(filepath.Join(dir, "orphan1.json")); !os.IsNotExist(err) {
		t.Error("orphan must be deleted")
	}
	if _, err := os.Stat(filepath.Join(dir, "subdir")); err != nil {
		t.Error("subdirectories must be left alone")
	}
}

func TestSweepDryRun(t *testing.T) {
	r, _, dir := setupSweep(t)

	touch(t, dir, "orphan.json")

	report, err := r.Sweep(context.Background(), SweepOptions{DryRun: true})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Orphans != 1 || report.Deleted != 0 {
		t.Errorf("Orphans/Deleted = %d/%d, want 1/0", report.Orphans, report.Deleted)
	}
	if _, err := os.Stat(filepath.Join(dir, "orphan.json")); err != nil {
		t.Error("dry run must not delete")
	}
}

func TestSweepEmptyDir(t *testing.T) {
	r, _, _ := setupSweep(t)
	report, err := r.Sweep(context.Background(), SweepOptions{})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Scanned != 0 || report.Orphans != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestSweepHonorsCancellationBetweenBatches(t *testing.T) {
	r, _, dir := setupSweep(t)

	for _, name := range []string{"a", "b", "c", "d"} {
		touch(t, dir, name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := r.Sweep(ctx, SweepOptions{BatchSize: 1})
	if err == nil {
		t.Fatal("want ctx error")
	}
	if report == nil || report.Deleted >= 4 {
		t.Error("sweep must stop at a batch boundary")
	}
}
