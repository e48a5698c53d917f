package semantic

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clausemind/clausemind/engine/domain"
)

func record(id string, vec []float32, text, fileID string) domain.IndexedRecord {
	return domain.IndexedRecord{
		ID:     id,
		Vector: vec,
		Text:   text,
		Meta:   domain.Metadata{SourceID: "policy.pdf", FileID: fileID, Filename: "policy.pdf"},
	}
}

func TestMemory_UpsertIdempotent(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()

	recs := []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "clause one", "f1"),
		record("r2", []float32{0, 1, 0}, "clause two", "f1"),
	}
	if err := m.Upsert(ctx, recs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same IDs again: count must not change.
	if err := m.Upsert(ctx, recs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	count, err := m.Count(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2 after repeated upsert, got %d", count)
	}
}

func TestMemory_UpsertDimensionMismatch(t *testing.T) {
	m := NewMemory(3)
	err := m.Upsert(context.Background(), []domain.IndexedRecord{
		record("r1", []float32{1, 0}, "short vector", "f1"),
	})
	if !domain.IsDimensionMismatch(err) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}

func TestMemory_SearchSortedAndBounded(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "exact match", "f1"),
		record("r2", []float32{0.7, 0.7, 0}, "partial match", "f1"),
		record("r3", []float32{0, 0, 1}, "unrelated", "f1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := m.Search(ctx, []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Text != "exact match" || matches[1].Text != "partial match" {
		t.Errorf("unexpected order: %q, %q", matches[0].Text, matches[1].Text)
	}
	if matches[0].Score < matches[1].Score {
		t.Errorf("scores not descending: %f < %f", matches[0].Score, matches[1].Score)
	}
}

func TestMemory_SearchFilter(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "doc one clause", "f1"),
		record("r2", []float32{1, 0, 0}, "doc two clause", "f2"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := m.Search(ctx, []float32{1, 0, 0}, 10, map[string]string{FieldFileID: "f2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "doc two clause" {
		t.Fatalf("filter did not isolate file: %+v", matches)
	}

	// Unknown filter key matches nothing.
	matches, err = m.Search(ctx, []float32{1, 0, 0}, 10, map[string]string{"nope": "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("unknown filter key should match nothing, got %d", len(matches))
	}
}

func TestSearchWithThreshold(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "strong", "f1"),
		record("r2", []float32{0, 1, 0}, "orthogonal", "f1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	matches, err := SearchWithThreshold(ctx, m, []float32{1, 0, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "strong" {
		t.Fatalf("threshold did not drop weak matches: %+v", matches)
	}
}

func TestMemory_DeleteByFileID(t *testing.T) {
	m := NewMemory(3)
	ctx := context.Background()
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "keep", "f1"),
		record("r2", []float32{0, 1, 0}, "drop a", "f2"),
		record("r3", []float32{0, 0, 1}, "drop b", "f2"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	removed, err := m.DeleteByFileID(ctx, "f2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to be reported")
	}
	count, _ := m.Count(ctx)
	if count != 1 {
		t.Errorf("expected 1 record left, got %d", count)
	}

	removed, err = m.DeleteByFileID(ctx, "f2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("second delete should report nothing removed")
	}
}

func TestMemory_SnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := NewMemory(3)
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "first clause", "f1"),
		record("r2", []float32{0, 1, 0}, "second clause", "f1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewMemory(3)
	if err := loaded.Load(dir); err != nil {
		t.Fatalf("load: %v", err)
	}
	count, _ := loaded.Count(ctx)
	if count != 2 {
		t.Fatalf("expected 2 records after load, got %d", count)
	}
	matches, err := loaded.Search(ctx, []float32{0, 1, 0}, 1, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "second clause" {
		t.Errorf("loaded index returned wrong match: %+v", matches)
	}
}

func TestMemory_LoadMissingSnapshot(t *testing.T) {
	m := NewMemory(3)
	if err := m.Load(t.TempDir()); err != nil {
		t.Fatalf("missing snapshot should not error, got %v", err)
	}
}

func TestMemory_LoadCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := NewMemory(3)
	err := m.Upsert(ctx, []domain.IndexedRecord{
		record("r1", []float32{1, 0, 0}, "first", "f1"),
		record("r2", []float32{0, 1, 0}, "second", "f1"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Drop a record so the counts disagree.
	if err := os.WriteFile(filepath.Join(dir, snapshotRecordsFile), []byte(`[{"id":"r1","text":"first"}]`), 0o644); err != nil {
		t.Fatalf("rewrite records: %v", err)
	}

	loaded := NewMemory(3)
	if err := loaded.Load(dir); !errors.Is(err, domain.ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
}

func TestMemory_LoadDimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	m := NewMemory(3)
	if err := m.Upsert(ctx, []domain.IndexedRecord{record("r1", []float32{1, 0, 0}, "x", "f1")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded := NewMemory(4)
	if err := loaded.Load(dir); !domain.IsDimensionMismatch(err) {
		t.Fatalf("expected DimensionMismatchError, got %v", err)
	}
}
