package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func tempHistory(t *testing.T) *History {
	t.Helper()
	h, err := NewHistory(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatalf("NewHistory: %v", err)
	}
	return h
}

func TestHistoryWriteReadList(t *testing.T) {
	h := tempHistory(t)
	for _, id := range []string{"20240102T030405Z", "20240101T000000Z"} {
		if err := h.Write("note.md", id, []byte("v-"+id)); err != nil {
			t.Fatalf("Write %s: %v", id, err)
		}
	}

	ids, err := h.List("note.md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "20240101T000000Z" || ids[1] != "20240102T030405Z" {
		t.Fatalf("ids = %v", ids)
	}

	got, err := h.Read("note.md", "20240101T000000Z")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "v-20240101T000000Z" {
		t.Errorf("content = %q", got)
	}

	if _, err := os.Stat(filepath.Join(h.Root(), "note", "20240101T000000Z.md")); err != nil {
		t.Errorf("snapshot not stored under the note stem: %v", err)
	}
}

func TestHistoryListWithoutHistory(t *testing.T) {
	h := tempHistory(t)
	ids, err := h.List("fresh.md")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v, want none", ids)
	}
}

func TestHistoryWriteOverwritesSameID(t *testing.T) {
	h := tempHistory(t)
	_ = h.Write("n.md", "x", []byte("first"))
	_ = h.Write("n.md", "x", []byte("second"))
	got, _ := h.Read("n.md", "x")
	if string(got) != "second" {
		t.Errorf("content = %q, want second", got)
	}
}

func TestHistoryDeleteAndPrune(t *testing.T) {
	h := tempHistory(t)
	_ = h.Write("n.md", "a", []byte("a"))
	_ = h.Write("n.md", "b", []byte("b"))

	if err := h.Delete("n.md", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := h.Read("n.md", "a"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("read deleted: err = %v", err)
	}

	if err := h.Prune("n.md"); err != nil {
		t.Fatalf("Prune non-empty: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.Root(), "n")); err != nil {
		t.Fatalf("non-empty dir removed: %v", err)
	}

	_ = h.Delete("n.md", "b")
	if err := h.Prune("n.md"); err != nil {
		t.Fatalf("Prune empty: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.Root(), "n")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("empty dir kept: %v", err)
	}
	if err := h.Prune("n.md"); err != nil {
		t.Errorf("Prune missing: %v", err)
	}
}

func TestHistoryRejectsBadNames(t *testing.T) {
	h := tempHistory(t)
	if err := h.Write("../x.md", "a", nil); err == nil {
		t.Error("expected error for traversal in note")
	}
	if err := h.Write("x.md", "../a", nil); err == nil {
		t.Error("expected error for traversal in id")
	}
}
