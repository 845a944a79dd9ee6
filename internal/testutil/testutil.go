// Package testutil provides shared test helpers for vaults, history
// directories and index databases.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/snapshot"
	"github.com/starford/quire/internal/storage"
)

// TestDB creates a temporary SQLite index that is closed on cleanup.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "quire-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory.
func TestVault(t *testing.T) *storage.FS {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}

// TestHistory creates a temporary history directory.
func TestHistory(t *testing.T) *storage.History {
	t.Helper()
	h, err := storage.NewHistory(filepath.Join(t.TempDir(), "history"))
	if err != nil {
		t.Fatal(err)
	}
	return h
}

// TestSnapshots creates a snapshot store writing notes to vault and
// snapshots to a temporary history directory.
func TestSnapshots(t *testing.T, vault *storage.FS, opts ...snapshot.Option) *snapshot.Store {
	t.Helper()
	return snapshot.New(vault, TestHistory(t), opts...)
}
