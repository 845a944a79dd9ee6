package index

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/quire/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, name string)

const reconcileDelay = 200 * time.Millisecond

// Watch watches the vault directory and re-indexes notes changed outside the
// service until ctx is cancelled. cb (if non-nil) runs after each successful
// index mutation. The vault is flat, so subdirectories are not watched.
func Watch(ctx context.Context, db *DB, store storage.Provider, vaultRoot string, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(vaultRoot); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", vaultRoot))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	emit := func(kind, name string) {
		if cb != nil {
			cb(kind, name)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(db, store, logger, emit)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name, ok := noteName(vaultRoot, ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				data, readErr := store.Read(name)
				if readErr != nil {
					if !errors.Is(readErr, os.ErrNotExist) {
						logger.Warn("watcher: read failed", slog.String("name", name), slog.String("error", readErr.Error()))
					}
					continue
				}
				prev, _ := db.GetChecksum(name)
				if idxErr := IndexNote(db, name, data, time.Now()); idxErr != nil {
					logger.Warn("watcher: index failed", slog.String("name", name), slog.String("error", idxErr.Error()))
					continue
				}
				kind := "updated"
				if prev == "" {
					kind = "created"
				}
				logger.Debug("watcher: indexed", slog.String("name", name), slog.String("op", kind))
				emit(kind, name)

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// Rename fires on the old name only; the new one arrives as
				// Create, and reconcile catches anything missed.
				if delErr := db.DeleteNote(name); delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("name", name), slog.String("error", delErr.Error()))
				} else {
					logger.Debug("watcher: deleted", slog.String("name", name))
					emit("deleted", name)
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// noteName maps an event path to a note name, rejecting anything that is not
// a visible .md file directly inside the vault.
func noteName(vaultRoot, abs string) (string, bool) {
	if filepath.Dir(abs) != filepath.Clean(vaultRoot) {
		return "", false
	}
	name := filepath.Base(abs)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, storage.NoteExt) {
		return "", false
	}
	return name, true
}

// reconcile drops index entries whose file is gone and indexes files the
// index has not seen.
func reconcile(db *DB, store storage.Provider, logger *slog.Logger, emit func(kind, name string)) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	metas, err := store.List()
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	disk := make(map[string]string, len(metas))
	for _, m := range metas {
		disk[m.Name] = m.Checksum
	}

	for name := range checksums {
		if _, ok := disk[name]; !ok {
			if delErr := db.DeleteNote(name); delErr == nil {
				logger.Debug("reconcile: removed stale", slog.String("name", name))
				emit("deleted", name)
			}
		}
	}

	for name, cs := range disk {
		prev, known := checksums[name]
		if known && prev == cs {
			continue
		}
		data, readErr := store.Read(name)
		if readErr != nil {
			continue
		}
		if idxErr := IndexNote(db, name, data, time.Now()); idxErr == nil {
			kind := "updated"
			if !known {
				kind = "created"
			}
			logger.Debug("reconcile: indexed", slog.String("name", name), slog.String("op", kind))
			emit(kind, name)
		}
	}
}
