package index

import (
	"log/slog"
	"time"

	"github.com/starford/quire/internal/checksum"
	"github.com/starford/quire/internal/parser"
	"github.com/starford/quire/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are parsed and upserted
//   - notes removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List()
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Name] = struct{}{}

		if checksums[m.Name] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Name)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("name", m.Name), slog.String("error", err.Error()))
			continue
		}
		if err := IndexNote(db, m.Name, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("name", m.Name), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("name", m.Name))
		}
	}

	for name := range checksums {
		if _, ok := disk[name]; !ok {
			if err := db.DeleteNote(name); err != nil {
				logger.Warn("sync: delete failed", slog.String("name", name), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("name", name))
			}
		}
	}

	return nil
}

// IndexNote parses data and upserts it under name.
func IndexNote(db NoteIndex, name string, data []byte, updated time.Time) error {
	o := parser.Parse(data)
	row := NoteRow{
		Name:      name,
		Title:     o.Title,
		Checksum:  checksum.Sum(data),
		UpdatedAt: updated,
	}
	return db.UpsertNote(row, string(data), o.Links)
}
