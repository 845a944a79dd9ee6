package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// History stores snapshot files on disk as <root>/<note stem>/<id>.md.
// It knows nothing about ids beyond treating them as file stems.
type History struct {
	root string
}

// NewHistory creates a History rooted at dir, creating the directory if needed.
func NewHistory(dir string) (*History, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create history dir: %w", err)
	}
	abs, err := rootDir(dir)
	if err != nil {
		return nil, err
	}
	return &History{root: abs}, nil
}

// Root returns the absolute history directory.
func (h *History) Root() string {
	return h.root
}

func (h *History) dir(note string) (string, error) {
	if err := checkElem(note); err != nil {
		return "", err
	}
	stem := Stem(note)
	if err := checkElem(stem); err != nil {
		return "", err
	}
	return filepath.Join(h.root, stem), nil
}

func (h *History) file(note, id string) (string, error) {
	dir, err := h.dir(note)
	if err != nil {
		return "", err
	}
	if err := checkElem(id); err != nil {
		return "", err
	}
	return filepath.Join(dir, id+NoteExt), nil
}

// List returns the ids stored for a note, in directory order. A note without
// history yields an empty list.
func (h *History) List(note string) ([]string, error) {
	dir, err := h.dir(note)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("storage: list history %s: %w", note, err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, NoteExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, NoteExt))
	}
	return ids, nil
}

// Read returns the content of one snapshot. A missing snapshot matches
// os.ErrNotExist.
func (h *History) Read(note, id string) ([]byte, error) {
	p, err := h.file(note, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("storage: read snapshot %s/%s: %w", note, id, err)
	}
	return data, nil
}

// Write atomically stores a snapshot, replacing one with the same id.
func (h *History) Write(note, id string, content []byte) error {
	p, err := h.file(note, id)
	if err != nil {
		return err
	}
	return writeAtomic(p, content)
}

// Delete removes one snapshot.
func (h *History) Delete(note, id string) error {
	p, err := h.file(note, id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("storage: delete snapshot %s/%s: %w", note, id, err)
	}
	return nil
}

// Prune removes the history directory of a note when it holds no files.
// A missing or non-empty directory is left alone.
func (h *History) Prune(note string) error {
	dir, err := h.dir(note)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("storage: prune history %s: %w", note, err)
	}
	if len(entries) > 0 {
		return nil
	}
	if err := os.Remove(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: prune history %s: %w", note, err)
	}
	return nil
}
