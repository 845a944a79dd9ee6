// Package storage implements durable storage for notes and their snapshot
// history on the local file system.
package storage

import "github.com/starford/quire/internal/models"

// Provider is the interface for vault file operations. Names are sanitised
// note file names such as "welcome.md".
type Provider interface {
	// List returns metadata for every note in the vault.
	List() ([]models.NoteMetadata, error)
	// Read returns the raw bytes of a note.
	Read(name string) ([]byte, error)
	// Exists reports whether a note is present.
	Exists(name string) (bool, error)
	// Write atomically replaces the content of a note.
	Write(name string, content []byte) error
	// Delete removes a note.
	Delete(name string) error
}

var (
	_ Provider = (*FS)(nil)
)
