// Package models defines the domain types for Quire.
package models

import "time"

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	Name      string    `json:"name"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Heading is one header line of a note.
type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}
