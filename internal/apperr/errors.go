// Package apperr defines the error kinds shared across Quire packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidName   = errors.New("invalid name")
	// ErrStorage marks a durable read or write failure. It is joined with the
	// underlying cause, so both match with errors.Is.
	ErrStorage = errors.New("storage failure")
)
