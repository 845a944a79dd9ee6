package storage

import (
	"fmt"
	"strings"

	"github.com/starford/quire/internal/apperr"
)

// NoteExt is the file extension of every note.
const NoteExt = ".md"

const tempPattern = ".quire-tmp-*"

// SanitizeName turns user input into a note file name: every character
// outside [A-Za-z0-9._-] is dropped and NoteExt is appended when missing.
func SanitizeName(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	name := b.String()
	if name == "" {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidName, raw)
	}
	if !strings.HasSuffix(name, NoteExt) {
		name += NoteExt
	}
	if err := checkElem(name); err != nil {
		return "", err
	}
	return name, nil
}

// Stem returns a note name without NoteExt.
func Stem(name string) string {
	return strings.TrimSuffix(name, NoteExt)
}

// checkElem rejects anything that is not a plain, visible file name.
func checkElem(name string) error {
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("storage: %w: %q", apperr.ErrInvalidName, name)
	}
	return nil
}
