package snapshot

import (
	"fmt"
	"time"
)

// IDLayout is the snapshot identifier format: UTC, second resolution,
// lexicographically sortable.
const IDLayout = "20060102T150405Z"

// FormatID returns the identifier for an instant, truncated to the second.
func FormatID(t time.Time) string {
	return t.UTC().Format(IDLayout)
}

// ParseID parses an identifier produced by FormatID. Only the canonical form
// is accepted, so ParseID(FormatID(t)) is exact and every accepted id formats
// back to itself.
func ParseID(id string) (time.Time, error) {
	t, err := time.ParseInLocation(IDLayout, id, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("snapshot: parse id %q: %w", id, err)
	}
	if FormatID(t) != id {
		return time.Time{}, fmt.Errorf("snapshot: parse id %q: not canonical", id)
	}
	return t, nil
}
