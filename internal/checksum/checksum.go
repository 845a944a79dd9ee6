// Package checksum computes content digests used for change detection and
// optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag returns Sum(data) quoted for use as an HTTP entity tag.
func ETag(data []byte) string {
	return Quote(Sum(data))
}

// Quote turns a digest returned by Sum into an HTTP entity tag.
func Quote(sum string) string {
	return `"` + sum + `"`
}

// Matches reports whether an If-Match header value names data. The empty
// value and "*" match anything.
func Matches(ifMatch string, data []byte) bool {
	v := strings.TrimSpace(ifMatch)
	if v == "" || v == "*" {
		return true
	}
	return strings.Trim(strings.TrimPrefix(v, "W/"), `"`) == Sum(data)
}
