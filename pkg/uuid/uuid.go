// Package uuid provides UUID v7 generation.
// UUID v7 is sortable by timestamp (better for database indexes than v4).
package uuid

import (
	guuid "github.com/google/uuid"
)

// UUID is a 16-byte RFC 9562 identifier.
type UUID = guuid.UUID

// NewV7 generates a new time-ordered UUID v7.
// Falls back to a random v4 if the entropy source fails, so callers never
// have to handle an error when minting row IDs.
func NewV7() UUID {
	id, err := guuid.NewV7()
	if err != nil {
		return guuid.New()
	}
	return id
}

// Short returns the last n hex characters of a fresh v7 (its random tail).
// Used for human-facing suffixes (subdomains, receipts), never as a key.
func Short(n int) string {
	s := NewV7().String()
	tail := s[len(s)-12:]
	if n <= 0 || n > len(tail) {
		return tail
	}
	return tail[len(tail)-n:]
}
