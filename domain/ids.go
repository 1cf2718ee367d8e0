package domain

import "github.com/oklog/ulid/v2"

// NewID returns a new lexicographically sortable identifier.
func NewID() string {
	return ulid.Make().String()
}

// IsID reports whether s has the shape of an identifier produced by NewID.
func IsID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
