// Package uuid generates and checks the identifiers given to locally created records.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// New generates a random (v4) identifier.
func New() string {
	return uuid.New().String()
}

// IsValid reports whether s is a canonical v4 identifier.
func IsValid(s string) bool {
	return Validate(s) == nil
}

// Validate returns an error if s is not a canonical v4 identifier.
func Validate(s string) error {
	if len(s) != 36 {
		return fmt.Errorf("invalid identifier %q: want 36 characters, got %d", s, len(s))
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid identifier %q: %w", s, err)
	}
	if id.Version() != 4 {
		return fmt.Errorf("invalid identifier %q: expected v4, got v%d", s, id.Version())
	}
	if id.Variant() != uuid.RFC4122 {
		return fmt.Errorf("invalid identifier %q: unexpected variant", s)
	}
	return nil
}
