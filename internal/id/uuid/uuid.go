// Package uuid generates run and request identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator implements crawler.IDGenerator with time-ordered UUIDv7 values,
// so run IDs sort by start time.
type Generator struct{}

// New returns a Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUIDv7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Short returns the first block of a fresh random UUID. It is used for
// request correlation where uniqueness within a process is enough.
func Short() string {
	id := uuid.NewString()
	return id[:8]
}
