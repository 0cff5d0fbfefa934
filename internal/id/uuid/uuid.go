// Package uuid provides run and artifact identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// NewFileName returns "<prefix>-<uuid7><ext>", suitable for files that must
// never collide, such as dead-letter entries.
func (g Generator) NewFileName(prefix, ext string) (string, error) {
	id, err := g.NewID()
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return id + ext, nil
	}
	return prefix + "-" + id + ext, nil
}
