package util

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// NewID returns a fresh nanoid used for run IDs, queue correlation IDs,
// and graph fingerprints.
func NewID() (string, error) {
	return gonanoid.New()
}
