// Package id generates identifiers for recipes, ingredients, sessions, and requests.
package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for short-lived identifiers.
const (
	PrefixSession = "sess"
	PrefixRequest = "req"
)

// Generate creates a prefixed NanoID, e.g. "sess-V1StGXR8_Z5jdHi6B-myT".
//
// Used for connection-scoped identifiers that never reach the store.
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// NewRecordID returns a random UUID for recipes and ingredients.
// Records keep the UUID format so databases created by older clients stay compatible.
func NewRecordID() string {
	return uuid.NewString()
}
