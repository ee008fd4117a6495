// Package store defines the persistence contract for recipes and the Badger engine.
//
// Two engines implement Store: the SQLite engine in store/sqlite (default)
// and the Badger engine in this package. Both persist nested collections as
// JSON text and recover malformed payloads as empty collections.
package store

import (
	"context"

	"github.com/irampton/Lembas/internal/domain"
)

// Store is durable, keyed recipe storage.
//
// Every read reflects the latest committed write; engines keep no cache.
type Store interface {
	// List returns every recipe ordered by title (case-insensitive, locale-aware).
	List(ctx context.Context) ([]domain.Recipe, error)

	// Get returns the recipe with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Recipe, error)

	// Upsert replaces or inserts the recipe keyed by its id and returns the
	// record as read back from storage.
	Upsert(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error)

	// Delete removes the recipe and reports whether a record existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Ping verifies the engine is reachable.
	Ping(ctx context.Context) error

	Close() error
}
