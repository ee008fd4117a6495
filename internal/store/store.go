package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/irampton/Lembas/internal/domain"
)

const recipePrefix = "recipe:"

// BadgerStore persists recipes in a Badger key-value database,
// one key per recipe.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
	closed atomic.Bool

	recipes *Entity[Row]
}

var _ Store = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a Badger database in dir.
func OpenBadger(dir string, logger *slog.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil            // Badger's own logging is too chatty
	opts.SyncWrites = true       // every committed save must survive a crash
	opts.CompactL0OnClose = true // faster startup

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &BadgerStore{
		db:      db,
		logger:  logger,
		recipes: NewEntity[Row](db, recipePrefix),
	}

	if logger != nil {
		logger.Info("Badger database opened", "path", dir)
	}
	return s, nil
}

// DB exposes the underlying database.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

// Close closes the database. Further calls return ErrClosed.
func (s *BadgerStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.logger != nil {
		s.logger.Info("Closing database connection")
	}
	return s.db.Close()
}

// Ping reports whether the database is open.
func (s *BadgerStore) Ping(ctx context.Context) error {
	if s.closed.Load() || s.db.IsClosed() {
		return ErrClosed
	}
	return ctx.Err()
}

// List returns every recipe ordered by title.
func (s *BadgerStore) List(ctx context.Context) ([]domain.Recipe, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	recipes := make([]domain.Recipe, 0)
	for row, err := range s.recipes.List(ctx) {
		if errors.Is(err, ErrCorrupt) {
			if s.logger != nil {
				s.logger.Warn("Skipping unreadable recipe", "error", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, DecodeRow(*row, s.logger))
	}

	SortByTitle(recipes)
	return recipes, nil
}

// Get returns a recipe by id.
func (s *BadgerStore) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	row, err := s.recipes.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r := DecodeRow(*row, s.logger)
	return &r, nil
}

// Upsert replaces or inserts a recipe and returns it as read back.
func (s *BadgerStore) Upsert(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}

	row, err := EncodeRow(recipe)
	if err != nil {
		return nil, err
	}
	if err := s.recipes.Put(ctx, row.ID, &row); err != nil {
		return nil, fmt.Errorf("upsert recipe %s: %w", row.ID, err)
	}
	return s.Get(ctx, row.ID)
}

// Delete removes a recipe and reports whether it existed.
func (s *BadgerStore) Delete(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	return s.recipes.Delete(ctx, id)
}
