package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"github.com/dgraph-io/badger/v4"
)

// Entity provides generic keyed CRUD for values stored as JSON under a key prefix.
type Entity[T any] struct {
	db     *badger.DB
	prefix string
}

// NewEntity creates an Entity storing values under prefix.
func NewEntity[T any](db *badger.DB, prefix string) *Entity[T] {
	return &Entity[T]{db: db, prefix: prefix}
}

func (e *Entity[T]) key(id string) []byte {
	return []byte(e.prefix + id)
}

// Put inserts or replaces the value stored under id.
func (e *Entity[T]) Put(ctx context.Context, id string, value *T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal entity: %w", err)
	}

	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(e.key(id), data)
	})
}

// Get retrieves the value stored under id.
// Returns ErrNotFound if nothing is stored.
func (e *Entity[T]) Get(ctx context.Context, id string) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var value T
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(e.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		return item.Value(func(val []byte) error {
			if err := json.Unmarshal(val, &value); err != nil {
				return fmt.Errorf("failed to unmarshal entity: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// Delete removes the value stored under id and reports whether one existed.
func (e *Entity[T]) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	existed := false
	err := e.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(e.key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to check key: %w", err)
		}
		existed = true
		return txn.Delete(e.key(id))
	})
	if err != nil {
		return false, err
	}
	return existed, nil
}

// List returns an iterator over all stored values in key order.
// Values that fail to decode are yielded as ErrCorrupt and iteration continues.
func (e *Entity[T]) List(ctx context.Context) iter.Seq2[*T, error] {
	return func(yield func(*T, error) bool) {
		_ = e.db.View(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = []byte(e.prefix)

			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return err
				}

				var value T
				err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &value)
				})
				if err != nil {
					// One bad value must not hide the rest of the prefix.
					err = ErrCorrupt.WithCause(fmt.Errorf("%s: %w", it.Item().Key(), err))
					if !yield(nil, err) {
						return nil
					}
					continue
				}

				if !yield(&value, nil) {
					return nil
				}
			}
			return nil
		})
	}
}
