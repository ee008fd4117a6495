// Package storetest holds the behavioral test suite every store engine must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/store"
)

// Opener opens a fresh, empty store for one test.
type Opener func(t *testing.T) store.Store

// Recipe builds a normalized-looking recipe for tests.
func Recipe(id, title string) domain.Recipe {
	return domain.Recipe{
		ID:          id,
		Title:       title,
		CreatedAt:   "2024-01-02T03:04:05.000Z",
		Tags:        []string{},
		Ingredients: []domain.Ingredient{},
		Steps:       []string{},
	}
}

// Run exercises the full store contract against engines produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("UpsertRoundTrip", func(t *testing.T) { testUpsertRoundTrip(t, open(t)) })
	t.Run("UpsertReplaces", func(t *testing.T) { testUpsertReplaces(t, open(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("DeleteReportsExistence", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("ListSortedCaseInsensitive", func(t *testing.T) { testListSorted(t, open(t)) })
	t.Run("ListEmpty", func(t *testing.T) { testListEmpty(t, open(t)) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { testConcurrentUpserts(t, open(t)) })
	t.Run("Ping", func(t *testing.T) { testPing(t, open(t)) })
}

func testUpsertRoundTrip(t *testing.T, s store.Store) {
	ctx := context.Background()

	in := Recipe("r1", "Pancakes")
	in.Description = "Fluffy"
	in.Author = "Gran"
	in.Tags = []string{"breakfast", "sweet"}
	in.Ingredients = []domain.Ingredient{
		{ID: "i1", Name: "Flour", Quantity: 2.0, Unit: "cups"},
		{ID: "i2", Name: "Milk", Quantity: "1/2", Unit: ""},
		{ID: "i3", Name: "Salt", Quantity: "", Unit: "pinch"},
	}
	in.Steps = []string{"Mix", "Fry"}
	in.OwnerID = "user-1"
	in.IsPublic = true
	in.Notes = "Double for guests"

	saved, err := s.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in, *saved)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, in, *got)
}

func testUpsertReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()

	first := Recipe("r1", "Soup")
	first.Tags = []string{"hot"}
	first.Notes = "old"
	_, err := s.Upsert(ctx, first)
	require.NoError(t, err)

	second := Recipe("r1", "Cold Soup")
	_, err = s.Upsert(ctx, second)
	require.NoError(t, err)

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, second, *got, "upsert replaces the whole record")

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Upsert(ctx, Recipe("r1", "Stew"))
	require.NoError(t, err)

	removed, err := s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, removed, "second delete is a no-op")

	_, err = s.Get(ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testListSorted(t *testing.T, s store.Store) {
	ctx := context.Background()

	for i, title := range []string{"banana bread", "Apple pie", "cherry tart", "Éclair", "apple crumble"} {
		_, err := s.Upsert(ctx, Recipe(fmt.Sprintf("r%d", i), title))
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)

	titles := make([]string, len(all))
	for i, r := range all {
		titles[i] = r.Title
	}
	assert.Equal(t, []string{"apple crumble", "Apple pie", "banana bread", "cherry tart", "Éclair"}, titles)
}

func testListEmpty(t *testing.T, s store.Store) {
	all, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func testConcurrentUpserts(t *testing.T, s store.Store) {
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Upsert(ctx, Recipe(fmt.Sprintf("r%02d", i), fmt.Sprintf("Recipe %02d", i)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func testPing(t *testing.T, s store.Store) {
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(context.Background()))
}
