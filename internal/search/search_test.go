package search

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irampton/Lembas/internal/domain"
)

func setupTestIndex(t *testing.T) *Index {
	t.Helper()

	index, err := Open(Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	return index
}

func recipe(id, title string) domain.Recipe {
	r := domain.Recipe{ID: id, Title: title}
	r.EnsureCollections()
	return r
}

func seed(t *testing.T, index *Index) {
	t.Helper()

	pesto := recipe("r-pesto", "Basil Pesto")
	pesto.Tags = []string{"Sauce", "vegetarian"}
	pesto.Ingredients = []domain.Ingredient{{ID: "i1", Name: "basil"}, {ID: "i2", Name: "pine nuts"}}
	pesto.IsPublic = true

	soup := recipe("r-soup", "Tomato Soup")
	soup.Tags = []string{"dinner"}
	soup.Ingredients = []domain.Ingredient{{ID: "i3", Name: "tomatoes"}, {ID: "i4", Name: "basil"}}
	soup.Steps = []string{"Roast the tomatoes", "Blend"}

	bread := recipe("r-bread", "Sourdough Bread")
	bread.Author = "Grandma Rose"
	bread.Notes = "Feed the starter the night before."

	require.NoError(t, index.IndexRecipes(context.Background(), []domain.Recipe{pesto, soup, bread}))
}

func TestOpen_Empty(t *testing.T) {
	index := setupTestIndex(t)

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndex_IndexAndDelete(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	r := recipe("r1", "Pancakes")
	require.NoError(t, index.IndexRecipe(ctx, &r))

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	require.NoError(t, index.DeleteRecipe(ctx, "r1"))
	require.NoError(t, index.DeleteRecipe(ctx, "never-indexed"))

	count, err = index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestIndex_ReindexReplacesDocument(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	r := recipe("r1", "Pancakes")
	require.NoError(t, index.IndexRecipe(ctx, &r))
	r.Title = "Waffles"
	require.NoError(t, index.IndexRecipe(ctx, &r))

	ids, err := index.Search(ctx, "pancakes", 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = index.Search(ctx, "waffles", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, ids)
}

func TestSearch(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "title", query: "pesto", want: []string{"r-pesto"}},
		{name: "stemmed title", query: "soups", want: []string{"r-soup"}},
		{name: "tag case-insensitive", query: "sauce", want: []string{"r-pesto"}},
		{name: "ingredient", query: "tomato", want: []string{"r-soup"}},
		{name: "author", query: "rose", want: []string{"r-bread"}},
		{name: "notes", query: "starter", want: []string{"r-bread"}},
		{name: "typo", query: "sourdugh", want: []string{"r-bread"}},
		{name: "prefix", query: "sourd", want: []string{"r-bread"}},
		{name: "no match", query: "lasagna", want: []string{}},
		{name: "empty query", query: "  ", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := index.Search(ctx, tt.query, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSearch_SharedIngredientRanksTitleFirst(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)

	ids, err := index.Search(context.Background(), "basil", 10)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "r-pesto", ids[0], "title match outranks ingredient-only match")
	assert.Contains(t, ids, "r-soup")
}

func TestQuery_Filters(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	result, err := index.Query(ctx, Params{Query: "basil", PublicOnly: true})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "r-pesto", result.Hits[0].ID)
	assert.Equal(t, "Basil Pesto", result.Hits[0].Title)

	result, err = index.Query(ctx, Params{Tags: []string{"Dinner"}})
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, "r-soup", result.Hits[0].ID)
}

func TestQuery_LimitClamped(t *testing.T) {
	index := setupTestIndex(t)
	ctx := context.Background()

	recipes := make([]domain.Recipe, 0, MaxLimit+10)
	for i := range MaxLimit + 10 {
		recipes = append(recipes, recipe(fmt.Sprintf("r%03d", i), fmt.Sprintf("Cake %d", i)))
	}
	require.NoError(t, index.IndexRecipes(ctx, recipes))

	result, err := index.Query(ctx, Params{Query: "cake", Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, result.Hits, MaxLimit)
	assert.Equal(t, uint64(MaxLimit+10), result.Total)

	result, err = index.Query(ctx, Params{Query: "cake"})
	require.NoError(t, err)
	assert.Len(t, result.Hits, DefaultLimit)
}

func TestReindex(t *testing.T) {
	index := setupTestIndex(t)
	seed(t, index)
	ctx := context.Background()

	require.NoError(t, index.Reindex(ctx, []domain.Recipe{recipe("r-new", "Lembas Bread")}))

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	ids, err := index.Search(ctx, "lembas", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"r-new"}, ids)
}

func TestOpen_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	index, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	r := recipe("r1", "Persistent Pie")
	require.NoError(t, index.IndexRecipe(ctx, &r))
	require.NoError(t, index.Close())

	index, err = Open(Options{DataPath: dir})
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestOpen_MappingVersionMismatchRebuilds(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	index, err := Open(Options{DataPath: dir})
	require.NoError(t, err)
	r := recipe("r1", "Old Mapping")
	require.NoError(t, index.IndexRecipe(ctx, &r))
	require.NoError(t, index.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "recipes.version"), []byte("0"), 0o644))

	index, err = Open(Options{DataPath: dir})
	require.NoError(t, err)
	defer index.Close()

	count, err := index.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count, "stale index dropped")

	version, err := os.ReadFile(filepath.Join(dir, "recipes.version"))
	require.NoError(t, err)
	assert.Equal(t, mappingVersion, string(version))
}

func TestRecipeToDocument(t *testing.T) {
	r := domain.Recipe{
		ID:          "r1",
		Title:       "Soup",
		CreatedAt:   "2024-03-09T17:04:05.123Z",
		Tags:        []string{"Dinner", "Quick"},
		Ingredients: []domain.Ingredient{{Name: "water"}, {Name: ""}, {Name: "salt"}},
		Steps:       []string{"Boil", "Season"},
		IsPublic:    true,
	}

	doc := RecipeToDocument(&r)
	assert.Equal(t, []string{"dinner", "quick"}, doc.Tags)
	assert.Equal(t, "water\nsalt", doc.Ingredients)
	assert.Equal(t, "Boil\nSeason", doc.Steps)
	assert.Equal(t, int64(1710003845123), doc.CreatedAt)
	assert.True(t, doc.Public)

	m := doc.ToMap()
	assert.NotContains(t, m, "description")
	assert.Equal(t, true, m["public"])
}
