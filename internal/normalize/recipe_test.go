package normalize

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irampton/Lembas/internal/domain"
)

func fixedNormalizer() *Normalizer {
	seq := 0
	return &Normalizer{
		Now: func() time.Time { return time.Date(2024, 3, 9, 18, 4, 5, 123_000_000, time.FixedZone("CET", 3600)) },
		NewID: func() string {
			seq++
			return fmt.Sprintf("gen-%d", seq)
		},
	}
}

func TestRecipe_FillsDefaults(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{"title": "  Soup  "})

	assert.Equal(t, "gen-1", r.ID)
	assert.Equal(t, "Soup", r.Title)
	assert.Equal(t, "2024-03-09T17:04:05.123Z", r.CreatedAt)
	assert.Equal(t, "", r.Description)
	assert.Equal(t, "", r.Author)
	assert.Equal(t, []string{}, r.Tags)
	assert.Equal(t, []domain.Ingredient{}, r.Ingredients)
	assert.Equal(t, []string{}, r.Steps)
	assert.Equal(t, "", r.OwnerID)
	assert.False(t, r.IsPublic)
	assert.Equal(t, "", r.Notes)
}

func TestRecipe_KeepsSuppliedIdentityAndTimestamp(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{
		"id":        "r-42",
		"title":     "Bread",
		"createdAt": "2020-01-01T00:00:00.000Z",
	})

	assert.Equal(t, "r-42", r.ID)
	assert.Equal(t, "2020-01-01T00:00:00.000Z", r.CreatedAt)
}

func TestRecipe_BlankTitleBecomesPlaceholder(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{"title": "   "})
	assert.Equal(t, domain.DefaultTitle, r.Title)
}

func TestRecipe_TagsAndSteps(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{
		"title": "Tea",
		"tags":  []any{" quick ", "", "  ", 7, nil, "drink"},
		"steps": []any{"  Boil water  ", "", "Steep"},
	})

	assert.Equal(t, []string{"quick", "drink"}, r.Tags)
	assert.Equal(t, []string{"Boil water", "Steep"}, r.Steps)
}

func TestRecipe_MalformedCollectionsBecomeEmpty(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{
		"title":       "Odd",
		"tags":        "not-a-list",
		"ingredients": map[string]any{"name": "salt"},
		"steps":       42.0,
	})

	assert.Empty(t, r.Tags)
	assert.NotNil(t, r.Tags)
	assert.Empty(t, r.Ingredients)
	assert.NotNil(t, r.Ingredients)
	assert.Empty(t, r.Steps)
}

func TestRecipe_Ingredients(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{
		"title": "Pancakes",
		"ingredients": []any{
			map[string]any{"id": "ing-1", "name": " Flour ", "quantity": 2.0, "unit": "cups"},
			map[string]any{"name": "Milk", "quantity": "1/2"},
			map[string]any{"name": "Salt", "quantity": nil},
			"garbage",
		},
	})

	require.Len(t, r.Ingredients, 4)

	assert.Equal(t, domain.Ingredient{ID: "ing-1", Name: "Flour", Quantity: 2.0, Unit: "cups"}, r.Ingredients[0])
	assert.Equal(t, domain.Ingredient{ID: "gen-2", Name: "Milk", Quantity: "1/2", Unit: ""}, r.Ingredients[1])
	assert.Equal(t, "", r.Ingredients[2].Quantity)
	assert.Equal(t, "gen-4", r.Ingredients[3].ID)
	assert.Equal(t, "", r.Ingredients[3].Name)
}

func TestRecipe_OwnerSpellings(t *testing.T) {
	n := fixedNormalizer()

	assert.Equal(t, "u1", n.Recipe(map[string]any{"title": "a", "ownerId": " u1 "}).OwnerID)
	assert.Equal(t, "u2", n.Recipe(map[string]any{"title": "a", "ownerID": "u2"}).OwnerID)
	assert.Equal(t, "u1", n.Recipe(map[string]any{"title": "a", "ownerId": "u1", "ownerID": "u2"}).OwnerID)
	assert.Equal(t, "u2", n.Recipe(map[string]any{"title": "a", "ownerId": "  ", "ownerID": "u2"}).OwnerID)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0.0, false},
		{1.0, true},
		{int64(0), false},
		{uint64(3), true},
		{"", false},
		{"false", true},
		{[]any{}, true},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Truthy(tt.in), "Truthy(%#v)", tt.in)
	}
}

func TestQuantity_SurvivesJSONRoundTrip(t *testing.T) {
	for _, in := range []any{"1/2", 2.5, int64(3), uint64(4), true, nil} {
		q := Quantity(in)

		data, err := json.Marshal(q)
		require.NoError(t, err)
		var back any
		require.NoError(t, json.Unmarshal(data, &back))

		assert.Equal(t, q, back, "quantity %#v", in)
	}
}

func TestHasTitle(t *testing.T) {
	assert.True(t, HasTitle(map[string]any{"title": "Soup"}))
	assert.False(t, HasTitle(map[string]any{"title": "   "}))
	assert.False(t, HasTitle(map[string]any{}))
	assert.False(t, HasTitle(nil))
	assert.False(t, HasTitle(map[string]any{"title": []any{"x"}}))
}

func TestRecipe_AcceptsGoSlices(t *testing.T) {
	r := fixedNormalizer().Recipe(map[string]any{
		"title":       "Typed",
		"tags":        []string{" a ", ""},
		"ingredients": []map[string]any{{"name": "Egg", "quantity": 1}},
	})

	assert.Equal(t, []string{"a"}, r.Tags)
	require.Len(t, r.Ingredients, 1)
	assert.Equal(t, 1.0, r.Ingredients[0].Quantity)
}

func TestDraft(t *testing.T) {
	d := fixedNormalizer().Draft(map[string]any{
		"title":       " Chili ",
		"steps":       []any{"Brown beef", " "},
		"ingredients": []any{map[string]any{"name": "Beans"}},
	})

	assert.Equal(t, "Chili", d.Title)
	assert.Equal(t, []string{"Brown beef"}, d.Steps)
	require.Len(t, d.Ingredients, 1)
	assert.Equal(t, "gen-1", d.Ingredients[0].ID)
	assert.Equal(t, "", d.Ingredients[0].Quantity)
}
