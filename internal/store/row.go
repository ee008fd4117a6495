package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/irampton/Lembas/internal/domain"
)

// Row is the persisted layout of a recipe. Nested collections are JSON text.
// Field names double as SQLite column names.
type Row struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Author      string `json:"author"`
	CreatedAt   string `json:"createdAt"`
	Tags        string `json:"tags"`
	Ingredients string `json:"ingredients"`
	Steps       string `json:"steps"`
	OwnerID     string `json:"ownerId"`
	IsPublic    int    `json:"isPublic"`
	Notes       string `json:"notes"`
}

// EncodeRow converts a recipe into its persisted layout.
func EncodeRow(r domain.Recipe) (Row, error) {
	if r.ID == "" {
		return Row{}, ErrInvalidInput.WithCause(fmt.Errorf("recipe id is empty"))
	}
	r.EnsureCollections()

	tags, err := json.Marshal(r.Tags)
	if err != nil {
		return Row{}, fmt.Errorf("encode tags: %w", err)
	}
	ingredients, err := json.Marshal(r.Ingredients)
	if err != nil {
		return Row{}, fmt.Errorf("encode ingredients: %w", err)
	}
	steps, err := json.Marshal(r.Steps)
	if err != nil {
		return Row{}, fmt.Errorf("encode steps: %w", err)
	}

	row := Row{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Author:      r.Author,
		CreatedAt:   r.CreatedAt,
		Tags:        string(tags),
		Ingredients: string(ingredients),
		Steps:       string(steps),
		OwnerID:     r.OwnerID,
		Notes:       r.Notes,
	}
	if r.IsPublic {
		row.IsPublic = 1
	}
	return row, nil
}

// DecodeRow converts a persisted row back into a recipe.
// A malformed collection decodes as empty and is reported to logger.
func DecodeRow(row Row, logger *slog.Logger) domain.Recipe {
	r := domain.Recipe{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		Author:      row.Author,
		CreatedAt:   row.CreatedAt,
		OwnerID:     row.OwnerID,
		IsPublic:    row.IsPublic != 0,
		Notes:       row.Notes,
	}

	decodeColumn(row.ID, "tags", row.Tags, &r.Tags, logger)
	decodeColumn(row.ID, "ingredients", row.Ingredients, &r.Ingredients, logger)
	decodeColumn(row.ID, "steps", row.Steps, &r.Steps, logger)

	r.EnsureCollections()
	return r
}

func decodeColumn[T any](recipeID, column, raw string, dst *[]T, logger *slog.Logger) {
	if raw == "" {
		return
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		if logger != nil {
			logger.Warn("Recovered malformed recipe column",
				slog.String("recipe_id", recipeID),
				slog.String("column", column),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	*dst = out
}

// SortByTitle orders recipes by title using case-insensitive, locale-aware
// collation. Equal titles keep their incoming order.
func SortByTitle(recipes []domain.Recipe) {
	// Collators are not safe for concurrent use.
	c := collate.New(language.Und, collate.IgnoreCase)
	slices.SortStableFunc(recipes, func(a, b domain.Recipe) int {
		return c.CompareString(a.Title, b.Title)
	})
}
