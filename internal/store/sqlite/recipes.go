package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/store"
)

// recipeColumns is the ordered list of columns selected in recipe queries.
// Must match the scan order in scanRecipe.
const recipeColumns = `id, title, description, author, createdAt, tags, ingredients, steps, ownerId, isPublic, notes`

// scanRecipe scans a sql.Row (or sql.Rows via its Scan method) into a store.Row.
// Nullable text columns from older databases read as empty strings.
func scanRecipe(scanner interface{ Scan(dest ...any) error }) (store.Row, error) {
	var (
		row                          store.Row
		description, author, ownerID sql.NullString
		tags, ingredients, steps     sql.NullString
		notes                        sql.NullString
		isPublic                     sql.NullInt64
	)

	err := scanner.Scan(
		&row.ID,
		&row.Title,
		&description,
		&author,
		&row.CreatedAt,
		&tags,
		&ingredients,
		&steps,
		&ownerID,
		&isPublic,
		&notes,
	)
	if err != nil {
		return store.Row{}, err
	}

	row.Description = description.String
	row.Author = author.String
	row.Tags = tags.String
	row.Ingredients = ingredients.String
	row.Steps = steps.String
	row.OwnerID = ownerID.String
	row.IsPublic = int(isPublic.Int64)
	row.Notes = notes.String
	return row, nil
}

// List returns every recipe ordered by title.
// SQLite's NOCASE only folds ASCII, so the result is re-sorted with full collation;
// rowid keeps equal titles in storage order.
func (s *Store) List(ctx context.Context) ([]domain.Recipe, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes ORDER BY title COLLATE NOCASE, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	recipes := make([]domain.Recipe, 0)
	for rows.Next() {
		row, err := scanRecipe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipe: %w", err)
		}
		recipes = append(recipes, store.DecodeRow(row, s.logger))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}

	store.SortByTitle(recipes)
	return recipes, nil
}

// Get retrieves a recipe by its ID.
// Returns store.ErrNotFound if the recipe does not exist.
func (s *Store) Get(ctx context.Context, id string) (*domain.Recipe, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	row, err := scanRecipe(s.db.QueryRowContext(ctx,
		`SELECT `+recipeColumns+` FROM recipes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe %s: %w", id, err)
	}

	r := store.DecodeRow(row, s.logger)
	return &r, nil
}

// Upsert inserts the recipe or replaces every column of an existing one,
// then reads the stored row back.
func (s *Store) Upsert(ctx context.Context, recipe domain.Recipe) (*domain.Recipe, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}

	row, err := store.EncodeRow(recipe)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO recipes (`+recipeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			author      = excluded.author,
			createdAt   = excluded.createdAt,
			tags        = excluded.tags,
			ingredients = excluded.ingredients,
			steps       = excluded.steps,
			ownerId     = excluded.ownerId,
			isPublic    = excluded.isPublic,
			notes       = excluded.notes`,
		row.ID,
		row.Title,
		row.Description,
		row.Author,
		row.CreatedAt,
		row.Tags,
		row.Ingredients,
		row.Steps,
		row.OwnerID,
		row.IsPublic,
		row.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert recipe %s: %w", row.ID, err)
	}

	return s.Get(ctx, row.ID)
}

// Delete removes a recipe and reports whether a row was deleted.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	if s.closed.Load() {
		return false, store.ErrClosed
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete recipe %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete recipe %s: %w", id, err)
	}
	return n > 0, nil
}
