package hub

import (
	"context"
	"log/slog"
	"strings"

	"github.com/irampton/Lembas/internal/domain"
	domainerrors "github.com/irampton/Lembas/internal/errors"
	"github.com/irampton/Lembas/internal/normalize"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/wire"
)

// Client-facing messages.
const (
	msgTitleRequired  = "Title is required."
	msgMissingID      = "Missing recipe id."
	msgNotFound       = "Recipe not found."
	msgSaveFailed     = "Unable to save recipe."
	msgDeleteFailed   = "Unable to delete recipe."
	msgLoadFailed     = "Unable to load recipes."
	msgImportText     = "Please provide some text to import."
	msgImportFailed   = "Unable to import recipe right now."
	msgSearchDisabled = "Search is not enabled."
	msgSearchFailed   = "Unable to search recipes."
)

// ErrShuttingDown is returned by Connect once Shutdown has started.
var ErrShuttingDown = domainerrors.Unavailable("Server is shutting down.")

func storageError(err error, msg string) error {
	return domainerrors.Storage(err, msg)
}

// List returns the current listing, read fresh from the store.
func (h *Hub) List(ctx context.Context) ([]domain.Recipe, error) {
	return h.listLocked(ctx)
}

// listLocked reads the listing. Callers that must order the result against
// broadcasts hold mu; List does not.
func (h *Hub) listLocked(ctx context.Context) ([]domain.Recipe, error) {
	recipes, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("Failed to list recipes", slog.String("error", err.Error()))
		return nil, storageError(err, msgLoadFailed)
	}
	return recipes, nil
}

// Get returns a single recipe.
func (h *Hub) Get(ctx context.Context, recipeID string) (*domain.Recipe, error) {
	recipe, err := h.store.Get(ctx, recipeID)
	if domainerrors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, storageError(err, msgLoadFailed)
	}
	return recipe, nil
}

// Save validates and normalizes raw, upserts it, and broadcasts the new
// listing to every session. It returns the stored record.
func (h *Hub) Save(ctx context.Context, raw map[string]any) (*domain.Recipe, error) {
	// 1. Reject blank titles before touching the store.
	if !normalize.HasTitle(raw) {
		return nil, domainerrors.Validation(msgTitleRequired)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// 2. Normalize and persist.
	recipe := h.normalizer.Recipe(raw)
	saved, err := h.store.Upsert(ctx, recipe)
	if err != nil {
		h.logger.Error("Failed to save recipe",
			slog.String("recipe_id", recipe.ID),
			slog.String("error", err.Error()))
		return nil, storageError(err, msgSaveFailed)
	}

	// 3. Re-list and broadcast to everyone, the originator included.
	h.publish(ctx)

	// 4. Keep secondary indexes in step.
	if h.indexer != nil {
		if err := h.indexer.IndexRecipe(ctx, saved); err != nil {
			h.logger.Warn("Failed to index recipe",
				slog.String("recipe_id", saved.ID),
				slog.String("error", err.Error()))
		}
	}

	h.logger.Info("Recipe saved",
		slog.String("recipe_id", saved.ID),
		slog.String("title", saved.Title))

	return saved, nil
}

// Delete removes a recipe and broadcasts the new listing.
func (h *Hub) Delete(ctx context.Context, recipeID string) error {
	recipeID = strings.TrimSpace(recipeID)
	if recipeID == "" {
		return domainerrors.NotFound(msgMissingID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	removed, err := h.store.Delete(ctx, recipeID)
	if err != nil {
		h.logger.Error("Failed to delete recipe",
			slog.String("recipe_id", recipeID),
			slog.String("error", err.Error()))
		return storageError(err, msgDeleteFailed)
	}
	if !removed {
		return domainerrors.NotFound(msgNotFound)
	}

	h.publish(ctx)

	if h.indexer != nil {
		if err := h.indexer.DeleteRecipe(ctx, recipeID); err != nil {
			h.logger.Warn("Failed to remove recipe from index",
				slog.String("recipe_id", recipeID),
				slog.String("error", err.Error()))
		}
	}

	h.logger.Info("Recipe deleted", slog.String("recipe_id", recipeID))
	return nil
}

// publish re-reads the listing and broadcasts it. Callers must hold mu.
// A failed re-list is logged and skips the broadcast; the mutation has
// already committed and sessions catch up on the next broadcast or reconnect.
func (h *Hub) publish(ctx context.Context) {
	listing, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("Failed to re-list recipes after mutation",
			slog.String("error", err.Error()))
		return
	}
	h.broadcast(wire.Updated(listing))
}

// Search runs a full-text query and resolves hits against the store, so
// results reflect current state even if the index lags.
func (h *Hub) Search(ctx context.Context, query string, limit int) ([]domain.Recipe, error) {
	if h.searcher == nil {
		return nil, domainerrors.Unavailable(msgSearchDisabled)
	}

	ids, err := h.searcher.Search(ctx, query, limit)
	if err != nil {
		h.logger.Error("Search failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, msgSearchFailed)
	}

	results := make([]domain.Recipe, 0, len(ids))
	for _, recipeID := range ids {
		recipe, err := h.store.Get(ctx, recipeID)
		if domainerrors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError(err, msgLoadFailed)
		}
		results = append(results, *recipe)
	}
	return results, nil
}

// Import turns free text into a draft recipe via the import collaborator.
// The draft is not saved.
func (h *Hub) Import(ctx context.Context, text string) (*domain.Draft, error) {
	if strings.TrimSpace(text) == "" {
		return nil, domainerrors.Validation(msgImportText)
	}

	draft, err := h.importer.Import(ctx, text)
	if err != nil {
		var domainErr *domainerrors.Error
		if domainerrors.As(err, &domainErr) &&
			(domainErr.Code == domainerrors.CodeRateLimited || domainErr.Code == domainerrors.CodeUnavailable) {
			return nil, domainErr
		}
		h.logger.Error("Recipe import failed", slog.String("error", err.Error()))
		return nil, domainerrors.Collaborator(err, msgImportFailed)
	}
	return draft, nil
}
