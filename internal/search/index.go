package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/irampton/Lembas/internal/domain"
)

// Index wraps a Bleve index with recipe operations.
//
// All methods are safe for concurrent use. The mutex keeps readers and
// writers off the index while Rebuild swaps it.
type Index struct {
	index  bleve.Index
	path   string
	logger *slog.Logger
	mu     sync.RWMutex
}

// Options configures the search index.
type Options struct {
	DataPath string       // directory holding the index and its version file
	Logger   *slog.Logger // discards if nil
}

// mappingVersion is bumped whenever buildIndexMapping changes. A mismatch
// on startup drops the index so it is rebuilt with the current mapping.
const mappingVersion = "1"

// batchSize bounds each Bleve batch during bulk indexing.
const batchSize = 500

// Open creates or opens the index under opts.DataPath. A corrupted index or
// one built with an older mapping is removed and recreated empty; callers
// repopulate it with Reindex.
func Open(opts Options) (*Index, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(opts.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("create search directory: %w", err)
	}

	indexPath := filepath.Join(opts.DataPath, "recipes.bleve")
	versionPath := filepath.Join(opts.DataPath, "recipes.version")

	var index bleve.Index
	var err error
	needsRebuild := false

	indexExists := false
	if _, statErr := os.Stat(indexPath); statErr == nil {
		indexExists = true
	}

	if indexExists {
		existingVersion, readErr := os.ReadFile(versionPath)
		switch {
		case readErr != nil:
			logger.Info("Search index has no version file, rebuilding",
				slog.String("new_version", mappingVersion))
			needsRebuild = true
		case string(existingVersion) != mappingVersion:
			logger.Info("Search index mapping version changed, rebuilding",
				slog.String("old_version", string(existingVersion)),
				slog.String("new_version", mappingVersion))
			needsRebuild = true
		}
	}

	if !needsRebuild && indexExists {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Warn("Failed to open search index, recreating",
				slog.String("path", indexPath),
				slog.String("error", err.Error()))
			needsRebuild = true
		}
	}

	if needsRebuild {
		if removeErr := os.RemoveAll(indexPath); removeErr != nil {
			return nil, fmt.Errorf("remove old index: %w", removeErr)
		}
		index = nil
	}

	if index == nil {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
		if writeErr := os.WriteFile(versionPath, []byte(mappingVersion), 0o644); writeErr != nil {
			logger.Warn("Failed to write search version file", slog.String("error", writeErr.Error()))
		}
		logger.Info("Created search index",
			slog.String("path", indexPath),
			slog.String("mapping_version", mappingVersion))
	} else {
		logger.Info("Opened search index", slog.String("path", indexPath))
	}

	return &Index{
		index:  index,
		path:   indexPath,
		logger: logger,
	}, nil
}

// Close closes the index.
func (s *Index) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

// IndexRecipe adds or replaces one recipe.
func (s *Index) IndexRecipe(_ context.Context, recipe *domain.Recipe) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Index(recipe.ID, RecipeToDocument(recipe).ToMap())
}

// DeleteRecipe removes one recipe. Deleting an unindexed id is not an error.
func (s *Index) DeleteRecipe(_ context.Context, recipeID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Delete(recipeID)
}

// IndexRecipes indexes recipes in batches.
func (s *Index) IndexRecipes(ctx context.Context, recipes []domain.Recipe) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(ctx, recipes)
}

func (s *Index) indexLocked(ctx context.Context, recipes []domain.Recipe) error {
	for i := 0; i < len(recipes); i += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := min(i+batchSize, len(recipes))
		batch := s.index.NewBatch()
		for j := i; j < end; j++ {
			if err := batch.Index(recipes[j].ID, RecipeToDocument(&recipes[j]).ToMap()); err != nil {
				return fmt.Errorf("batch index %s: %w", recipes[j].ID, err)
			}
		}
		if err := s.index.Batch(batch); err != nil {
			return fmt.Errorf("commit batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// DocCount returns the number of indexed recipes.
func (s *Index) DocCount() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Reindex replaces the index contents with recipes. It holds the exclusive
// lock for the duration, so searches wait until it finishes.
func (s *Index) Reindex(ctx context.Context, recipes []domain.Recipe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	if err := os.RemoveAll(s.path); err != nil {
		return fmt.Errorf("remove index: %w", err)
	}

	index, err := bleve.New(s.path, buildIndexMapping())
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	s.index = index

	if err := s.indexLocked(ctx, recipes); err != nil {
		return err
	}

	s.logger.Info("Rebuilt search index",
		slog.String("path", s.path),
		slog.Int("recipes", len(recipes)))
	return nil
}
