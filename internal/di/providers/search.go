package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/logger"
	"github.com/irampton/Lembas/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
// Index is nil when search is disabled.
type SearchIndexHandle struct {
	*search.Index
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	if h.Index == nil {
		return nil
	}
	return h.Close()
}

// ProvideSearchIndex provides the Bleve search index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if !cfg.Search.Enabled {
		log.Info("Search index disabled by configuration")
		return &SearchIndexHandle{}, nil
	}

	index, err := search.Open(search.Options{
		DataPath: cfg.Search.Path,
		Logger:   log.Logger,
	})
	if err != nil {
		return nil, err
	}

	docCount, _ := index.DocCount()
	log.Info("Search index initialized", "documents", docCount)

	return &SearchIndexHandle{Index: index}, nil
}

// ReindexIfNeeded rebuilds the index when it disagrees with the store, which
// happens after a mapping upgrade or when the index directory was removed.
// Runs before the server accepts traffic.
func ReindexIfNeeded(i do.Injector) error {
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	if indexHandle.Index == nil {
		return nil
	}
	storeHandle := do.MustInvoke[*StoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	ctx := context.Background()
	recipes, err := storeHandle.List(ctx)
	if err != nil {
		return err
	}

	docCount, err := indexHandle.DocCount()
	if err == nil && docCount == uint64(len(recipes)) {
		return nil
	}

	log.Info("Search index out of date, reindexing",
		"documents", docCount,
		"recipe_count", len(recipes))

	if err := indexHandle.Reindex(ctx, recipes); err != nil {
		return err
	}

	count, _ := indexHandle.DocCount()
	log.Info("Search reindex completed", "documents", count)
	return nil
}
