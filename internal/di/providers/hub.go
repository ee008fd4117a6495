package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/hub"
	"github.com/irampton/Lembas/internal/logger"
)

// HubHandle wraps the synchronization hub with shutdown capability.
type HubHandle struct {
	*hub.Hub
}

// Shutdown implements do.Shutdownable. Open sessions are closed so clients
// reconnect to the next instance.
func (h *HubHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Hub.Shutdown(ctx)
}

// ProvideHub wires the hub to the store, the search index and the importer.
func ProvideHub(i do.Injector) (*HubHandle, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	importerHandle := do.MustInvoke[*ImporterHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	h := hub.New(storeHandle.Store, log.WithComponent("hub").Logger)
	if indexHandle.Index != nil {
		h.SetIndexer(indexHandle.Index)
		h.SetSearcher(indexHandle.Index)
	}
	h.SetImporter(importerHandle.Importer)

	return &HubHandle{Hub: h}, nil
}
