// Package di provides dependency injection configuration for the Lembas server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/di/providers"
	"github.com/irampton/Lembas/internal/logger"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideArgs)
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideSlogLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideSearchIndex)

	// Collaborators
	do.Provide(injector, providers.ProvideImporter)

	// Realtime
	do.Provide(injector, providers.ProvideHub)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and starts the HTTP server.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)

	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.SearchIndexHandle](injector); err != nil {
		return err
	}

	// The index must match the store before the first search.
	if err := providers.ReindexIfNeeded(injector); err != nil {
		return err
	}

	if _, err := do.Invoke[*providers.ImporterHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HubHandle](injector); err != nil {
		return err
	}
	if _, err := do.Invoke[*providers.HTTPServerHandle](injector); err != nil {
		return err
	}

	return nil
}
