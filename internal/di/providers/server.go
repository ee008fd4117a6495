package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/api"
	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/logger"
)

// shutdownTimeout bounds each provider's graceful shutdown.
const shutdownTimeout = 30 * time.Second

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	defer h.api.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts it in the background.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	hubHandle := do.MustInvoke[*HubHandle](i)

	opts := api.Options{
		StaticDir:           cfg.Server.StaticDir,
		ImportRatePerMinute: cfg.Import.RatePerMinute,
		ImportTimeout:       cfg.Import.Timeout,
	}
	if indexHandle.Index != nil {
		opts.Index = indexHandle.Index
	}

	handler := api.NewServer(hubHandle.Hub, storeHandle.Store, opts, log.WithComponent("api").Logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Hijacked and streaming connections are ended by the hub, so they do
	// not hold up Server.Shutdown.
	srv.RegisterOnShutdown(func() {
		_ = hubHandle.Shutdown()
	})

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running",
		"addr", srv.Addr,
		"static_dir", cfg.Server.StaticDir,
		"import_enabled", cfg.Import.Enabled(),
		"search_enabled", indexHandle.Index != nil)

	return &HTTPServerHandle{Server: srv, api: handler}, nil
}
