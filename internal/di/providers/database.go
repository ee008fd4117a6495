package providers

import (
	"fmt"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/logger"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/store/sqlite"
)

// StoreHandle wraps the record store with shutdown capability.
type StoreHandle struct {
	store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the configured record store engine.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	var (
		st  store.Store
		err error
	)
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		st, err = sqlite.Open(cfg.Database.Path, log.Logger)
	case config.DriverBadger:
		st, err = store.OpenBadger(cfg.Database.Path, log.Logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized",
		"driver", cfg.Database.Driver,
		"path", cfg.Database.Path)

	return &StoreHandle{Store: st}, nil
}
