// Package providers contains dependency injection providers for the Lembas server.
package providers

import (
	"log/slog"
	"os"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/logger"
)

// Args are the command-line arguments handed to the config loader.
type Args []string

// ProvideArgs provides the process arguments.
func ProvideArgs(i do.Injector) (Args, error) {
	return Args(os.Args[1:]), nil
}

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	args := do.MustInvoke[Args](i)
	return config.LoadConfig(args)
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting Lembas server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.App.DataPath,
		"db_driver", cfg.Database.Driver,
	)

	return log, nil
}

// ProvideSlogLogger provides access to the underlying slog.Logger for packages that need it.
func ProvideSlogLogger(i do.Injector) (*slog.Logger, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return log.Logger, nil
}
