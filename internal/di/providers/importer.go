package providers

import (
	"errors"

	"github.com/samber/do/v2"

	"github.com/irampton/Lembas/internal/config"
	"github.com/irampton/Lembas/internal/importer"
	"github.com/irampton/Lembas/internal/logger"
)

// ImporterHandle wraps the configured import collaborator.
type ImporterHandle struct {
	importer.Importer
	llm *importer.LLM
}

// Shutdown implements do.Shutdownable.
func (h *ImporterHandle) Shutdown() error {
	if h.llm == nil {
		return nil
	}
	return h.llm.Close()
}

// ProvideImporter provides the LLM importer, or a disabled one when no
// endpoint is configured.
func ProvideImporter(i do.Injector) (*ImporterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	llm, err := importer.NewLLM(importer.LLMConfig{
		Endpoint:      cfg.Import.Endpoint,
		Model:         cfg.Import.Model,
		APIKey:        cfg.Import.APIKey,
		Timeout:       cfg.Import.Timeout,
		RatePerMinute: cfg.Import.RatePerMinute,
	}, log.Logger)
	if errors.Is(err, importer.ErrDisabled) {
		log.Info("Recipe import disabled, no LLM endpoint configured")
		return &ImporterHandle{Importer: importer.Disabled{}}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info("Recipe import enabled",
		"endpoint", cfg.Import.Endpoint,
		"model", cfg.Import.Model)
	return &ImporterHandle{Importer: llm, llm: llm}, nil
}
