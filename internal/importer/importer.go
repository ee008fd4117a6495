// Package importer turns free text into draft recipes.
//
// The hub treats an Importer as an opaque collaborator: text goes in, a
// draft or an error comes out.
package importer

import (
	"context"

	"github.com/irampton/Lembas/internal/domain"
	domainerrors "github.com/irampton/Lembas/internal/errors"
)

// Importer extracts a recipe draft from free text or HTML.
type Importer interface {
	Import(ctx context.Context, text string) (*domain.Draft, error)
}

// ErrDisabled is returned when no import endpoint is configured.
var ErrDisabled = domainerrors.Unavailable("Recipe import is not configured.")

// Disabled is the Importer used when no endpoint is configured.
type Disabled struct{}

// Import always fails with ErrDisabled.
func (Disabled) Import(context.Context, string) (*domain.Draft, error) {
	return nil, ErrDisabled
}

// Func adapts a function to the Importer interface.
type Func func(ctx context.Context, text string) (*domain.Draft, error)

// Import calls f.
func (f Func) Import(ctx context.Context, text string) (*domain.Draft, error) {
	return f(ctx, text)
}
