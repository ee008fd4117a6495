package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/irampton/Lembas/internal/domain"
)

const msgImportFailed = "Unable to import recipe right now."

func (s *Server) registerImportRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "importRecipe",
		Method:      http.MethodPost,
		Path:        "/api/v1/import",
		Summary:     "Import recipe",
		Description: "Extracts a draft recipe from free text or HTML. The draft is not saved.",
		Tags:        []string{"Import"},
		Middlewares: huma.Middlewares{s.importRateLimit},
	}, s.handleImportRecipe)

	huma.Register(s.api, huma.Operation{
		OperationID: "importRecipeLegacy",
		Method:      http.MethodPost,
		Path:        "/api/llm-import",
		Summary:     "Import recipe (legacy path)",
		Description: "Same as POST /api/v1/import.",
		Tags:        []string{"Import"},
		Deprecated:  true,
		Middlewares: huma.Middlewares{s.importRateLimit},
	}, s.handleImportRecipe)
}

// ImportRequest contains the text to extract a recipe from.
type ImportRequest struct {
	Text string `json:"text,omitempty" doc:"Recipe text, markdown or HTML" validate:"max=100000"`
}

// ImportInput wraps the import request for Huma.
type ImportInput struct {
	Body ImportRequest
}

// ImportOutput contains the extracted draft.
type ImportOutput struct {
	Body domain.Draft
}

func (s *Server) handleImportRecipe(ctx context.Context, input *ImportInput) (*ImportOutput, error) {
	if err := s.validator.Validate(input.Body); err != nil {
		return nil, s.toAPIError(err, msgImportFailed)
	}

	draft, err := s.recipes.Import(ctx, input.Body.Text)
	if err != nil {
		return nil, s.toAPIError(err, msgImportFailed)
	}
	return &ImportOutput{Body: *draft}, nil
}
