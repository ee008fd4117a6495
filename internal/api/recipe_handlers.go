package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/irampton/Lembas/internal/domain"
)

// Fallback messages for failures without a domain error.
const (
	msgLoadFailed   = "Unable to load recipes."
	msgSaveFailed   = "Unable to save recipe."
	msgDeleteFailed = "Unable to delete recipe."
	msgSearchFailed = "Unable to search recipes."
)

func (s *Server) registerRecipeRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listRecipes",
		Method:      http.MethodGet,
		Path:        "/api/v1/recipes",
		Summary:     "List recipes",
		Description: "Returns every recipe ordered by title",
		Tags:        []string{"Recipes"},
	}, s.handleListRecipes)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchRecipes",
		Method:      http.MethodGet,
		Path:        "/api/v1/recipes/search",
		Summary:     "Search recipes",
		Description: "Full-text search over titles, ingredients, tags and steps",
		Tags:        []string{"Recipes"},
	}, s.handleSearchRecipes)

	huma.Register(s.api, huma.Operation{
		OperationID: "getRecipe",
		Method:      http.MethodGet,
		Path:        "/api/v1/recipes/{id}",
		Summary:     "Get recipe",
		Description: "Returns a recipe by ID",
		Tags:        []string{"Recipes"},
	}, s.handleGetRecipe)

	huma.Register(s.api, huma.Operation{
		OperationID: "saveRecipe",
		Method:      http.MethodPost,
		Path:        "/api/v1/recipes",
		Summary:     "Save recipe",
		Description: "Creates or replaces a recipe and pushes the new listing to every connected client",
		Tags:        []string{"Recipes"},
	}, s.handleSaveRecipe)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteRecipe",
		Method:      http.MethodDelete,
		Path:        "/api/v1/recipes/{id}",
		Summary:     "Delete recipe",
		Description: "Deletes a recipe and pushes the new listing to every connected client",
		Tags:        []string{"Recipes"},
	}, s.handleDeleteRecipe)
}

// === DTOs ===

// RecipeIDInput identifies a recipe in the path.
type RecipeIDInput struct {
	ID string `path:"id" doc:"Recipe ID"`
}

// RecipeOutput contains a single recipe.
type RecipeOutput struct {
	Body domain.Recipe
}

// RecipeListOutput contains a listing.
type RecipeListOutput struct {
	Body []domain.Recipe
}

// SaveRecipeInput carries the raw recipe. Missing fields are filled in by the normalizer.
type SaveRecipeInput struct {
	Body map[string]any
}

// DeleteRecipeResponse confirms a deletion.
type DeleteRecipeResponse struct {
	ID string `json:"id" doc:"ID of the deleted recipe"`
}

// DeleteRecipeOutput wraps the deletion confirmation.
type DeleteRecipeOutput struct {
	Body DeleteRecipeResponse
}

// SearchRecipesInput contains search parameters.
type SearchRecipesInput struct {
	Query string `query:"q" doc:"Search text" validate:"required,max=256"`
	Limit int    `query:"limit" doc:"Maximum results (default 20)" validate:"gte=0,lte=100"`
}

// === Handlers ===

func (s *Server) handleListRecipes(ctx context.Context, _ *struct{}) (*RecipeListOutput, error) {
	listing, err := s.recipes.List(ctx)
	if err != nil {
		return nil, s.toAPIError(err, msgLoadFailed)
	}
	return &RecipeListOutput{Body: listing}, nil
}

func (s *Server) handleGetRecipe(ctx context.Context, input *RecipeIDInput) (*RecipeOutput, error) {
	recipe, err := s.recipes.Get(ctx, input.ID)
	if err != nil {
		return nil, s.toAPIError(err, msgLoadFailed)
	}
	return &RecipeOutput{Body: *recipe}, nil
}

func (s *Server) handleSaveRecipe(ctx context.Context, input *SaveRecipeInput) (*RecipeOutput, error) {
	saved, err := s.recipes.Save(ctx, input.Body)
	if err != nil {
		return nil, s.toAPIError(err, msgSaveFailed)
	}
	return &RecipeOutput{Body: *saved}, nil
}

func (s *Server) handleDeleteRecipe(ctx context.Context, input *RecipeIDInput) (*DeleteRecipeOutput, error) {
	if err := s.recipes.Delete(ctx, input.ID); err != nil {
		return nil, s.toAPIError(err, msgDeleteFailed)
	}
	return &DeleteRecipeOutput{Body: DeleteRecipeResponse{ID: input.ID}}, nil
}

func (s *Server) handleSearchRecipes(ctx context.Context, input *SearchRecipesInput) (*RecipeListOutput, error) {
	if err := s.validator.Validate(input); err != nil {
		return nil, s.toAPIError(err, msgSearchFailed)
	}

	results, err := s.recipes.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, s.toAPIError(err, msgSearchFailed)
	}
	return &RecipeListOutput{Body: results}, nil
}
