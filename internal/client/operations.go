package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/wire"
)

// List requests the current listing and installs it as the view.
func (s *Session) List(ctx context.Context) ([]domain.Recipe, error) {
	s.update(func(v *View) { v.Loading = true })
	return s.list(ctx)
}

// Refresh re-lists unless a list request is already outstanding.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.view.Loading {
		s.mu.Unlock()
		return nil
	}
	s.view.Loading = true
	s.publishLocked()
	s.mu.Unlock()

	_, err := s.list(ctx)
	return err
}

func (s *Session) list(ctx context.Context) ([]domain.Recipe, error) {
	reply, err := s.request(ctx, wire.EventRecipesList, nil)
	if err != nil {
		s.update(func(v *View) { v.Loading = false })
		return nil, err
	}
	if !reply.Success {
		msg := replyMessage(reply, msgLoadFailed)
		s.update(func(v *View) {
			v.Loading = false
			v.Error = msg
		})
		return nil, &RequestError{Event: wire.EventRecipesList, Message: msg}
	}

	var listing []domain.Recipe
	if err := wire.Convert(reply.Data, &listing); err != nil {
		s.update(func(v *View) { v.Loading = false })
		return nil, err
	}
	listing = nonNil(listing)

	s.update(func(v *View) {
		v.Recipes = listing
		v.Ready = true
		v.Loading = false
		v.Error = ""
	})
	return listing, nil
}

// Save sends a raw recipe for upsert and returns the stored record. The new
// listing is already in the view when Save returns.
func (s *Session) Save(ctx context.Context, raw map[string]any) (*domain.Recipe, error) {
	reply, err := s.request(ctx, wire.EventRecipeSave, raw)
	if err != nil {
		return nil, err
	}
	if !reply.Success {
		msg := replyMessage(reply, msgSaveFailed)
		s.update(func(v *View) { v.Error = msg })
		return nil, &RequestError{Event: wire.EventRecipeSave, Message: msg}
	}

	var saved domain.Recipe
	if err := wire.Convert(reply.Data, &saved); err != nil {
		return nil, err
	}
	s.clearError()
	return &saved, nil
}

// SaveRecipe saves a typed recipe.
func (s *Session) SaveRecipe(ctx context.Context, r domain.Recipe) (*domain.Recipe, error) {
	var raw map[string]any
	if err := wire.Convert(r, &raw); err != nil {
		return nil, err
	}
	return s.Save(ctx, raw)
}

// Delete removes a recipe by id.
func (s *Session) Delete(ctx context.Context, recipeID string) error {
	reply, err := s.request(ctx, wire.EventRecipeDelete, recipeID)
	if err != nil {
		return err
	}
	if !reply.Success {
		msg := replyMessage(reply, msgDeleteFailed)
		s.update(func(v *View) { v.Error = msg })
		return &RequestError{Event: wire.EventRecipeDelete, Message: msg}
	}
	s.clearError()
	return nil
}

func (s *Session) clearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.Error != "" {
		s.view.Error = ""
		s.publishLocked()
	}
}

func replyMessage(reply *wire.Reply, fallback string) string {
	if reply.Error != "" {
		return reply.Error
	}
	return fallback
}

// envelope mirrors the HTTP API response body.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Import asks the server to extract a draft from free text. The draft is
// not saved; hand it to the editor with SetImportedDraft.
func (s *Session) Import(ctx context.Context, text string) (*domain.Draft, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/api/v1/import", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var draft domain.Draft
	if err := s.doHTTP(req, "import", &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// Search runs a full-text query over the HTTP API. A limit of zero uses the
// server default. Results are not merged into the view.
func (s *Session) Search(ctx context.Context, query string, limit int) ([]domain.Recipe, error) {
	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/api/v1/recipes/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var results []domain.Recipe
	if err := s.doHTTP(req, "search", &results); err != nil {
		return nil, err
	}
	return nonNil(results), nil
}

// doHTTP sends req and decodes the envelope's data into out.
func (s *Session) doHTTP(req *http.Request, event string, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s request: %w", event, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("client: decode %s response (status %d): %w", event, resp.StatusCode, err)
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &RequestError{Event: event, Message: msg}
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("client: decode %s data: %w", event, err)
	}
	return nil
}

// SetImportedDraft stores a draft for the editor to pick up.
func (s *Session) SetImportedDraft(d *domain.Draft) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = d
}

// ConsumeImportedDraft returns the stored draft once and clears it.
func (s *Session) ConsumeImportedDraft() *domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.draft
	s.draft = nil
	return d
}

// Reset clears the view and any pending draft. The connection is kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.view = View{Recipes: []domain.Recipe{}}
	s.draft = nil
	s.publishLocked()
}
