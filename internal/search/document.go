// Package search provides full-text search over recipes using Bleve.
// The index is a secondary structure: the record store stays authoritative
// and the index can always be rebuilt from it.
package search

import (
	"strings"
	"time"

	"github.com/irampton/Lembas/internal/domain"
)

// RecipeDocument is the flattened form of a recipe stored in the index.
// Ingredient names are joined so a search for "basil" finds every recipe
// that uses it.
type RecipeDocument struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Ingredients string   `json:"ingredients,omitempty"`
	Steps       string   `json:"steps,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	Public      bool     `json:"public"`
	CreatedAt   int64    `json:"created_at,omitempty"` // Unix millis
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *RecipeDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":     d.ID,
		"title":  d.Title,
		"public": d.Public,
	}

	if d.Description != "" {
		m["description"] = d.Description
	}
	if d.Author != "" {
		m["author"] = d.Author
	}
	if len(d.Tags) > 0 {
		m["tags"] = d.Tags
	}
	if d.Ingredients != "" {
		m["ingredients"] = d.Ingredients
	}
	if d.Steps != "" {
		m["steps"] = d.Steps
	}
	if d.Notes != "" {
		m["notes"] = d.Notes
	}
	if d.OwnerID != "" {
		m["owner_id"] = d.OwnerID
	}
	if d.CreatedAt > 0 {
		m["created_at"] = d.CreatedAt
	}

	return m
}

// RecipeToDocument flattens a recipe for indexing. Tags are lowercased so
// tag lookups are case-insensitive.
func RecipeToDocument(r *domain.Recipe) *RecipeDocument {
	doc := &RecipeDocument{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Author:      r.Author,
		Steps:       strings.Join(r.Steps, "\n"),
		Notes:       r.Notes,
		OwnerID:     r.OwnerID,
		Public:      r.IsPublic,
	}

	for _, tag := range r.Tags {
		doc.Tags = append(doc.Tags, strings.ToLower(tag))
	}

	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		if ing.Name != "" {
			names = append(names, ing.Name)
		}
	}
	doc.Ingredients = strings.Join(names, "\n")

	if t, err := time.Parse(time.RFC3339, r.CreatedAt); err == nil {
		doc.CreatedAt = t.UnixMilli()
	}

	return doc
}
