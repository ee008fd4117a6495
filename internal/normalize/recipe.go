// Package normalize coerces untrusted recipe input into canonical records.
//
// Normalization never fails. Malformed values are coerced to their empty
// form instead of being rejected; the only precondition, a non-blank title,
// is checked by callers through HasTitle.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/id"
)

// Normalizer holds the clock and id source used while normalizing.
type Normalizer struct {
	Now   func() time.Time
	NewID func() string
}

// New returns a Normalizer using the wall clock and random UUIDs.
func New() *Normalizer {
	return &Normalizer{Now: time.Now, NewID: id.NewRecordID}
}

var defaultNormalizer = New()

// Recipe normalizes raw input with the default clock and id source.
func Recipe(raw map[string]any) domain.Recipe {
	return defaultNormalizer.Recipe(raw)
}

// Draft normalizes an import draft with the default id source.
func Draft(raw map[string]any) domain.Draft {
	return defaultNormalizer.Draft(raw)
}

// HasTitle reports whether raw carries a non-blank title.
func HasTitle(raw map[string]any) bool {
	title, _ := scalarString(raw["title"])
	return strings.TrimSpace(title) != ""
}

// Recipe applies the normalization rules in order: identity, title,
// creation time, tags, ingredients, steps, owner, visibility, notes.
func (n *Normalizer) Recipe(raw map[string]any) domain.Recipe {
	if raw == nil {
		raw = map[string]any{}
	}

	r := domain.Recipe{}

	if v, ok := scalarString(raw["id"]); ok && v != "" {
		r.ID = v
	} else {
		r.ID = n.NewID()
	}

	r.Title = trimmed(raw["title"])
	if r.Title == "" {
		r.Title = domain.DefaultTitle
	}
	r.Description = trimmed(raw["description"])
	r.Author = trimmed(raw["author"])

	if v, ok := raw["createdAt"].(string); ok && v != "" {
		r.CreatedAt = v
	} else if t, ok := raw["createdAt"].(time.Time); ok {
		r.CreatedAt = t.UTC().Format(domain.TimestampLayout)
	} else {
		r.CreatedAt = n.Now().UTC().Format(domain.TimestampLayout)
	}

	r.Tags = stringList(raw["tags"])
	r.Ingredients = n.ingredients(raw["ingredients"])
	r.Steps = stringList(raw["steps"])

	// Older clients send ownerID.
	r.OwnerID = trimmed(raw["ownerId"])
	if r.OwnerID == "" {
		r.OwnerID = trimmed(raw["ownerID"])
	}

	r.IsPublic = Truthy(raw["isPublic"])
	r.Notes = trimmed(raw["notes"])

	return r
}

// Draft applies the recipe rules that make sense for an unsaved import result.
func (n *Normalizer) Draft(raw map[string]any) domain.Draft {
	if raw == nil {
		raw = map[string]any{}
	}
	return domain.Draft{
		Title:       trimmed(raw["title"]),
		Description: trimmed(raw["description"]),
		Author:      trimmed(raw["author"]),
		Tags:        stringList(raw["tags"]),
		Ingredients: n.ingredients(raw["ingredients"]),
		Steps:       stringList(raw["steps"]),
		Notes:       trimmed(raw["notes"]),
	}
}

func (n *Normalizer) ingredients(v any) []domain.Ingredient {
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []map[string]any:
		items = make([]any, len(l))
		for i, m := range l {
			items[i] = m
		}
	}
	out := make([]domain.Ingredient, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			// Non-object entries carry nothing usable.
			obj = map[string]any{}
		}

		ing := domain.Ingredient{}
		if v, ok := scalarString(obj["id"]); ok && v != "" {
			ing.ID = v
		} else {
			ing.ID = n.NewID()
		}
		ing.Name = trimmed(obj["name"])
		ing.Quantity = Quantity(obj["quantity"])
		ing.Unit, _ = scalarString(obj["unit"])
		out = append(out, ing)
	}
	return out
}

// Quantity canonicalizes a free-form quantity so it survives a JSON round trip
// unchanged. Absent or null becomes "".
func Quantity(v any) any {
	if v == nil {
		return ""
	}
	switch q := v.(type) {
	case string:
		return q
	case float64:
		if math.IsNaN(q) || math.IsInf(q, 0) {
			return ""
		}
		return q
	case bool:
		return q
	}
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return ""
	}
	return out
}

// Truthy reports whether v is truthy under the rules clients use:
// false, zero, "", and null are false, anything else is true.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0 && !math.IsNaN(b)
	case float32:
		return b != 0 && !math.IsNaN(float64(b))
	case int:
		return b != 0
	case int64:
		return b != 0
	case uint64:
		return b != 0
	case json.Number:
		f, err := b.Float64()
		return err != nil || f != 0
	default:
		return true
	}
}

func trimmed(v any) string {
	s, _ := scalarString(v)
	return strings.TrimSpace(s)
}

// stringList trims each string element and drops empty or non-string ones.
func stringList(v any) []string {
	var items []any
	switch l := v.(type) {
	case []any:
		items = l
	case []string:
		items = make([]any, len(l))
		for i, s := range l {
			items[i] = s
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// scalarString renders string and numeric scalars as strings.
func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int:
		return strconv.Itoa(s), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case uint64:
		return strconv.FormatUint(s, 10), true
	case json.Number:
		return s.String(), true
	default:
		return "", false
	}
}
