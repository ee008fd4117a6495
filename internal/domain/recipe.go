package domain

// DefaultTitle replaces a blank title during normalization.
const DefaultTitle = "Untitled Recipe"

// TimestampLayout is the ISO-8601 UTC layout used for CreatedAt, millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Recipe is the canonical, normalized recipe record.
// Recipes are replaced as a whole on every save; there is no partial update.
type Recipe struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	CreatedAt   string       `json:"createdAt"` // ISO-8601, kept verbatim when supplied by a client
	Tags        []string     `json:"tags"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	OwnerID     string       `json:"ownerId"` // opaque, never interpreted by the server
	IsPublic    bool         `json:"isPublic"`
	Notes       string       `json:"notes"`
}

// Ingredient is a single line of a recipe's ingredient list.
type Ingredient struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Quantity is a free-form scalar: "1/2", 2, 0.25 and "" are all valid.
	Quantity any    `json:"quantity"`
	Unit     string `json:"unit"`
}

// EnsureCollections replaces nil collections with empty ones so they encode as [].
func (r *Recipe) EnsureCollections() {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Ingredients == nil {
		r.Ingredients = []Ingredient{}
	}
	if r.Steps == nil {
		r.Steps = []string{}
	}
}

// FindRecipe returns the recipe with the given id from a listing.
func FindRecipe(recipes []Recipe, id string) (Recipe, bool) {
	for _, r := range recipes {
		if r.ID == id {
			return r, true
		}
	}
	return Recipe{}, false
}

// Draft is the result of a free-text import. It is shaped like a recipe but
// has no identity until the user saves it.
type Draft struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Author      string       `json:"author"`
	Tags        []string     `json:"tags"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []string     `json:"steps"`
	Notes       string       `json:"notes"`
}
