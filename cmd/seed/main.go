// Package main provides a tool to seed the database with sample recipes.
//
// Recipes are generated from a fixed pool of dishes, ingredients and steps,
// normalized exactly like a client save, and written straight to the store.
// Run it while the server is stopped; connected clients will not be notified.
//
// Usage:
//
//	DB_PATH=~/Lembas/data/lembas.db go run ./cmd/seed
//	go run ./cmd/seed --driver badger --db ~/Lembas/data/badger --count 50
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"time"

	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/normalize"
	"github.com/irampton/Lembas/internal/store"
	"github.com/irampton/Lembas/internal/store/sqlite"
)

var (
	driver = flag.String("driver", "sqlite", "Record store engine (sqlite, badger)")
	dbPath = flag.String("db", os.Getenv("DB_PATH"), "Database file (sqlite) or directory (badger)")
	count  = flag.Int("count", 20, "Number of recipes to create")
	seed   = flag.Uint64("seed", 0, "Random seed (0 uses the current time)")
)

var dishes = []string{
	"Lembas", "Seed Cake", "Mushroom Soup", "Rabbit Stew", "Honey Cakes",
	"Cram", "Apple Tart", "Blackberry Pie", "Potato Hash", "Barley Bread",
	"Roast Chicken", "Cheese Scones", "Leek Pie", "Plum Pudding", "Oatcakes",
}

var adjectives = []string{"Shire", "Elvish", "Rustic", "Second Breakfast", "Hearty", "Quick"}

var pantry = []struct {
	name string
	unit string
}{
	{"flour", "cup"}, {"butter", "tbsp"}, {"honey", "tbsp"}, {"eggs", ""},
	{"milk", "cup"}, {"salt", "tsp"}, {"mushrooms", "g"}, {"potatoes", ""},
	{"carrots", ""}, {"thyme", "sprig"}, {"oats", "cup"}, {"apples", ""},
	{"sugar", "cup"}, {"cream", "ml"}, {"leeks", ""},
}

var quantities = []any{1, 2, 3, 0.5, "1/2", "1/4", "a pinch", ""}

var methods = []string{
	"Preheat the oven.",
	"Mix the dry ingredients in a large bowl.",
	"Rub in the butter until the mixture looks like breadcrumbs.",
	"Whisk the wet ingredients together.",
	"Fold everything together without overworking.",
	"Simmer gently for twenty minutes.",
	"Season to taste.",
	"Bake until golden.",
	"Rest for ten minutes before serving.",
	"Wrap in leaves for the journey.",
}

var tagPool = []string{"baking", "breakfast", "dinner", "travel", "vegetarian", "soup", "dessert", "quick"}

var authors = []string{"Bilbo", "Samwise", "Rosie", "Galadriel", "Beorn", ""}

func main() {
	flag.Parse()

	if *dbPath == "" {
		*dbPath = os.ExpandEnv("$HOME/Lembas/data/lembas.db")
		if *driver == "badger" {
			*dbPath = os.ExpandEnv("$HOME/Lembas/data/badger")
		}
	}
	if *seed == 0 {
		*seed = uint64(time.Now().UnixNano())
	}

	fmt.Printf("Opening %s database at: %s\n", *driver, *dbPath)

	s, err := openStore(*driver, *dbPath)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	ctx := context.Background()

	existing, err := s.List(ctx)
	if err != nil {
		log.Fatalf("Failed to list recipes: %v", err)
	}
	fmt.Printf("Found %d existing recipes\n", len(existing))

	rng := rand.New(rand.NewPCG(*seed, *seed>>1))
	now := time.Now()

	created := 0
	for i := range *count {
		raw := sampleRecipe(rng, now.Add(-time.Duration(i)*time.Hour))
		saved, err := s.Upsert(ctx, normalize.Recipe(raw))
		if err != nil {
			log.Printf("Failed to save recipe %q: %v", raw["title"], err)
			continue
		}
		created++
		fmt.Printf("  Created %s (%d ingredients, %d steps)\n",
			saved.Title, len(saved.Ingredients), len(saved.Steps))
	}

	fmt.Printf("\nDone! Created %d recipes (seed %d)\n", created, *seed)
}

func openStore(driver, path string) (store.Store, error) {
	switch driver {
	case "sqlite":
		return sqlite.Open(path, nil)
	case "badger":
		return store.OpenBadger(path, nil)
	default:
		return nil, fmt.Errorf("unknown driver %q", driver)
	}
}

// sampleRecipe builds a raw recipe the way a client would send it, blank
// entries included, so normalization is exercised too.
func sampleRecipe(rng *rand.Rand, createdAt time.Time) map[string]any {
	title := adjectives[rng.IntN(len(adjectives))] + " " + dishes[rng.IntN(len(dishes))]

	ingredients := make([]any, 0, 6)
	for _, idx := range rng.Perm(len(pantry))[:3+rng.IntN(4)] {
		p := pantry[idx]
		ingredients = append(ingredients, map[string]any{
			"name":     p.name,
			"quantity": quantities[rng.IntN(len(quantities))],
			"unit":     p.unit,
		})
	}

	steps := make([]any, 0, 6)
	for _, idx := range rng.Perm(len(methods))[:2+rng.IntN(4)] {
		steps = append(steps, methods[idx])
	}
	if rng.IntN(4) == 0 {
		steps = append(steps, "   ")
	}

	tags := make([]any, 0, 3)
	for _, idx := range rng.Perm(len(tagPool))[:rng.IntN(4)] {
		tags = append(tags, tagPool[idx])
	}

	return map[string]any{
		"title":       title,
		"description": fmt.Sprintf("A %s favourite.", tagPool[rng.IntN(len(tagPool))]),
		"author":      authors[rng.IntN(len(authors))],
		"createdAt":   createdAt.UTC().Format(domain.TimestampLayout),
		"tags":        tags,
		"ingredients": ingredients,
		"steps":       steps,
		"isPublic":    rng.IntN(2) == 1,
	}
}
