// Command dbinspect prints a summary of a Lembas record store without
// modifying it. Both engines are opened read-only.
package main

import (
	"cmp"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"

	"github.com/dgraph-io/badger/v4"
	_ "modernc.org/sqlite"

	"github.com/irampton/Lembas/internal/store"
)

func main() {
	driver := flag.String("driver", "sqlite", "Record store engine (sqlite, badger)")
	dbPath := flag.String("db", os.Getenv("DB_PATH"), "Database file (sqlite) or directory (badger)")
	flag.Parse()

	if *dbPath == "" {
		*dbPath = os.ExpandEnv("$HOME/Lembas/data/lembas.db")
		if *driver == "badger" {
			*dbPath = os.ExpandEnv("$HOME/Lembas/data/badger")
		}
	}

	var (
		rows []store.Row
		err  error
	)
	switch *driver {
	case "sqlite":
		rows, err = readSQLite(*dbPath)
	case "badger":
		rows, err = readBadger(*dbPath)
	default:
		log.Fatalf("Unknown driver %q", *driver)
	}
	if err != nil {
		log.Fatalf("Failed to read database: %v", err)
	}

	report(rows)
}

func readSQLite(path string) ([]store.Row, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	result, err := db.Query(`SELECT id, title, description, author, createdAt, tags,
		ingredients, steps, ownerId, isPublic, notes FROM recipes`)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var rows []store.Row
	for result.Next() {
		var (
			r                          store.Row
			desc, author, owner, notes sql.NullString
			tags, ingredients, steps   sql.NullString
			isPublic                   sql.NullInt64
		)
		if err := result.Scan(&r.ID, &r.Title, &desc, &author, &r.CreatedAt,
			&tags, &ingredients, &steps, &owner, &isPublic, &notes); err != nil {
			return nil, err
		}
		r.Description, r.Author, r.OwnerID, r.Notes = desc.String, author.String, owner.String, notes.String
		r.Tags, r.Ingredients, r.Steps = tags.String, ingredients.String, steps.String
		r.IsPublic = int(isPublic.Int64)
		rows = append(rows, r)
	}
	return rows, result.Err()
}

func readBadger(dir string) ([]store.Row, error) {
	opts := badger.DefaultOptions(dir).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	prefix := []byte("recipe:")
	var rows []store.Row
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r store.Row
				if err := json.Unmarshal(val, &r); err != nil {
					return err
				}
				rows = append(rows, r)
				return nil
			})
			if err != nil {
				log.Printf("Error reading %s: %v", item.Key(), err)
			}
		}
		return nil
	})
	return rows, err
}

func report(rows []store.Row) {
	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	var malformed, public, noIngredients, noSteps int
	tagCounts := make(map[string]int)

	for _, r := range rows {
		if r.IsPublic != 0 {
			public++
		}

		var tags []string
		var ingredients, steps []json.RawMessage
		bad := false
		for _, col := range []struct {
			name, raw string
			dst       any
		}{
			{"tags", r.Tags, &tags},
			{"ingredients", r.Ingredients, &ingredients},
			{"steps", r.Steps, &steps},
		} {
			if col.raw == "" {
				continue
			}
			if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
				bad = true
				fmt.Printf("Malformed %s: %s (%s)\n", col.name, r.Title, r.ID)
			}
		}
		if bad {
			malformed++
		}
		if len(ingredients) == 0 {
			noIngredients++
		}
		if len(steps) == 0 {
			noSteps++
		}
		for _, t := range tags {
			tagCounts[t]++
		}
	}

	fmt.Println()
	fmt.Println("=== Summary ===")
	fmt.Printf("Total recipes: %d\n", len(rows))
	fmt.Printf("Public recipes: %d\n", public)
	fmt.Printf("Without ingredients: %d\n", noIngredients)
	fmt.Printf("Without steps: %d\n", noSteps)
	fmt.Printf("Rows with malformed collections: %d\n", malformed)

	type tagCount struct {
		tag   string
		count int
	}
	top := make([]tagCount, 0, len(tagCounts))
	for t, c := range tagCounts {
		top = append(top, tagCount{t, c})
	}
	slices.SortFunc(top, func(a, b tagCount) int {
		return cmp.Or(cmp.Compare(b.count, a.count), cmp.Compare(a.tag, b.tag))
	})
	if len(top) > 0 {
		fmt.Println()
		fmt.Println("Top tags:")
		for _, tc := range top[:min(len(top), 10)] {
			fmt.Printf("  %-20s %d\n", tc.tag, tc.count)
		}
	}
}
