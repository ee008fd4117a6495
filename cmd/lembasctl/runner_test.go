package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irampton/Lembas/internal/api"
	"github.com/irampton/Lembas/internal/domain"
	"github.com/irampton/Lembas/internal/hub"
	"github.com/irampton/Lembas/internal/importer"
	"github.com/irampton/Lembas/internal/logger"
	"github.com/irampton/Lembas/internal/search"
	"github.com/irampton/Lembas/internal/store/sqlite"
)

const cakeYAML = `
title: Seed Cake
tags: [baking]
ingredients:
  - name: flour
    quantity: 2
    unit: cup
steps:
  - Mix
  - ""
  - Bake
`

// syncBuffer is a bytes.Buffer safe for a writer and a polling reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startServer(t *testing.T) (string, *hub.Hub) {
	t.Helper()

	dir := t.TempDir()
	st, err := sqlite.Open(filepath.Join(dir, "lembas.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	index, err := search.Open(search.Options{DataPath: filepath.Join(dir, "search")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })

	slogger := logger.Discard().Logger
	h := hub.New(st, slogger)
	h.SetIndexer(index)
	h.SetSearcher(index)
	h.SetImporter(importer.Func(func(_ context.Context, text string) (*domain.Draft, error) {
		return &domain.Draft{Title: strings.TrimSpace(text), Steps: []string{"Eat"}}, nil
	}))

	s := api.NewServer(h, st, api.Options{
		StaticDir:           filepath.Join(dir, "dist"),
		ImportRatePerMinute: 100,
		Index:               index,
	}, slogger)
	t.Cleanup(s.Close)

	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv.URL, h
}

func runCLI(ctx context.Context, serverURL, stdin string, out io.Writer, args ...string) error {
	r := NewRunner(RunnerOpts{
		Logger: log.New(io.Discard),
		Output: out,
		Input:  strings.NewReader(stdin),
	})
	return newApp(r).Run(ctx, append([]string{"lembasctl", "--server", serverURL}, args...))
}

func run(t *testing.T, serverURL, stdin string, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err := runCLI(ctx, serverURL, stdin, &out, args...)
	return out.String(), err
}

func TestCLI_SaveListShowDelete(t *testing.T) {
	for _, proto := range []string{"json", "cbor"} {
		t.Run(proto, func(t *testing.T) {
			url, _ := startServer(t)

			out, err := run(t, url, cakeYAML, "--protocol", proto, "save", "--file=-")
			require.NoError(t, err)
			assert.Contains(t, out, "Saved Seed Cake (")

			out, err = run(t, url, "", "--protocol", proto, "list", "--json")
			require.NoError(t, err)
			var listing []domain.Recipe
			require.NoError(t, json.Unmarshal([]byte(out), &listing))
			require.Len(t, listing, 1)
			recipe := listing[0]
			assert.Equal(t, []string{"Mix", "Bake"}, recipe.Steps)

			out, err = run(t, url, "", "--protocol", proto, "list")
			require.NoError(t, err)
			assert.Contains(t, out, "TITLE")
			assert.Contains(t, out, recipe.ID)

			out, err = run(t, url, "", "--protocol", proto, "show", recipe.ID)
			require.NoError(t, err)
			assert.Contains(t, out, "Seed Cake")
			assert.Contains(t, out, "  - 2 cup flour")
			assert.Contains(t, out, "  2. Bake")

			out, err = run(t, url, "", "--protocol", proto, "delete", recipe.ID)
			require.NoError(t, err)
			assert.Equal(t, "Deleted "+recipe.ID+"\n", out)

			out, err = run(t, url, "", "--protocol", proto, "list")
			require.NoError(t, err)
			assert.Equal(t, "No recipes.\n", out)
		})
	}
}

func TestCLI_Errors(t *testing.T) {
	url, _ := startServer(t)

	_, err := run(t, url, "", "delete", "missing")
	require.Error(t, err)
	assert.Equal(t, "Recipe not found.", err.Error())

	_, err = run(t, url, "", "show", "missing")
	assert.EqualError(t, err, "recipe missing not found")

	_, err = run(t, url, "", "show")
	assert.EqualError(t, err, "a recipe id is required")

	_, err = run(t, url, "", "--protocol", "xml", "list")
	assert.ErrorContains(t, err, `unknown protocol "xml"`)

	_, err = run(t, url, "title: [", "save", "--file=-")
	assert.ErrorContains(t, err, "parse")
}

func TestCLI_Search(t *testing.T) {
	url, h := startServer(t)
	ctx := context.Background()

	for _, title := range []string{"Seed Cake", "Honey Cakes", "Rabbit Stew"} {
		_, err := h.Save(ctx, map[string]any{"title": title})
		require.NoError(t, err)
	}

	out, err := run(t, url, "", "search", "stew")
	require.NoError(t, err)
	assert.Contains(t, out, "Rabbit Stew")
	assert.NotContains(t, out, "Seed Cake")

	out, err = run(t, url, "", "search", "lembas")
	require.NoError(t, err)
	assert.Equal(t, "No recipes.\n", out)

	_, err = run(t, url, "", "search", "  ")
	assert.EqualError(t, err, "a search query is required")
}

func TestCLI_Import(t *testing.T) {
	url, h := startServer(t)

	out, err := run(t, url, "Toast\n", "import", "--json")
	require.NoError(t, err)
	var draft domain.Draft
	require.NoError(t, json.Unmarshal([]byte(out), &draft))
	assert.Equal(t, "Toast", draft.Title)

	listing, err := h.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, listing, "a draft is not saved")

	out, err = run(t, url, "Toast\n", "import")
	require.NoError(t, err)
	assert.Contains(t, out, "  1. Eat")

	out, err = run(t, url, "Toast\n", "import", "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved Toast (")

	listing, err = h.List(context.Background())
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, []string{"Eat"}, listing[0].Steps)
}

func TestCLI_Watch(t *testing.T) {
	url, h := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- runCLI(ctx, url, "", out, "watch") }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), " 0 recipes")
	}, 3*time.Second, 10*time.Millisecond)

	_, err := h.Save(context.Background(), map[string]any{"title": "Lembas"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), " 1 recipes")
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop")
	}
}
