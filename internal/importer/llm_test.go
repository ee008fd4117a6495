package importer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/irampton/Lembas/internal/errors"
	"github.com/irampton/Lembas/internal/logger"
)

// fakeCompletions serves a chat completions endpoint that answers with reply
// and records the last request it saw.
func fakeCompletions(t *testing.T, status int, reply string) (*httptest.Server, *chatRequest) {
	t.Helper()

	var seen chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&seen))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func newTestLLM(t *testing.T, endpoint string, rate int) *LLM {
	t.Helper()
	l, err := NewLLM(LLMConfig{
		Endpoint:      endpoint,
		APIKey:        "secret",
		RatePerMinute: rate,
	}, logger.Discard().Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestNewLLM_DisabledWithoutEndpoint(t *testing.T) {
	_, err := NewLLM(LLMConfig{Endpoint: "  "}, nil)
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestNewLLM_EndpointAndDefaults(t *testing.T) {
	l, err := NewLLM(LLMConfig{Endpoint: "https://llm.local/v1/"}, nil)
	require.NoError(t, err)
	defer l.Close()
	assert.Equal(t, "https://llm.local/v1/chat/completions", l.endpoint)
	assert.Equal(t, DefaultModel, l.model)

	l2, err := NewLLM(LLMConfig{Endpoint: "https://llm.local/v1/chat/completions", Model: "llama3"}, nil)
	require.NoError(t, err)
	defer l2.Close()
	assert.Equal(t, "https://llm.local/v1/chat/completions", l2.endpoint)
	assert.Equal(t, "llama3", l2.model)
}

func TestImport_NormalizesModelReply(t *testing.T) {
	reply := "```json\n" + `{
		"title": "  Pancakes ",
		"tags": ["breakfast", " ", 3],
		"ingredients": [{"name": " Flour ", "quantity": 2, "unit": "cups"}, "junk"],
		"steps": ["Mix", "", "Fry"]
	}` + "\n```"
	srv, seen := fakeCompletions(t, http.StatusOK, reply)
	l := newTestLLM(t, srv.URL+"/v1", 5)

	draft, err := l.Import(context.Background(), "<p>Pancakes</p><ul><li>2 cups flour</li></ul>")
	require.NoError(t, err)

	assert.Equal(t, "Pancakes", draft.Title)
	assert.Equal(t, []string{"breakfast"}, draft.Tags)
	assert.Equal(t, []string{"Mix", "Fry"}, draft.Steps)
	require.Len(t, draft.Ingredients, 2)
	assert.Equal(t, "Flour", draft.Ingredients[0].Name)
	assert.Equal(t, float64(2), draft.Ingredients[0].Quantity)
	assert.Equal(t, "", draft.Ingredients[1].Name, "non-object entries become empty ingredients")
	assert.Equal(t, "", draft.Description)

	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, DefaultModel, seen.Model)
	assert.NotContains(t, seen.Messages[1].Content, "<li>", "HTML converted before sending")
	assert.Contains(t, seen.Messages[1].Content, "2 cups flour")
}

func TestImport_UpstreamError(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusServiceUnavailable, "")
	l := newTestLLM(t, srv.URL+"/v1", 5)

	_, err := l.Import(context.Background(), "Soup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestImport_NonJSONReply(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, "Sorry, I cannot help with that.")
	l := newTestLLM(t, srv.URL+"/v1", 5)

	_, err := l.Import(context.Background(), "Soup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a JSON object")
}

func TestImport_RateLimited(t *testing.T) {
	srv, _ := fakeCompletions(t, http.StatusOK, `{"title":"Soup"}`)
	l := newTestLLM(t, srv.URL+"/v1", 1)

	_, err := l.Import(context.Background(), "Soup")
	require.NoError(t, err)

	_, err = l.Import(context.Background(), "Soup")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrRateLimited))
}

func TestPrepareText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text trimmed", input: "  2 eggs\nwhisk  ", want: "2 eggs\nwhisk"},
		{name: "angle brackets are not HTML", input: "oven > 200C", want: "oven > 200C"},
		{name: "paragraph", input: "<p>Whisk the eggs.</p>", want: "Whisk the eggs."},
		{name: "heading", input: "<h2>Soup</h2>", want: "## Soup"},
		{name: "bold", input: "<p>Use <strong>cold</strong> butter</p>", want: "Use **cold** butter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, prepareText(tt.input))
		})
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Import(context.Background(), "anything")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnavailable))
}
