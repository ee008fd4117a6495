package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/irampton/Lembas/internal/domain"
	domainerrors "github.com/irampton/Lembas/internal/errors"
	"github.com/irampton/Lembas/internal/normalize"
	"github.com/irampton/Lembas/internal/ratelimit"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	// limiterKey is the single bucket shared by all outbound completions.
	limiterKey = "llm"

	// maxResponseBytes bounds how much of an upstream response is read.
	maxResponseBytes = 1 << 20
)

const systemPrompt = `You extract cooking recipes from text.
Reply with a single JSON object and nothing else, using these fields:
{"title": string, "description": string, "author": string, "tags": [string],
 "ingredients": [{"name": string, "quantity": string or number, "unit": string}],
 "steps": [string], "notes": string}
Omit nothing; use empty strings or empty lists for unknown fields.
Keep the original language of the recipe.`

// LLMConfig configures an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	// Endpoint is the API base URL, e.g. https://api.openai.com/v1.
	// A URL already ending in /chat/completions is used as is.
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	// RatePerMinute caps outbound completions. Callers over the cap get a
	// RateLimited error rather than queueing behind a slow upstream.
	RatePerMinute int
}

// LLM extracts drafts through a chat completions API.
type LLM struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
	limiter    *ratelimit.KeyedRateLimiter
	normalizer *normalize.Normalizer
	logger     *slog.Logger
}

// NewLLM creates an LLM importer. It returns ErrDisabled when no endpoint
// is configured.
func NewLLM(cfg LLMConfig, logger *slog.Logger) (*LLM, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		return nil, ErrDisabled
	}
	if !strings.HasSuffix(endpoint, "/chat/completions") {
		endpoint += "/chat/completions"
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &LLM{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		model:      model,
		apiKey:     cfg.APIKey,
		limiter:    ratelimit.PerMinute(cfg.RatePerMinute),
		normalizer: normalize.New(),
		logger:     logger.With(slog.String("component", "importer")),
	}, nil
}

// Close stops the rate limiter.
func (l *LLM) Close() error {
	l.limiter.Stop()
	return nil
}

// Import sends text to the model and normalizes the JSON object it returns.
func (l *LLM) Import(ctx context.Context, text string) (*domain.Draft, error) {
	if !l.limiter.Allow(limiterKey) {
		return nil, domainerrors.RateLimited("Too many import requests. Please try again later.")
	}

	prepared := prepareText(text)
	start := time.Now()

	content, err := l.complete(ctx, prepared)
	if err != nil {
		return nil, err
	}

	raw, err := decodeDraft(content)
	if err != nil {
		return nil, err
	}
	draft := l.normalizer.Draft(raw)

	l.logger.Info("Recipe draft extracted",
		slog.String("model", l.model),
		slog.Int("input_chars", len(prepared)),
		slog.Int("ingredients", len(draft.Ingredients)),
		slog.Int("steps", len(draft.Steps)),
		slog.Duration("duration", time.Since(start)))

	return &draft, nil
}

func (l *LLM) complete(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: l.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: text},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("importer: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("importer: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if l.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+l.apiKey)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("importer: request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("importer: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("importer: upstream %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("importer: upstream %d", resp.StatusCode)
	}

	var completion chatResponse
	if err := json.Unmarshal(payload, &completion); err != nil {
		return "", fmt.Errorf("importer: decode response: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("importer: response has no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// decodeDraft parses the model's reply. Models sometimes wrap JSON in a
// fenced code block even when asked not to.
func decodeDraft(content string) (map[string]any, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("importer: model reply is not a JSON object: %w", err)
	}
	return raw, nil
}

// Chat completions wire types; only the fields this importer uses.

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}
