package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenIndex struct{}

func (brokenIndex) DocCount() (uint64, error) {
	return 0, errors.New("index closed")
}

func TestHealthCheck_Success(t *testing.T) {
	ts := setupTestServer(t)
	ts.saveRecipe(t, map[string]any{"title": "Soup"})

	resp := ts.api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	health := decodeEnvelope[HealthResponse](t, resp.Body.Bytes()).Data
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusHealthy, health.Components["database"].Status)
	assert.Equal(t, "1 recipes indexed", health.Components["search"].Message)
	assert.Equal(t, "0 sessions", health.Components["realtime"].Message)
}

func TestHealthCheck_SearchDisabled(t *testing.T) {
	ts := setupTestServer(t, func(o *Options) { o.Index = nil })

	resp := ts.api.Get("/health")
	health := decodeEnvelope[HealthResponse](t, resp.Body.Bytes()).Data
	assert.Equal(t, statusHealthy, health.Status)
	assert.Equal(t, statusDisabled, health.Components["search"].Status)
}

func TestHealthCheck_BrokenIndexDegrades(t *testing.T) {
	ts := setupTestServer(t, func(o *Options) { o.Index = brokenIndex{} })

	resp := ts.api.Get("/health")
	health := decodeEnvelope[HealthResponse](t, resp.Body.Bytes()).Data
	assert.Equal(t, statusDegraded, health.Status)
	assert.Equal(t, "index closed", health.Components["search"].Message)
}
