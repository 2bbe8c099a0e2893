//go:build !integration

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/city-synergy/internal/cache"
	"github.com/sells-group/city-synergy/internal/cityname"
	"github.com/sells-group/city-synergy/internal/config"
)

func newTestRouter(t *testing.T) (http.Handler, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	c := &config.Config{
		Pipeline: config.PipelineConfig{
			GroupsPath:   filepath.Join(dir, "city_groups.json"),
			AffinityPath: filepath.Join(dir, "epsilon_scores.json"),
			SynergyPath:  filepath.Join(dir, "synergy_scores.json"),
			TotalPath:    filepath.Join(dir, "total_scores.json"),
			ReviewPath:   filepath.Join(dir, "normalization_review.json"),
		},
		Server: config.ServerConfig{Port: 8080, AllowedOrigins: []string{"https://dash.example.com"}},
	}
	r, err := cityname.NewDefault()
	require.NoError(t, err)
	return buildRouter(c, cache.NewResolver(cache.NewMemory(0), r, "test:")), c
}

func postNormalize(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/normalize", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouter_Health(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRouter_Normalize(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := postNormalize(t, h, `{"inputs": ["서울특별시", "  ", "Al-Riyadh City", "서울특별시"]}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Results []struct {
			Input      string   `json:"input"`
			City       string   `json:"city"`
			Method     string   `json:"method"`
			Confidence string   `json:"confidence"`
			Steps      []any    `json:"steps"`
			Scripts    []string `json:"scripts"`
			Cached     bool     `json:"cached"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Results, 4)

	assert.Equal(t, "Seoul", body.Results[0].City)
	assert.Equal(t, "dictionary", body.Results[0].Method)
	assert.False(t, body.Results[0].Cached)
	assert.Empty(t, body.Results[0].Steps)

	assert.Equal(t, "", body.Results[1].City)
	assert.Equal(t, "Riyadh", body.Results[2].City)

	assert.Equal(t, "Seoul", body.Results[3].City)
	assert.True(t, body.Results[3].Cached)
}

func TestRouter_NormalizeTrace(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := postNormalize(t, h, `{"inputs": ["Al-Riyadh City"], "trace": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"steps"`)
	assert.Contains(t, rr.Body.String(), `"affixes"`)
}

func TestRouter_NormalizeTraceFromCache(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := postNormalize(t, h, `{"inputs": ["Al-Riyadh City"]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotContains(t, rr.Body.String(), `"steps"`)

	rr = postNormalize(t, h, `{"inputs": ["Al-Riyadh City"], "trace": true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cached":true`)
	assert.Contains(t, rr.Body.String(), `"affixes"`)
}

func TestRouter_NormalizeBadRequests(t *testing.T) {
	h, _ := newTestRouter(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"inputs": [`, "invalid request body"},
		{"no inputs", `{"inputs": []}`, "inputs is required"},
		{"too many", `{"inputs": [` + strings.Repeat(`"x",`, maxNormalizeInputs) + `"x"]}`, "at most"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postNormalize(t, h, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
		})
	}
}

func TestRouter_Stages(t *testing.T) {
	h, c := newTestRouter(t)
	require.NoError(t, os.WriteFile(c.Pipeline.TotalPath, []byte(`[{"city": "TOKYO", "rank": 1}]`+"\n"), 0o644))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stages/total", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	assert.JSONEq(t, `[{"city": "TOKYO", "rank": 1}]`, rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stages/synergy", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "has not been run")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/stages/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "unknown stage")
}

func TestRouter_CORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/normalize", nil)
	req.Header.Set("Origin", "https://dash.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "https://dash.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/normalize", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
