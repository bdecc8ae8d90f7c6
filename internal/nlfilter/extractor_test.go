package nlfilter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pet-listings-scraper/internal/pet"
)

func geminiStub(t *testing.T, answer string, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", req.GenerationConfig.ResponseMIMEType)
		assert.Contains(t, req.SystemInstruction.Parts[0].Text, "description_regex")
		assert.Equal(t, "user", req.Contents[0].Role)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content":      map[string]any{"role": "model", "parts": []any{map[string]any{"text": answer}}},
				"finishReason": "STOP",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtractParsesModelAnswerAndCaches(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := geminiStub(t, `{"county":"Timis","city":null,"category":"Caini","breed":"husky|malamut","min_price":null,"max_price":1200,"description_regex":"(mic|jucaus)"}`, &calls)
	ex := New(Config{APIKey: "test-key", BaseURL: srv.URL}, NewMemoryCache(0), nil)

	filter, err := ex.Extract(context.Background(), "Un  husky sau malamut in Timis sub 1200 lei")
	require.NoError(t, err)
	require.Equal(t, "Timis", pet.Value(filter.County))
	require.Nil(t, filter.City)
	require.Equal(t, "Caini", pet.Value(filter.Category))
	require.True(t, filter.BreedPattern())
	require.Nil(t, filter.MinPrice)
	require.Equal(t, 1200.0, *filter.MaxPrice)
	require.Equal(t, "(mic|jucaus)", pet.Value(filter.DescriptionRegex))

	again, err := ex.Extract(context.Background(), "un husky sau malamut in timis SUB 1200 lei ")
	require.NoError(t, err)
	require.Equal(t, filter, again)
	require.Equal(t, int32(1), calls.Load())
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{APIKey: "test-key"}, nil, nil).Extract(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyPrompt)

	_, err = New(Config{}, nil, nil).Extract(context.Background(), "pisici")
	require.ErrorIs(t, err, ErrNotConfigured)

	var calls atomic.Int32
	srv := geminiStub(t, `not json`, &calls)
	_, err = New(Config{APIKey: "test-key", BaseURL: srv.URL}, nil, nil).Extract(context.Background(), "pisici")
	require.ErrorIs(t, err, ErrNoAnswer)
}

func TestExtractSurfacesAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	}))
	t.Cleanup(srv.Close)

	_, err := New(Config{APIKey: "bad", BaseURL: srv.URL}, nil, nil).Extract(context.Background(), "caini")
	require.ErrorContains(t, err, "gemini returned 403: API key not valid")
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	filter, err := ParseFilter("```json\n{\"county\":\" Cluj \",\"breed\":\"\",\"min_price\":100}\n```")
	require.NoError(t, err)
	require.Equal(t, "Cluj", pet.Value(filter.County))
	require.Nil(t, filter.Breed)
	require.Equal(t, 100.0, *filter.MinPrice)

	_, err = ParseFilter(`{"min_price":500,"max_price":100}`)
	require.ErrorIs(t, err, pet.ErrInvalidFilter)
}

func TestCacheKey(t *testing.T) {
	t.Parallel()

	require.Equal(t, "caini mici in cluj", CacheKey("  Caini\tMICI \n in Cluj "))
	require.Empty(t, CacheKey(" \n "))
}
