package llm

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedQueryNormalizes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "RETRIEVAL_QUERY", req.TaskType)
		assert.Equal(t, 768, req.OutputDimensionality)
		require.Len(t, req.Content.Parts, 1)
		assert.Equal(t, "심신장애 감경", req.Content.Parts[0].Text)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"embedding": map[string]interface{}{"values": []float64{3, 4}},
		})
	}))
	defer srv.Close()

	e := &Embedder{apiKey: "test-key", url: srv.URL}
	vec, err := e.EmbedQuery(context.Background(), "심신장애 감경")
	require.NoError(t, err)
	require.Len(t, vec, 2)
	assert.InDelta(t, 0.6, vec[0], 1e-9)
	assert.InDelta(t, 0.8, vec[1], 1e-9)

	norm := math.Sqrt(vec[0]*vec[0] + vec[1]*vec[1])
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestEmbedQueryUnauthorizedNotRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	e := &Embedder{apiKey: "bad-key", url: srv.URL}
	_, err := e.EmbedQuery(context.Background(), "query")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestEmbedQueryMissingKey(t *testing.T) {
	e := &Embedder{}
	_, err := e.EmbedQuery(context.Background(), "query")
	assert.Error(t, err)
}
