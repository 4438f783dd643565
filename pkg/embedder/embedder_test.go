package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

func TestOllamaEmbedNormalizesAndRecordsDimension(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{3, 4}, {1, 0}},
		})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "nomic-embed-text"})
	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)

	assert.InDelta(t, 1.0, float64(vectors[0][0]*vectors[0][0]+vectors[0][1]*vectors[0][1]), 1e-6)
	assert.Equal(t, 2, p.Dimension())
}

func TestOllamaEmbedDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{1, 2}, {1, 2, 3}},
		})
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "x"})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, swarm.KindEmbeddingDimensionMismatch, swarm.KindOf(err))
}

func TestOllamaEmbedBackendUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewOllama(OllamaConfig{BaseURL: srv.URL, Model: "x", MaxRetries: 0})
	_, err := p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, swarm.KindEmbeddingBackendUnavailable, swarm.KindOf(err))
}

func TestWithFallbackUsesSecondaryOnBackendRejected(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIEmbedResponse{
			Data: []struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{{Embedding: []float32{1, 0}, Index: 0}},
		})
	}))
	defer up.Close()

	primary := NewOllama(OllamaConfig{BaseURL: down.URL, Model: "local", MaxRetries: 1})
	secondary := NewOpenAI(OpenAIConfig{BaseURL: up.URL, Model: "remote", MaxRetries: 1})
	fb := WithFallback(primary, secondary, nil)

	vectors, err := fb.Embed(context.Background(), []string{"a"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
}
