package knowledgetool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/ragstore"
	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string    { return "stub" }
func (stubEmbedder) Dimension() int  { return 1 }
func (stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func testCtx() toolhost.Context {
	return toolhost.Context{Context: context.Background()}
}

func TestRAGAddAndSearch(t *testing.T) {
	store := ragstore.New("kb", stubEmbedder{}, vector.NilProvider{})

	addDef, err := NewRAGAdd(store)
	require.NoError(t, err)

	out, err := addDef.Handler(testCtx(), map[string]any{
		"documents": []any{
			map[string]any{"id": "a", "content": "hello world", "metadata": map[string]any{"lang": "en"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out["added"])

	searchDef, err := NewRAGSearch(store)
	require.NoError(t, err)

	out, err = searchDef.Handler(testCtx(), map[string]any{"query": "hello", "k": float64(3)})
	require.NoError(t, err)
	// vector.NilProvider never returns search hits; this exercises the
	// tool's plumbing (args decoding, store wiring) rather than a real
	// similarity search, which belongs to ragstore's own tests.
	assert.Equal(t, 0, out["count"])
}

func TestRAGAddRejectsEmpty(t *testing.T) {
	store := ragstore.New("kb", stubEmbedder{}, vector.NilProvider{})
	addDef, err := NewRAGAdd(store)
	require.NoError(t, err)

	_, err = addDef.Handler(testCtx(), map[string]any{"documents": []any{}})
	assert.Error(t, err)
}
