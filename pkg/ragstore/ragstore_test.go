package ragstore

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/vector"
)

// fakeEmbedder returns a deterministic vector per input string so tests
// don't need a real embedding backend: the vector is [len(text), 0].
type fakeEmbedder struct {
	dim   int
	force map[string][]float32
}

func (f *fakeEmbedder) Name() string { return "fake" }
func (f *fakeEmbedder) Dimension() int {
	if f.dim != 0 {
		return f.dim
	}
	return 2
}
func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := f.force[t]; ok {
			out[i] = v
			continue
		}
		d := f.Dimension()
		v := make([]float32, d)
		v[0] = float32(len(t))
		out[i] = v
	}
	return out, nil
}

// fakeVector is a minimal in-memory vector.Provider good enough to drive
// Store's add/search logic without pulling in chromem-go.
type fakeVector struct {
	dims map[string]int
	data map[string]map[string][]float32
	meta map[string]map[string]map[string]any
}

func newFakeVector() *fakeVector {
	return &fakeVector{
		dims: map[string]int{},
		data: map[string]map[string][]float32{},
		meta: map[string]map[string]map[string]any{},
	}
}

func (f *fakeVector) Name() string { return "fake-vector" }
func (f *fakeVector) CreateCollection(ctx context.Context, collection string, dim int) error {
	f.dims[collection] = dim
	f.data[collection] = map[string][]float32{}
	f.meta[collection] = map[string]map[string]any{}
	return nil
}
func (f *fakeVector) DeleteCollection(ctx context.Context, collection string) error {
	delete(f.data, collection)
	delete(f.meta, collection)
	return nil
}
func (f *fakeVector) Upsert(ctx context.Context, collection, id string, v []float32, metadata map[string]any) error {
	f.data[collection][id] = v
	f.meta[collection][id] = metadata
	return nil
}
func (f *fakeVector) Delete(ctx context.Context, collection, id string) error {
	delete(f.data[collection], id)
	return nil
}
func (f *fakeVector) DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error {
	return nil
}
func (f *fakeVector) Search(ctx context.Context, collection string, query []float32, topK int) ([]vector.Result, error) {
	var results []vector.Result
	for id, v := range f.data[collection] {
		results = append(results, vector.Result{ID: id, Score: dot(query, v), Metadata: f.meta[collection][id]})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
func (f *fakeVector) SearchWithFilter(ctx context.Context, collection string, query []float32, topK int, filter map[string]any) ([]vector.Result, error) {
	return f.Search(ctx, collection, query, topK)
}
func (f *fakeVector) Close() error { return nil }

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		if i < len(b) {
			sum += a[i] * b[i]
		}
	}
	return sum
}

func TestAddAndSearch(t *testing.T) {
	store := New("docs", &fakeEmbedder{}, newFakeVector())

	added, err := store.Add(context.Background(), []Document{
		{ID: "a", Content: "hi", Metadata: map[string]any{"lang": "en"}},
		{ID: "b", Content: "hello", Metadata: map[string]any{"lang": "en"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	hits, err := store.Search(context.Background(), "hello", 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	emb := &fakeEmbedder{}
	store := New("docs", emb, newFakeVector())

	_, err := store.Add(context.Background(), []Document{{ID: "a", Content: "hi"}})
	require.NoError(t, err)

	emb.dim = 3
	_, err = store.Add(context.Background(), []Document{{ID: "b", Content: "hello"}})
	require.Error(t, err)
	assert.Equal(t, swarm.KindEmbeddingDimensionMismatch, swarm.KindOf(err))
}

func TestSearchAppliesFilter(t *testing.T) {
	store := New("docs", &fakeEmbedder{}, newFakeVector())

	_, err := store.Add(context.Background(), []Document{
		{ID: "a", Content: "hello", Metadata: map[string]any{"lang": "en"}},
		{ID: "b", Content: "hellohello", Metadata: map[string]any{"lang": "fr"}},
	})
	require.NoError(t, err)

	hits, err := store.Search(context.Background(), "hello", 5, func(m map[string]any) bool {
		return m["lang"] == "fr"
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestAddRollsBackOnMidBatchUpsertFailure(t *testing.T) {
	vecs := newFakeVector()
	store := New("docs", &fakeEmbedder{}, vecs)

	_, err := store.Add(context.Background(), []Document{
		{ID: "a", Content: "hi"},
		{ID: "", Content: "no id"},
	})
	require.Error(t, err)
	assert.Equal(t, swarm.KindInvalidInput, swarm.KindOf(err))

	assert.Equal(t, 0, store.Stats().Count)
	_, ok := vecs.data["docs"]["a"]
	assert.False(t, ok, "upsert for the first document should have been rolled back")
}

func TestDeleteReportsWhetherDocumentExisted(t *testing.T) {
	store := New("docs", &fakeEmbedder{}, newFakeVector())
	_, err := store.Add(context.Background(), []Document{{ID: "a", Content: "hi"}})
	require.NoError(t, err)

	removed, err := store.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestStatsReportsDimensionAndCount(t *testing.T) {
	store := New("docs", &fakeEmbedder{}, newFakeVector())
	_, err := store.Add(context.Background(), []Document{{ID: "a", Content: "hi"}})
	require.NoError(t, err)

	stats := store.Stats()
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 2, stats.Dimension)
	assert.Equal(t, "fake-vector", stats.Backend)
}
