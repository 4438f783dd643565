// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ragstore persists (id, content, metadata, embedding) documents
// and answers top-k cosine-similarity queries over a pluggable
// vector.Provider. The store enforces a single invariant its backend
// cannot be trusted to enforce itself: every document in a collection
// shares one embedding dimension, fixed at the store's first insert.
package ragstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swarmhive/swarmd/pkg/embedder"
	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/vector"
)

// Document is a unit of persisted content plus its embedding.
type Document struct {
	ID        string
	Content   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// SearchHit is a copy of a matched Document plus its similarity score.
type SearchHit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Score    float32
}

// Stats summarizes a collection.
type Stats struct {
	Count     int
	Dimension int
	Backend   string
}

// FilterFunc reports whether a document's metadata satisfies a search's
// optional filter predicate.
type FilterFunc func(metadata map[string]any) bool

// Store persists documents in a single collection, computing embeddings
// via the configured embedder.Provider and delegating vector storage and
// similarity search to a vector.Provider.
type Store struct {
	collection string
	embed      embedder.Provider
	vectors    vector.Provider

	mu  sync.RWMutex
	dim int // 0 until the first successful insert fixes it

	// content/metadata are kept alongside the vector backend so
	// SearchHit can return full documents even for backends (like the
	// embedded default) that store vectors without carrying payload
	// query-side.
	documents map[string]Document
}

// New creates a Store over collection, backed by vectors for similarity
// search and embed for turning text into vectors.
func New(collection string, embed embedder.Provider, vectors vector.Provider) *Store {
	return &Store{
		collection: collection,
		embed:      embed,
		vectors:    vectors,
		documents:  make(map[string]Document),
	}
}

// Open loads dimension bookkeeping from an existing collection. Callers
// with a persisted, non-empty collection should call this before Add so
// a dimension mismatch against new inserts is caught immediately rather
// than after documents of disagreeing dimension have intermixed.
func (s *Store) Open(dimension int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dim = dimension
}

// Add computes embeddings for documents in one batch and upserts them by
// id. The batch is all-or-nothing: if any resulting embedding's dimension
// disagrees with the collection's fixed dimension, or any document fails
// to upsert partway through, every document the call already upserted is
// rolled back via a compensating Delete and the call reports zero added.
func (s *Store) Add(ctx context.Context, documents []Document) (added int, err error) {
	const op = "ragstore.Store.Add"
	if len(documents) == 0 {
		return 0, nil
	}

	texts := make([]string, len(documents))
	for i, d := range documents {
		texts[i] = d.Content
	}

	vectors, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 && len(vectors) > 0 {
		s.dim = len(vectors[0])
		if err := s.vectors.CreateCollection(ctx, s.collection, s.dim); err != nil {
			s.dim = 0
			return 0, swarm.NewError(op, swarm.KindBackendUnavailable, err)
		}
	}
	for _, v := range vectors {
		if len(v) != s.dim {
			return 0, swarm.NewError(op, swarm.KindEmbeddingDimensionMismatch,
				fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(v), s.dim))
		}
	}

	upserted := make([]string, 0, len(documents))
	rollback := func() {
		for _, id := range upserted {
			_ = s.vectors.Delete(ctx, s.collection, id)
			delete(s.documents, id)
		}
	}

	for i, doc := range documents {
		if doc.ID == "" {
			rollback()
			return 0, swarm.NewError(op, swarm.KindInvalidInput, fmt.Errorf("document id cannot be empty"))
		}
		if err := s.vectors.Upsert(ctx, s.collection, doc.ID, vectors[i], doc.Metadata); err != nil {
			rollback()
			return 0, swarm.NewError(op, swarm.KindBackendUnavailable, err)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = s.documents[doc.ID].CreatedAt
		}
		s.documents[doc.ID] = doc
		upserted = append(upserted, doc.ID)
	}

	return len(upserted), nil
}

// Search embeds query and returns the k highest-cosine matches whose
// metadata satisfies filter (nil filter matches everything). k is
// clamped to [1, 100]. Results are sorted by descending score, ties
// broken by ascending document id.
func (s *Store) Search(ctx context.Context, query string, k int, filter FilterFunc) ([]SearchHit, error) {
	const op = "ragstore.Store.Search"

	if k < 1 {
		k = 1
	}
	if k > 100 {
		k = 100
	}

	vectors, err := s.embed.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	dim := s.dim
	s.mu.RUnlock()
	if dim != 0 && len(vectors[0]) != dim {
		return nil, swarm.NewError(op, swarm.KindEmbeddingDimensionMismatch,
			fmt.Errorf("query embedding dimension %d does not match collection dimension %d", len(vectors[0]), dim))
	}

	// Overfetch past k so that applying filter client-side (for backends
	// whose SearchWithFilter predicate language doesn't match FilterFunc)
	// still leaves enough candidates to fill k results.
	fetchK := k
	if filter != nil {
		fetchK = min(k*5, 500)
	}

	results, err := s.vectors.Search(ctx, s.collection, vectors[0], fetchK)
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindBackendUnavailable, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		doc, ok := s.documents[r.ID]
		content, metadata := r.Content, r.Metadata
		if ok {
			content, metadata = doc.Content, doc.Metadata
		}
		if filter != nil && !filter(metadata) {
			continue
		}
		hits = append(hits, SearchHit{ID: r.ID, Content: content, Metadata: metadata, Score: r.Score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Delete removes a document by id from both the vector backend and the
// store's content index. removed reports whether id was present in the
// store's own index before the call, so repeated deletes of the same id
// are idempotent but only the first reports true.
func (s *Store) Delete(ctx context.Context, id string) (removed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.documents[id]

	if err := s.vectors.Delete(ctx, s.collection, id); err != nil {
		return false, swarm.NewError("ragstore.Store.Delete", swarm.KindBackendUnavailable, err)
	}
	delete(s.documents, id)
	return existed, nil
}

// Stats reports the collection's current document count, fixed
// dimension (0 if nothing has been inserted yet), and backend name.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Count: len(s.documents), Dimension: s.dim, Backend: s.vectors.Name()}
}
