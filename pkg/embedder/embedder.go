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

// Package embedder maps batches of text to unit-normalized, fixed-
// dimension vectors. A Provider's backend (local inference endpoint or
// remote API) fixes the dimension for the process lifetime; callers
// that persist vectors (the RAG Store) must reject any embedding whose
// dimension disagrees with the one recorded at store-open time.
package embedder

import (
	"context"
	"fmt"
	"math"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// Provider embeds batches of text into unit-normalized vectors of a
// fixed dimension.
type Provider interface {
	// Embed maps 1..len(texts) non-empty strings to vectors of equal
	// dimension, in input order. Returns a *swarm.Error classified
	// embedding_backend_unavailable or embedding_dimension_mismatch on failure.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the fixed vector dimension this provider
	// produces, or 0 if it has not embedded anything yet and the
	// dimension is not statically known.
	Dimension() int

	// Name identifies the backend for logs and metrics.
	Name() string
}

// normalize scales v to unit length in place, so that cosine similarity
// between two provider outputs reduces to a plain dot product.
func normalize(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// validateBatch checks every vector in vectors shares dimension d and
// that the batch is non-empty, returning a classified *swarm.Error
// otherwise.
func validateBatch(op string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("backend returned no vectors"))
	}
	d := len(vectors[0])
	for i, v := range vectors {
		if len(v) != d {
			return swarm.NewError(op, swarm.KindEmbeddingDimensionMismatch,
				fmt.Errorf("vector %d has dimension %d, expected %d", i, len(v), d))
		}
	}
	return nil
}
