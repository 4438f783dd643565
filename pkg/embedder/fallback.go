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

package embedder

import (
	"context"
	"log/slog"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// WithFallback wraps primary (intended to be the local, preferred
// backend) so that an embedding_backend_unavailable failure from primary
// retries the same batch against secondary (intended to be a remote
// API). A dimension mismatch between the two backends is not masked:
// the caller configures both against models known to agree on d, same
// as the teacher's registry-of-backends does not itself reconcile
// disagreeing dimensions.
func WithFallback(primary, secondary Provider, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &fallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

type fallbackProvider struct {
	primary   Provider
	secondary Provider
	logger    *slog.Logger
}

func (f *fallbackProvider) Name() string {
	return f.primary.Name() + "+fallback:" + f.secondary.Name()
}

func (f *fallbackProvider) Dimension() int {
	if d := f.primary.Dimension(); d != 0 {
		return d
	}
	return f.secondary.Dimension()
}

func (f *fallbackProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := f.primary.Embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if swarm.KindOf(err) != swarm.KindEmbeddingBackendUnavailable {
		return nil, err
	}

	f.logger.Warn("embedding primary backend unavailable, falling back",
		"primary", f.primary.Name(), "secondary", f.secondary.Name(), "error", err)
	return f.secondary.Embed(ctx, texts)
}
