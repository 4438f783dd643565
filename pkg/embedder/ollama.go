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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/swarmhive/swarmd/pkg/httpclient"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// OllamaConfig configures a local Ollama embedding endpoint.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	MaxRetries int
}

func (c *OllamaConfig) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:11434"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

// ollamaProvider calls Ollama's /api/embed endpoint, which accepts a
// batch of inputs and returns one vector per input in order.
type ollamaProvider struct {
	cfg OllamaConfig
	hc  *httpclient.Client
	dim atomic.Int64
}

// NewOllama builds a Provider backed by a local Ollama server.
func NewOllama(cfg OllamaConfig) Provider {
	cfg.setDefaults()
	return &ollamaProvider{
		cfg: cfg,
		hc:  httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries)),
	}
}

func (p *ollamaProvider) Name() string { return "ollama:" + p.cfg.Model }

func (p *ollamaProvider) Dimension() int { return int(p.dim.Load()) }

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *ollamaProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedder.Ollama.Embed"
	if len(texts) == 0 {
		return nil, swarm.NewError(op, swarm.KindInvalidInput, fmt.Errorf("texts cannot be empty"))
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("ollama returned status %d", resp.StatusCode))
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, err)
	}

	if err := validateBatch(op, parsed.Embeddings); err != nil {
		return nil, err
	}
	for _, v := range parsed.Embeddings {
		normalize(v)
	}
	p.dim.Store(int64(len(parsed.Embeddings[0])))

	return parsed.Embeddings, nil
}
