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

// OpenAIConfig configures a remote, OpenAI-style embeddings endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

func (c *OpenAIConfig) setDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
}

type openAIProvider struct {
	cfg OpenAIConfig
	hc  *httpclient.Client
	dim atomic.Int64
}

// NewOpenAI builds a Provider backed by a remote OpenAI-compatible
// embeddings API, meant as the remote fallback behind a local Ollama
// provider.
func NewOpenAI(cfg OpenAIConfig) Provider {
	cfg.setDefaults()
	return &openAIProvider{
		cfg: cfg,
		hc:  httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries)),
	}
}

func (p *openAIProvider) Name() string { return "openai:" + p.cfg.Model }

func (p *openAIProvider) Dimension() int { return int(p.dim.Load()) }

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (p *openAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedder.OpenAI.Embed"
	if len(texts) == 0 {
		return nil, swarm.NewError(op, swarm.KindInvalidInput, fmt.Errorf("texts cannot be empty"))
	}

	body, err := json.Marshal(openAIEmbedRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.hc.Do(req)
	if err != nil {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("embeddings API returned status %d", resp.StatusCode))
	}

	var parsed openAIEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, err)
	}

	vectors := make([][]float32, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, swarm.NewError(op, swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vectors[d.Index] = d.Embedding
	}

	if err := validateBatch(op, vectors); err != nil {
		return nil, err
	}
	for _, v := range vectors {
		normalize(v)
	}
	p.dim.Store(int64(len(vectors[0])))

	return vectors, nil
}
