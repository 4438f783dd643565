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

package imagetool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/swarmhive/swarmd/pkg/httpclient"
)

// HTTPBackendConfig configures a remote image-generation service reached
// over HTTP: a single endpoint accepting a JSON generation request and
// returning base64-encoded PNG payloads.
type HTTPBackendConfig struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
}

func (c *HTTPBackendConfig) setDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// HTTPBackend generates images by calling a remote service's
// /v1/images/generations-style endpoint. The request/response shape
// follows the common OpenAI-compatible image generation contract:
// a JSON body of {prompt, n, size} in, a list of base64 PNGs out.
type HTTPBackend struct {
	cfg HTTPBackendConfig
	hc  *httpclient.Client
}

// NewHTTPBackend builds a Backend that delegates image generation to a
// remote HTTP service.
func NewHTTPBackend(cfg HTTPBackendConfig) *HTTPBackend {
	cfg.setDefaults()
	return &HTTPBackend{
		cfg: cfg,
		hc: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
		),
	}
}

type imageGenerationRequest struct {
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageGenerationResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
}

// Generate implements Backend.
func (b *HTTPBackend) Generate(ctx context.Context, prompt string, count, width, height int) ([]Image, error) {
	reqBody, err := json.Marshal(imageGenerationRequest{
		Prompt: prompt,
		N:      count,
		Size:   fmt.Sprintf("%dx%d", width, height),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/v1/images/generations", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image generation request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image generation response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image generation backend returned %s: %s", resp.Status, string(body))
	}

	var parsed imageGenerationResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse image generation response: %w", err)
	}

	images := make([]Image, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		png, err := base64.StdEncoding.DecodeString(d.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to decode returned image: %w", err)
		}
		images = append(images, Image{PNG: png})
	}
	return images, nil
}
