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

package llmclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"

	"github.com/swarmhive/swarmd/pkg/httpclient"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// OllamaConfig configures a local Ollama chat endpoint.
type OllamaConfig struct {
	BaseURL    string
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

type ollamaBackend struct {
	cfg OllamaConfig
	hc  *httpclient.Client
}

// NewOllamaBackend builds a Backend talking to a local Ollama server's
// /api/chat endpoint.
func NewOllamaBackend(cfg OllamaConfig) Backend {
	cfg.setDefaults()
	return &ollamaBackend{cfg: cfg, hc: httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries))}
}

func (b *ollamaBackend) Name() string { return "ollama" }

type ollamaMessage struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	ToolCalls []ollamaToolCallOut `json:"tool_calls,omitempty"`
}

type ollamaToolCallOut struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaToolDecl `json:"function"`
}

type ollamaToolDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Format   map[string]any  `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}

func buildOllamaRequest(messages []swarm.Message, opts ChatOptions, stream bool) ollamaChatRequest {
	req := ollamaChatRequest{
		Model:    opts.Model,
		Messages: make([]ollamaMessage, len(messages)),
		Stream:   stream,
		Options: ollamaOptions{
			Temperature: opts.Temperature,
			TopP:        opts.TopP,
			NumPredict:  opts.MaxTokens,
		},
	}
	for i, m := range messages {
		req.Messages[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}
	for _, tool := range opts.Tools {
		req.Tools = append(req.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if opts.StructuredOutput != nil {
		req.Format = opts.StructuredOutput
	}
	return req
}

func (b *ollamaBackend) Chat(ctx context.Context, messages []swarm.Message, opts ChatOptions) (ChatResponse, error) {
	const op = "llmclient.ollamaBackend.Chat"

	body, err := json.Marshal(buildOllamaRequest(messages, opts, false))
	if err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	// httpclient returns the response together with an error for a non-2xx
	// status; only a missing response is a transport failure.
	resp, err := b.hc.Do(req)
	if err != nil && resp == nil {
		return ChatResponse{}, classifyHTTPError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ChatResponse{}, classifyStatus(op, resp.StatusCode)
	}

	var parsed ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindBackendUnavailable, err)
	}

	return ChatResponse{
		Message:      toSwarmMessage(parsed.Message),
		FinishReason: parsed.DoneReason,
		InputTokens:  parsed.PromptEvalCount,
		OutputTokens: parsed.EvalCount,
	}, nil
}

func toSwarmMessage(m ollamaMessage) swarm.Message {
	out := swarm.Message{Role: swarm.RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, swarm.ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	return out
}

// ChatStream streams newline-delimited JSON chat responses from Ollama,
// yielding one StreamChunk per line until Done is reached.
func (b *ollamaBackend) ChatStream(ctx context.Context, messages []swarm.Message, opts ChatOptions) iter.Seq2[StreamChunk, error] {
	const op = "llmclient.ollamaBackend.ChatStream"

	return func(yield func(StreamChunk, error) bool) {
		body, err := json.Marshal(buildOllamaRequest(messages, opts, true))
		if err != nil {
			yield(StreamChunk{}, swarm.NewError(op, swarm.KindInternal, err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/api/chat", bytes.NewReader(body))
		if err != nil {
			yield(StreamChunk{}, swarm.NewError(op, swarm.KindInternal, err))
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := b.hc.Do(req)
		if err != nil && resp == nil {
			yield(StreamChunk{}, classifyHTTPError(op, err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			yield(StreamChunk{}, classifyStatus(op, resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var chunk ollamaChatResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				yield(StreamChunk{}, swarm.NewError(op, swarm.KindBackendUnavailable, err))
				return
			}
			for _, tc := range chunk.Message.ToolCalls {
				toolCall := swarm.ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
				if !yield(StreamChunk{ToolCall: &toolCall}, nil) {
					return
				}
			}
			if chunk.Message.Content != "" {
				if !yield(StreamChunk{TextDelta: chunk.Message.Content}, nil) {
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(StreamChunk{}, swarm.NewError(op, swarm.KindBackendUnavailable, err))
		}
	}
}

func classifyHTTPError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return swarm.NewError(op, swarm.KindDeadlineExceeded, err)
	}
	if errors.Is(err, context.Canceled) {
		return swarm.NewError(op, swarm.KindCancelled, err)
	}
	return swarm.NewError(op, swarm.KindBackendUnavailable, err)
}

func classifyStatus(op string, status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return swarm.NewError(op, swarm.KindAuthError, fmt.Errorf("backend returned status %d", status))
	case http.StatusBadRequest:
		return swarm.NewError(op, swarm.KindBadRequest, fmt.Errorf("backend returned status %d", status))
	case http.StatusRequestEntityTooLarge:
		return swarm.NewError(op, swarm.KindContextOverflow, fmt.Errorf("backend returned status %d", status))
	default:
		return swarm.NewError(op, swarm.KindBackendUnavailable, fmt.Errorf("backend returned status %d", status))
	}
}
