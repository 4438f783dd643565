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
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/swarmhive/swarmd/pkg/httpclient"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// OpenAIConfig configures a remote OpenAI-compatible chat endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
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

type openAIBackend struct {
	cfg OpenAIConfig
	hc  *httpclient.Client
}

// NewOpenAIBackend builds a Backend talking to an OpenAI-compatible
// /chat/completions endpoint.
func NewOpenAIBackend(cfg OpenAIConfig) Backend {
	cfg.setDefaults()
	return &openAIBackend{cfg: cfg, hc: httpclient.New(httpclient.WithMaxRetries(cfg.MaxRetries))}
}

func (b *openAIBackend) Name() string { return "openai" }

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string              `json:"id"`
	Type     string              `json:"type"`
	Function openAIFunctionCall  `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAITool struct {
	Type     string             `json:"type"`
	Function openAIFunctionDecl `json:"function"`
}

type openAIFunctionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type openAIResponseFormat struct {
	Type       string         `json:"type"`
	JSONSchema map[string]any `json:"json_schema,omitempty"`
}

type openAIChatRequest struct {
	Model          string                 `json:"model"`
	Messages       []openAIMessage        `json:"messages"`
	Stream         bool                   `json:"stream"`
	Temperature    float64                `json:"temperature"`
	TopP           float64                `json:"top_p"`
	MaxTokens      int                    `json:"max_tokens,omitempty"`
	Tools          []openAITool           `json:"tools,omitempty"`
	ResponseFormat *openAIResponseFormat  `json:"response_format,omitempty"`
}

type openAIChoice struct {
	Message      openAIMessage `json:"message"`
	Delta        openAIMessage `json:"delta"`
	FinishReason string        `json:"finish_reason"`
}

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

type openAIChatResponse struct {
	Choices []openAIChoice `json:"choices"`
	Usage   openAIUsage    `json:"usage"`
	Error   *openAIAPIError `json:"error,omitempty"`
}

type openAIAPIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func buildOpenAIRequest(messages []swarm.Message, opts ChatOptions, stream bool) openAIChatRequest {
	req := openAIChatRequest{
		Model:       opts.Model,
		Messages:    make([]openAIMessage, len(messages)),
		Stream:      stream,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	}
	for i, m := range messages {
		req.Messages[i] = openAIMessage{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	}
	for _, tool := range opts.Tools {
		req.Tools = append(req.Tools, openAITool{
			Type: "function",
			Function: openAIFunctionDecl{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	if opts.StructuredOutput != nil {
		req.ResponseFormat = &openAIResponseFormat{Type: "json_schema", JSONSchema: opts.StructuredOutput}
	}
	return req
}

func (b *openAIBackend) newRequest(ctx context.Context, payload openAIChatRequest) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	return req, nil
}

func (b *openAIBackend) Chat(ctx context.Context, messages []swarm.Message, opts ChatOptions) (ChatResponse, error) {
	const op = "llmclient.openAIBackend.Chat"

	req, err := b.newRequest(ctx, buildOpenAIRequest(messages, opts, false))
	if err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindInternal, err)
	}

	// httpclient returns the response together with an error for a non-2xx
	// status; only a missing response is a transport failure.
	resp, err := b.hc.Do(req)
	if err != nil && resp == nil {
		return ChatResponse{}, classifyHTTPError(op, err)
	}
	defer resp.Body.Close()

	var parsed openAIChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindBackendUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return ChatResponse{}, classifyStatusWithMessage(op, resp.StatusCode, parsed.Error.Message)
		}
		return ChatResponse{}, classifyStatus(op, resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return ChatResponse{}, swarm.NewError(op, swarm.KindBackendUnavailable, fmt.Errorf("empty choices"))
	}

	choice := parsed.Choices[0]
	return ChatResponse{
		Message:      fromOpenAIMessage(choice.Message),
		FinishReason: choice.FinishReason,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

func fromOpenAIMessage(m openAIMessage) swarm.Message {
	out := swarm.Message{Role: swarm.RoleAssistant, Content: m.Content}
	for _, tc := range m.ToolCalls {
		var args map[string]any
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, swarm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out
}

func classifyStatusWithMessage(op string, status int, message string) error {
	base := classifyStatus(op, status)
	return swarm.NewError(op, swarm.KindOf(base), fmt.Errorf("%s", message))
}

// ChatStream consumes an OpenAI-compatible server-sent-events stream,
// one "data: {json}" line per chunk, terminated by "data: [DONE]".
func (b *openAIBackend) ChatStream(ctx context.Context, messages []swarm.Message, opts ChatOptions) iter.Seq2[StreamChunk, error] {
	const op = "llmclient.openAIBackend.ChatStream"

	return func(yield func(StreamChunk, error) bool) {
		req, err := b.newRequest(ctx, buildOpenAIRequest(messages, opts, true))
		if err != nil {
			yield(StreamChunk{}, swarm.NewError(op, swarm.KindInternal, err))
			return
		}
		req.Header.Set("Accept", "text/event-stream")

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
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}

			var chunk openAIChatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield(StreamChunk{}, swarm.NewError(op, swarm.KindBackendUnavailable, err))
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta
			for _, tc := range delta.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
				toolCall := swarm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}
				if !yield(StreamChunk{ToolCall: &toolCall}, nil) {
					return
				}
			}
			if delta.Content != "" {
				if !yield(StreamChunk{TextDelta: delta.Content}, nil) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			yield(StreamChunk{}, swarm.NewError(op, swarm.KindBackendUnavailable, err))
		}
	}
}
