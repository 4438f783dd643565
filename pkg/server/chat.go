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

package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// submitChatRequest is the body of POST /v1/chat.
type submitChatRequest struct {
	Messages    []swarm.Message `json:"messages"`
	Model       string          `json:"model,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
	TopP        float64         `json:"top_p,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type submitChatResponse struct {
	Message      swarm.Message `json:"message"`
	FinishReason string        `json:"finish_reason"`
	InputTokens  int           `json:"input_tokens"`
	OutputTokens int           `json:"output_tokens"`
}

func (req submitChatRequest) chatOptions() llmclient.ChatOptions {
	return llmclient.ChatOptions{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	}
}

func (s *Server) handleSubmitChat(w http.ResponseWriter, r *http.Request) {
	var req submitChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, swarm.NewError("server.handleSubmitChat", swarm.KindInvalidInput, err))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, swarm.NewError("server.handleSubmitChat", swarm.KindInvalidInput, fmt.Errorf("messages cannot be empty")))
		return
	}

	if req.Stream {
		s.streamChat(w, r, req)
		return
	}

	resp, err := s.llm.Chat(r.Context(), req.Messages, req.chatOptions())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitChatResponse{
		Message:      resp.Message,
		FinishReason: resp.FinishReason,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	})
}

// streamChat writes newline-delimited JSON StreamChunks as they arrive,
// flushing after each one. Clients that did not ask for stream=true never
// see this path.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req submitChatRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, canFlush := w.(http.Flusher)
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	for chunk, err := range s.llm.ChatStream(r.Context(), req.Messages, req.chatOptions()) {
		if err != nil {
			_ = enc.Encode(errorResponse{Error: err.Error(), Kind: swarm.KindOf(err)})
			_ = bw.Flush()
			return
		}
		_ = enc.Encode(chunk)
		_ = bw.Flush()
		if canFlush {
			flusher.Flush()
		}
	}
}
