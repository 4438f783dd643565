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
	"fmt"
	"net/http"
	"time"

	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

// invokeToolRequest is the body of POST /v1/tools/invoke.
type invokeToolRequest struct {
	Name           string         `json:"name"`
	Arguments      map[string]any `json:"arguments,omitempty"`
	TimeoutSeconds int            `json:"timeout_seconds,omitempty"`
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if s.tools == nil {
		writeError(w, swarm.NewError("server.handleInvokeTool", swarm.KindUnknownTool, fmt.Errorf("no tools are registered")))
		return
	}

	var req invokeToolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, swarm.NewError("server.handleInvokeTool", swarm.KindInvalidInput, err))
		return
	}
	if req.Name == "" {
		writeError(w, swarm.NewError("server.handleInvokeTool", swarm.KindInvalidInput, fmt.Errorf("name cannot be empty")))
		return
	}

	deadline := time.Time{}
	if req.TimeoutSeconds > 0 {
		deadline = time.Now().Add(time.Duration(req.TimeoutSeconds) * time.Second)
	}

	result := s.tools.Invoke(r.Context(), "http", newRequestID(), deadline, toolhost.ToolCall{
		ID:        newRequestID(),
		Name:      req.Name,
		Arguments: req.Arguments,
	})

	if result.Error != "" {
		writeError(w, swarm.NewError("server.handleInvokeTool", swarm.Kind(result.ErrorKind), fmt.Errorf("%s", result.Error)))
		return
	}

	writeJSON(w, http.StatusOK, result)
}
