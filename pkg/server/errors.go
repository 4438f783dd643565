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
	"net/http"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// errorResponse is the JSON body returned for every non-2xx response.
type errorResponse struct {
	Error string     `json:"error"`
	Kind  swarm.Kind `json:"kind"`
}

// statusForKind maps a classified swarm.Kind onto the HTTP status code the
// external caller sees. This mapping is deliberately kept outside the
// core: the core only ever classifies failures by Kind, never by status
// code, so a non-HTTP caller (a CLI, an internal RPC) never depends on it.
func statusForKind(kind swarm.Kind) int {
	switch kind {
	case swarm.KindInvalidInput, swarm.KindBadRequest:
		return http.StatusBadRequest
	case swarm.KindAuthError:
		return http.StatusUnauthorized
	case swarm.KindUnknownTool:
		return http.StatusNotFound
	case swarm.KindPolicyDenied:
		return http.StatusForbidden
	case swarm.KindToolTimeout, swarm.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case swarm.KindRateLimitTimeout, swarm.KindCircuitOpen, swarm.KindBackendUnavailable, swarm.KindEmbeddingBackendUnavailable:
		return http.StatusServiceUnavailable
	case swarm.KindContextOverflow, swarm.KindEmbeddingDimensionMismatch, swarm.KindPlanInvalid, swarm.KindBudgetExhausted:
		return http.StatusUnprocessableEntity
	case swarm.KindSwarmInsufficientSuccesses:
		return http.StatusUnprocessableEntity
	case swarm.KindCancelled:
		return 499 // client closed request, nginx convention
	case swarm.KindToolError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := swarm.KindOf(err)
	writeJSON(w, statusForKind(kind), errorResponse{Error: err.Error(), Kind: kind})
}
