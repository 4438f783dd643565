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
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer() *Server {
	return New(nil, nil, nil, nil, nil, nil, testLogger())
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.Router(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleAddDocumentsWithoutRAGStore(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/knowledge/documents", addDocumentsRequest{
		Documents: []struct {
			ID       string         `json:"id"`
			Content  string         `json:"content"`
			Metadata map[string]any `json:"metadata,omitempty"`
		}{{ID: "1", Content: "hello"}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, swarm.KindEmbeddingBackendUnavailable, resp.Kind)
}

func TestHandleSearchKnowledgeRejectsEmptyQuery(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/knowledge/search", searchKnowledgeRequest{Query: ""})
	// rag is nil, so the nil-store guard fires before the empty-query check.
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSubmitSwarmRejectsEmptyTask(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/swarm", submitSwarmRequest{Task: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, swarm.KindInvalidInput, resp.Kind)
}

func TestHandleInvokeToolWithoutToolHost(t *testing.T) {
	s := newTestServer()
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/tools/invoke", invokeToolRequest{Name: "whatever"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInvokeToolSuccess(t *testing.T) {
	host := toolhost.NewHost()
	require.NoError(t, host.Register(toolhost.Definition{
		Name:  "echo",
		Class: toolhost.ClassCodeExecution,
		Handler: func(ctx toolhost.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echoed": args["text"]}, nil
		},
	}))

	s := New(nil, nil, host, nil, nil, nil, testLogger())
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/tools/invoke", invokeToolRequest{
		Name:      "echo",
		Arguments: map[string]any{"text": "hi"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var result toolhost.ToolResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "hi", result.Content["echoed"])
}

func TestHandleInvokeToolUnknown(t *testing.T) {
	host := toolhost.NewHost()
	s := New(nil, nil, host, nil, nil, nil, testLogger())
	rec := doJSON(t, s.Router(), http.MethodPost, "/v1/tools/invoke", invokeToolRequest{Name: "nope"})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestStatusForKindCoversEveryKnownKind(t *testing.T) {
	kinds := []swarm.Kind{
		swarm.KindInvalidInput, swarm.KindBadRequest, swarm.KindAuthError,
		swarm.KindUnknownTool, swarm.KindPolicyDenied, swarm.KindToolTimeout,
		swarm.KindDeadlineExceeded, swarm.KindRateLimitTimeout, swarm.KindCircuitOpen,
		swarm.KindBackendUnavailable, swarm.KindEmbeddingBackendUnavailable,
		swarm.KindContextOverflow, swarm.KindEmbeddingDimensionMismatch,
		swarm.KindPlanInvalid, swarm.KindBudgetExhausted, swarm.KindSwarmInsufficientSuccesses,
		swarm.KindCancelled, swarm.KindToolError,
	}
	for _, k := range kinds {
		status := statusForKind(k)
		assert.NotEqual(t, http.StatusInternalServerError, status, "kind %s falls through to the default status", k)
	}
	assert.Equal(t, http.StatusInternalServerError, statusForKind(swarm.Kind("something_unmapped")))
}
