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

	"github.com/swarmhive/swarmd/pkg/ragstore"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// addDocumentsRequest is the body of POST /v1/knowledge/documents.
type addDocumentsRequest struct {
	Documents []struct {
		ID       string         `json:"id"`
		Content  string         `json:"content"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"documents"`
}

type addDocumentsResponse struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, swarm.NewError("server.handleAddDocuments", swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("rag store is not configured")))
		return
	}

	var req addDocumentsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, swarm.NewError("server.handleAddDocuments", swarm.KindInvalidInput, err))
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, swarm.NewError("server.handleAddDocuments", swarm.KindInvalidInput, fmt.Errorf("documents cannot be empty")))
		return
	}

	docs := make([]ragstore.Document, len(req.Documents))
	for i, d := range req.Documents {
		docs[i] = ragstore.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	}

	added, err := s.rag.Add(r.Context(), docs)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, addDocumentsResponse{Added: added, Skipped: len(docs) - added})
}

// searchKnowledgeRequest is the body of POST /v1/knowledge/search.
type searchKnowledgeRequest struct {
	Query  string         `json:"query"`
	K      int            `json:"k,omitempty"`
	Filter map[string]any `json:"filter,omitempty"`
}

type searchKnowledgeResponse struct {
	Results []ragstore.SearchHit `json:"results"`
}

func (s *Server) handleSearchKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.rag == nil {
		writeError(w, swarm.NewError("server.handleSearchKnowledge", swarm.KindEmbeddingBackendUnavailable, fmt.Errorf("rag store is not configured")))
		return
	}

	var req searchKnowledgeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, swarm.NewError("server.handleSearchKnowledge", swarm.KindInvalidInput, err))
		return
	}
	if req.Query == "" {
		writeError(w, swarm.NewError("server.handleSearchKnowledge", swarm.KindInvalidInput, fmt.Errorf("query cannot be empty")))
		return
	}
	k := req.K
	if k <= 0 {
		k = 5
	}

	var filter ragstore.FilterFunc
	if len(req.Filter) > 0 {
		filter = func(metadata map[string]any) bool {
			for key, want := range req.Filter {
				if metadata[key] != want {
					return false
				}
			}
			return true
		}
	}

	hits, err := s.rag.Search(r.Context(), req.Query, k, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchKnowledgeResponse{Results: hits})
}
