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

// Package server wires the five inbound operations -- submit_chat,
// submit_swarm, add_documents, search_knowledge, and invoke_tool -- to a
// thin github.com/go-chi/chi router. It does no orchestration of its own:
// every handler is a direct adapter from an HTTP request onto the
// Coordinator, LLM Client, RAG Store, or Tool Host, translating a
// classified *swarm.Error into the matching HTTP status code.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/swarmhive/swarmd/pkg/coordinator"
	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/ragstore"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

// Server holds the core components each handler adapts to HTTP.
type Server struct {
	llm         *llmclient.Client
	coordinator *coordinator.Coordinator
	tools       *toolhost.Host
	rag         *ragstore.Store

	tracer  *observability.Tracer
	metrics *observability.Metrics

	log *slog.Logger
}

// New builds a Server. Any of rag/tools may be nil if the corresponding
// component was not configured. With a nil rag the knowledge routes answer
// 503 (embedding_backend_unavailable); with a nil tools /v1/tools/invoke
// answers 404 (unknown_tool).
func New(llm *llmclient.Client, coord *coordinator.Coordinator, tools *toolhost.Host, rag *ragstore.Store, tracer *observability.Tracer, metrics *observability.Metrics, log *slog.Logger) *Server {
	return &Server{llm: llm, coordinator: coord, tools: tools, rag: rag, tracer: tracer, metrics: metrics, log: log}
}

// Router builds the chi router exposing the five inbound operations under
// /v1.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	if s.metrics != nil {
		r.Use(s.recordMetrics)
	}

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleSubmitChat)
		r.Post("/swarm", s.handleSubmitSwarm)
		r.Post("/knowledge/documents", s.handleAddDocuments)
		r.Post("/knowledge/search", s.handleSearchKnowledge)
		r.Post("/tools/invoke", s.handleInvokeTool)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start), r.ContentLength, int64(ww.BytesWritten()))
	})
}

func newRequestID() string {
	return uuid.NewString()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
