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

// Package knowledgetool implements the knowledge tool class: rag_search
// and rag_add, both thin adapters over a ragstore.Store.
package knowledgetool

import (
	"fmt"

	"github.com/swarmhive/swarmd/pkg/ragstore"
	"github.com/swarmhive/swarmd/pkg/toolhost"
	"github.com/swarmhive/swarmd/pkg/toolhost/functiontool"
)

// SearchArgs defines the parameters for rag_search.
type SearchArgs struct {
	Query  string         `json:"query" jsonschema:"required,description=Natural-language search query"`
	K      int            `json:"k,omitempty" jsonschema:"description=Number of results to return,minimum=1,maximum=100,default=5"`
	Filter map[string]any `json:"filter,omitempty" jsonschema:"description=Metadata key/value pairs every result must match"`
}

// AddArgs defines the parameters for rag_add.
type AddArgs struct {
	Documents []AddDocument `json:"documents" jsonschema:"required,description=Documents to embed and persist"`
}

// AddDocument is one document to add.
type AddDocument struct {
	ID       string         `json:"id" jsonschema:"required,description=Stable document id"`
	Content  string         `json:"content" jsonschema:"required,description=Document text to embed"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"description=Arbitrary metadata, searchable via Filter"`
}

// NewRAGSearch builds the rag_search tool definition over store.
func NewRAGSearch(store *ragstore.Store) (toolhost.Definition, error) {
	return functiontool.New(
		functiontool.Config{
			Name:        "rag_search",
			Description: "Search the knowledge store for documents similar to a query.",
			Class:       toolhost.ClassKnowledge,
			Policy:      toolhost.Policy{Class: toolhost.ClassKnowledge},
		},
		func(ctx toolhost.Context, args SearchArgs) (map[string]any, error) {
			k := args.K
			if k <= 0 {
				k = 5
			}

			var filter ragstore.FilterFunc
			if len(args.Filter) > 0 {
				filter = func(metadata map[string]any) bool {
					for key, want := range args.Filter {
						if metadata[key] != want {
							return false
						}
					}
					return true
				}
			}

			hits, err := store.Search(ctx, args.Query, k, filter)
			if err != nil {
				return nil, err
			}

			results := make([]map[string]any, 0, len(hits))
			for _, h := range hits {
				results = append(results, map[string]any{
					"id":       h.ID,
					"content":  h.Content,
					"metadata": h.Metadata,
					"score":    h.Score,
				})
			}
			return map[string]any{"results": results, "count": len(results)}, nil
		},
	)
}

// NewRAGAdd builds the rag_add tool definition over store.
func NewRAGAdd(store *ragstore.Store) (toolhost.Definition, error) {
	return functiontool.NewWithValidation(
		functiontool.Config{
			Name:        "rag_add",
			Description: "Embed and persist one or more documents in the knowledge store.",
			Class:       toolhost.ClassKnowledge,
			Policy:      toolhost.Policy{Class: toolhost.ClassKnowledge},
		},
		func(ctx toolhost.Context, args AddArgs) (map[string]any, error) {
			docs := make([]ragstore.Document, len(args.Documents))
			for i, d := range args.Documents {
				docs[i] = ragstore.Document{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
			}

			added, err := store.Add(ctx, docs)
			if err != nil {
				return nil, err
			}
			return map[string]any{"added": added, "skipped": len(docs) - added}, nil
		},
		func(args AddArgs) error {
			if len(args.Documents) == 0 {
				return fmt.Errorf("documents cannot be empty")
			}
			return nil
		},
	)
}
