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

// Package functiontool builds toolhost.Definitions from a typed Go
// function: the argument struct's JSON schema is derived once at
// registration time and its fields are decoded from the raw
// map[string]any the host hands the handler.
package functiontool

import (
	"fmt"

	"github.com/swarmhive/swarmd/pkg/toolhost"
)

// Config names and describes the tool being built.
type Config struct {
	Name        string
	Description string
	Class       toolhost.Class
	Policy      toolhost.Policy
	Version     string
}

// New builds a toolhost.Definition whose handler decodes its arguments
// into Args before calling fn.
func New[Args any](cfg Config, fn func(toolhost.Context, Args) (map[string]any, error)) (toolhost.Definition, error) {
	return NewWithValidation(cfg, fn, nil)
}

// NewWithValidation is New plus a validate callback run against the
// decoded Args before fn is invoked. A non-nil error from validate is
// folded into the same ToolResult path as an error from fn: the host
// classifies it policy_denied if it wraps toolhost.ErrPolicyDenied, and
// tool_error otherwise.
func NewWithValidation[Args any](cfg Config, fn func(toolhost.Context, Args) (map[string]any, error), validate func(Args) error) (toolhost.Definition, error) {
	if cfg.Name == "" {
		return toolhost.Definition{}, fmt.Errorf("functiontool: name is required")
	}
	if fn == nil {
		return toolhost.Definition{}, fmt.Errorf("functiontool: fn is required")
	}

	schema, err := generateSchema[Args]()
	if err != nil {
		return toolhost.Definition{}, fmt.Errorf("functiontool: %s: %w", cfg.Name, err)
	}

	handler := func(ctx toolhost.Context, args map[string]any) (map[string]any, error) {
		var typed Args
		if err := mapToStruct(args, &typed); err != nil {
			return nil, err
		}
		if validate != nil {
			if err := validate(typed); err != nil {
				return nil, err
			}
		}
		return fn(ctx, typed)
	}

	return toolhost.Definition{
		Name:        cfg.Name,
		Description: cfg.Description,
		Class:       cfg.Class,
		Schema:      schema,
		Handler:     handler,
		Policy:      cfg.Policy,
		Version:     cfg.Version,
	}, nil
}
