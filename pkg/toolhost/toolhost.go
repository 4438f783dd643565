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

// Package toolhost maintains a registry of named tools and executes
// ToolCall -> ToolResult subject to per-tool-class policy: filesystem
// read/write, database, code execution, web, knowledge, and image
// generation. The host checks a call's arguments against the tool's schema
// and applies the class timeout; the remaining policy bounds (roots,
// allowlists, size caps) are checked by each tool's handler, which wraps
// ErrPolicyDenied when one is exceeded.
package toolhost

import (
	"context"
	"time"
)

// Context carries per-invocation identity and the remaining deadline
// through to a tool handler.
type Context struct {
	context.Context

	AgentID  string
	TaskID   string
	Deadline time.Time
}

// Class identifies one of the tool-class policy buckets.
type Class string

const (
	ClassFilesystemRead  Class = "filesystem_read"
	ClassFilesystemWrite Class = "filesystem_write"
	ClassDatabase        Class = "database"
	ClassCodeExecution   Class = "code_execution"
	ClassWeb             Class = "web"
	ClassKnowledge       Class = "knowledge"
	ClassImageGeneration Class = "image_generation"
	ClassExternal        Class = "external"
)

// Handler executes a tool's logic once policy has allowed the call.
type Handler func(ctx Context, args map[string]any) (map[string]any, error)

// Definition is everything the host needs to register, validate, and
// describe a tool to the LLM Client.
type Definition struct {
	Name        string
	Description string
	Class       Class
	Schema      map[string]any // JSON Schema for arguments; nil means no arguments
	Handler     Handler
	Policy      Policy
	Version     string // optional; used to decide whether re-registration replaces the tool
}

// ToolCall is an LLM's request to invoke a named tool.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolResult is the outcome of executing a ToolCall. Exactly one of
// Content/Error is meaningful: a policy or handler failure sets Error and
// leaves Content empty.
type ToolResult struct {
	ToolCallID string
	Content    map[string]any
	Error      string
	ErrorKind  string
	Metadata   map[string]any
}

// Summary describes a registered tool for List().
type Summary struct {
	Name          string
	Description   string
	Class         Class
	Schema        map[string]any
	PolicySummary string
}
