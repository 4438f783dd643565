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

// Package swarm holds the data model shared by the LLM client, tool host,
// RAG store, agent, and coordinator: messages, transcripts, tasks, agent
// specs, tool calls/results, documents, search hits, and circuit state.
package swarm

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the speaker of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents an LLM's request to invoke a named tool with arguments.
// ToolCalls are owned by the Message that emitted them; ID is unique within
// a Transcript and is echoed back by the matching ToolResult.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Content    string         `json:"content"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Message is one turn in a Transcript.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on RoleTool messages
	Name       string     `json:"name,omitempty"`
	Tokens     int        `json:"tokens,omitempty"`
}

// Transcript is the append-only ordered history of a single Agent's turns.
// Messages are appended in LLM-emission order, never completion order: when
// several tool calls are dispatched in parallel, their ToolResult messages
// are appended in the order the calls appeared in the assistant message that
// requested them, regardless of which tool finished executing first.
type Transcript struct {
	Messages []Message `json:"messages"`
}

// Append adds a message to the end of the transcript.
func (t *Transcript) Append(m Message) {
	t.Messages = append(t.Messages, m)
}

// TaskStatus is the lifecycle state of a Task submitted to the coordinator.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskDone      TaskStatus = "done"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Topology selects how a Task's agents are orchestrated.
type Topology string

const (
	TopologyStar      Topology = "star"       // plan -> N parallel agents -> merge
	TopologyMapReduce Topology = "map_reduce" // map spec + reduce spec
)

// Task is a unit of work submitted to the Swarm Coordinator. A Task owns
// the AgentSpecs it spawns and the merged result; it does not outlive the
// process (no cross-process durability, per design Non-goals).
type Task struct {
	ID        string     `json:"id"`
	Prompt    string     `json:"prompt"`
	Context   []string   `json:"context,omitempty"` // optional shardable context, used by map-reduce
	Topology  Topology   `json:"topology"`
	MaxAgents int        `json:"max_agents,omitempty"`
	Deadline  time.Time  `json:"deadline,omitempty"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	Result    string     `json:"result,omitempty"`
	Partial   bool       `json:"partial,omitempty"`
	Err       string     `json:"error,omitempty"`

	AgentReports []AgentReport `json:"agent_reports,omitempty"`
}

// AgentReport summarizes one spawned agent's outcome for a Task's
// external-facing result, independent of the agent's full Transcript.
type AgentReport struct {
	AgentID string      `json:"agent_id"`
	Role    string      `json:"role"`
	Status  AgentStatus `json:"status"`
	Err     string      `json:"error,omitempty"`
}

// NewTask constructs a pending Task with a fresh id.
func NewTask(prompt string, topology Topology) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Topology:  topology,
		Status:    TaskPending,
		CreatedAt: time.Now(),
	}
}

// AgentSpec describes one agent the coordinator should spawn for a Task:
// its role/instructions, the tool classes it may use, and its resource
// budget. AgentSpecs are produced by the planner turn (star topology) or
// derived directly from the map spec (map-reduce topology).
type AgentSpec struct {
	ID            string   `json:"id"`
	Role          string   `json:"role"`
	Instructions  string   `json:"instructions"`
	AllowedTools  []string `json:"allowed_tools,omitempty"`
	MaxTurns      int      `json:"max_turns"`
	MaxTokens     int      `json:"max_tokens"`
	InputDocument string   `json:"input_document,omitempty"` // map-reduce: the shard this agent maps over
}

// AgentStatus is the lifecycle state of a running Agent instance.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentToolWait  AgentStatus = "tool_wait"
	AgentDone      AgentStatus = "done"
	AgentFailed    AgentStatus = "failed"
	AgentCancelled AgentStatus = "cancelled"
)

// Agent is one spawned worker executing an AgentSpec against a Transcript.
type Agent struct {
	ID         string      `json:"id"`
	TaskID     string      `json:"task_id"`
	Spec       AgentSpec   `json:"spec"`
	Status     AgentStatus `json:"status"`
	Transcript Transcript  `json:"transcript"`
	Turns      int         `json:"turns"`
	TokensUsed int         `json:"tokens_used"`
	Result     string      `json:"result,omitempty"`
	Err        string      `json:"error,omitempty"`
}

// NewAgent constructs a pending Agent for the given task and spec.
func NewAgent(taskID string, spec AgentSpec) *Agent {
	return &Agent{
		ID:     uuid.NewString(),
		TaskID: taskID,
		Spec:   spec,
		Status: AgentPending,
	}
}

// Document is a unit of content indexed into the RAG store alongside its
// embedding. Metadata supports filter predicates at search time.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SearchHit is one result of a RAG store similarity search, ordered by
// descending Score; ties break on ascending ID for deterministic ordering.
type SearchHit struct {
	Document Document `json:"document"`
	Score    float32  `json:"score"`
}

// CircuitState is the three-state classification of an LLM Client circuit
// breaker: Closed (normal), Open (rejecting calls), HalfOpen (probing after
// cooldown).
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}
