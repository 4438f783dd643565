package toolhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// ErrPolicyDenied is the sentinel a handler's validate step or resolver
// wraps its error with to mark a policy violation -- an allowlist miss, a
// traversal/symlink escape, an oversized read -- as distinct from an
// ordinary handler failure. Invoke unwraps it with errors.Is to classify
// the result policy_denied instead of tool_error, and never reaches the
// handler at all when the violation is caught by the host's own schema
// check.
var ErrPolicyDenied = errors.New("toolhost: policy denied")

// Host is the tool registry and dispatcher. Safe for concurrent use.
type Host struct {
	mu    sync.RWMutex
	tools map[string]Definition
}

// NewHost creates an empty Host.
func NewHost() *Host {
	return &Host{tools: make(map[string]Definition)}
}

// Register adds a tool definition. It is idempotent: re-registering the
// same name with a different Version replaces the existing definition;
// re-registering with the same (or empty) Version is a no-op returning
// nil, so a duplicate name replaces only when its Version differs.
func (h *Host) Register(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("toolhost: tool name cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("toolhost: tool %q has no handler", def.Name)
	}
	if err := def.Policy.Validate(); err != nil {
		return fmt.Errorf("toolhost: tool %q: %w", def.Name, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	existing, ok := h.tools[def.Name]
	if ok && existing.Version == def.Version {
		return nil
	}
	h.tools[def.Name] = def
	return nil
}

// List returns a summary of every registered tool.
func (h *Host) List() []Summary {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]Summary, 0, len(h.tools))
	for _, def := range h.tools {
		out = append(out, Summary{
			Name:          def.Name,
			Description:   def.Description,
			Class:         def.Class,
			Schema:        def.Schema,
			PolicySummary: def.Policy.Summary(),
		})
	}
	return out
}

// Definitions returns the raw tool definitions, used by the LLM Client to
// build the per-call tool schema list for an agent's allowlist.
func (h *Host) Definitions(names []string) []Definition {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if names == nil {
		out := make([]Definition, 0, len(h.tools))
		for _, def := range h.tools {
			out = append(out, def)
		}
		return out
	}

	out := make([]Definition, 0, len(names))
	for _, n := range names {
		if def, ok := h.tools[n]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Invoke looks up the tool, validates arguments against its schema,
// applies its policy, and runs the handler under a context bounded by the
// sooner of its own wall-clock cap (code-execution/web classes) and the
// caller's deadline. Schema failures never reach the handler. Handlers
// that reject a call on policy grounds -- an allowlist miss, a traversal
// escape, an oversized read -- signal it by wrapping ErrPolicyDenied,
// which Invoke classifies policy_denied; every other handler error is
// tool_error. Results are returned as part of the ToolResult rather than
// propagated to the caller.
func (h *Host) Invoke(ctx context.Context, agentID, taskID string, deadline time.Time, call ToolCall) ToolResult {
	h.mu.RLock()
	def, ok := h.tools[call.Name]
	h.mu.RUnlock()

	if !ok {
		return errResult(call.ID, swarm.KindUnknownTool, fmt.Sprintf("tool %q is not registered", call.Name))
	}

	if def.Schema != nil {
		if err := validateArgs(def.Schema, call.Arguments); err != nil {
			return errResult(call.ID, swarm.KindInvalidInput, err.Error())
		}
	}

	callDeadline := deadline
	if cap := classTimeout(def.Policy); cap > 0 {
		byCap := time.Now().Add(cap)
		if callDeadline.IsZero() || byCap.Before(callDeadline) {
			callDeadline = byCap
		}
	}

	callCtx := ctx
	var cancel context.CancelFunc
	if !callDeadline.IsZero() {
		callCtx, cancel = context.WithDeadline(ctx, callDeadline)
		defer cancel()
	}

	toolCtx := Context{Context: callCtx, AgentID: agentID, TaskID: taskID, Deadline: callDeadline}

	resultCh := make(chan ToolResult, 1)
	go func() {
		content, err := def.Handler(toolCtx, call.Arguments)
		if err != nil {
			if errors.Is(err, ErrPolicyDenied) {
				resultCh <- errResult(call.ID, swarm.KindPolicyDenied, err.Error())
				return
			}
			resultCh <- errResult(call.ID, swarm.KindToolError, err.Error())
			return
		}
		resultCh <- ToolResult{ToolCallID: call.ID, Content: content}
	}()

	select {
	case res := <-resultCh:
		return res
	case <-callCtx.Done():
		return errResult(call.ID, swarm.KindToolTimeout, "tool call exceeded its deadline")
	}
}

func classTimeout(p Policy) time.Duration {
	switch p.Class {
	case ClassCodeExecution:
		return p.WallClock
	case ClassWeb:
		return p.RequestTimeout
	case ClassDatabase:
		return p.QueryTime
	case ClassExternal:
		return p.RequestTimeout
	default:
		return 0
	}
}

func errResult(callID string, kind swarm.Kind, msg string) ToolResult {
	return ToolResult{ToolCallID: callID, Error: msg, ErrorKind: string(kind)}
}

// validateArgs checks args against the subset of JSON Schema the host's
// tool definitions actually use: required properties and basic scalar/
// array/object type tags. Tool schemas are produced by
// github.com/invopop/jsonschema (see functiontool) or hand-written for
// MCP-sourced tools, both of which stay within this subset, so a full
// schema-validation library is not needed here.
func validateArgs(schema map[string]any, args map[string]any) error {
	required, _ := schema["required"].([]any)
	for _, r := range required {
		name, _ := r.(string)
		if name == "" {
			continue
		}
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, raw := range args {
		propSchema, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		wantType, _ := propSchema["type"].(string)
		if wantType == "" {
			continue
		}
		if !matchesJSONType(wantType, raw) {
			return fmt.Errorf("argument %q: expected type %q", name, wantType)
		}
	}
	return nil
}

func matchesJSONType(want string, v any) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch n := v.(type) {
		case int, int64:
			return true
		case float64:
			return n == float64(int64(n))
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}
