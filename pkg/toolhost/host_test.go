package toolhost

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

func echoDef() Definition {
	return Definition{
		Name:        "echo",
		Description: "echoes its input",
		Class:       ClassWeb,
		Schema: map[string]any{
			"type":       "object",
			"required":   []any{"text"},
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
		},
		Policy: Policy{Class: ClassWeb, RequestTimeout: time.Second},
		Handler: func(ctx Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"echo": args["text"]}, nil
		},
	}
}

func TestRegisterIdempotent(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.Register(echoDef()))
	require.NoError(t, h.Register(echoDef())) // same version, no-op
	assert.Len(t, h.List(), 1)

	def := echoDef()
	def.Version = "v2"
	require.NoError(t, h.Register(def))
	assert.Len(t, h.List(), 1)
}

func TestInvokeSuccess(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.Register(echoDef()))

	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{
		ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"},
	})
	require.Empty(t, res.Error)
	assert.Equal(t, "hi", res.Content["echo"])
}

func TestInvokeMissingRequiredArg(t *testing.T) {
	h := NewHost()
	require.NoError(t, h.Register(echoDef()))

	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{
		ID: "call-1", Name: "echo", Arguments: map[string]any{},
	})
	assert.Equal(t, string(swarm.KindInvalidInput), res.ErrorKind)
}

func TestInvokeUnknownTool(t *testing.T) {
	h := NewHost()
	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{ID: "c", Name: "nope"})
	assert.Equal(t, string(swarm.KindUnknownTool), res.ErrorKind)
}

func TestInvokeClassifiesPolicyDenied(t *testing.T) {
	h := NewHost()
	def := echoDef()
	def.Handler = func(ctx Context, args map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("path escapes allowed root: %w", ErrPolicyDenied)
	}
	require.NoError(t, h.Register(def))

	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{
		ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"},
	})
	assert.Equal(t, string(swarm.KindPolicyDenied), res.ErrorKind)
	assert.Contains(t, res.Error, "path escapes allowed root")
}

func TestInvokeClassifiesOrdinaryHandlerErrorAsToolError(t *testing.T) {
	h := NewHost()
	def := echoDef()
	def.Handler = func(ctx Context, args map[string]any) (map[string]any, error) {
		return nil, fmt.Errorf("backend exploded")
	}
	require.NoError(t, h.Register(def))

	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{
		ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"},
	})
	assert.Equal(t, string(swarm.KindToolError), res.ErrorKind)
}

func TestInvokeTimeout(t *testing.T) {
	h := NewHost()
	def := echoDef()
	def.Policy.RequestTimeout = 10 * time.Millisecond
	def.Handler = func(ctx Context, args map[string]any) (map[string]any, error) {
		select {
		case <-time.After(time.Second):
			return map[string]any{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	require.NoError(t, h.Register(def))

	res := h.Invoke(context.Background(), "agent-1", "task-1", time.Time{}, ToolCall{
		ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"},
	})
	assert.Equal(t, string(swarm.KindToolTimeout), res.ErrorKind)
}
