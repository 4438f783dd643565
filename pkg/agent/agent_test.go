package agent

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testTracer(t *testing.T) *observability.Tracer {
	t.Helper()
	tracer, err := observability.NewTracer(context.Background(), &observability.TracingConfig{
		ServiceName:    "agent-test",
		ServiceVersion: "test",
		Exporter:       "stdout",
		SamplingRate:   0,
	})
	require.NoError(t, err)
	return tracer
}

// scriptedBackend replays a fixed sequence of responses, one per Chat call,
// and panics if called more times than scripted -- tests exercise exactly
// the turn count they set up.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []llmclient.ChatResponse
	calls     int
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Chat(ctx context.Context, messages []swarm.Message, opts llmclient.ChatOptions) (llmclient.ChatResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.calls >= len(b.responses) {
		panic("scriptedBackend: more Chat calls than scripted responses")
	}
	resp := b.responses[b.calls]
	b.calls++
	return resp, nil
}

func (b *scriptedBackend) ChatStream(ctx context.Context, messages []swarm.Message, opts llmclient.ChatOptions) iter.Seq2[llmclient.StreamChunk, error] {
	return func(yield func(llmclient.StreamChunk, error) bool) {}
}

func newTestRunner(t *testing.T, backend llmclient.Backend, tools *toolhost.Host) *Runner {
	t.Helper()
	client := llmclient.New(backend, llmclient.Config{}, testTracer(t), nil)
	if tools == nil {
		tools = toolhost.NewHost()
	}
	return NewRunner(client, tools, Config{Model: "test-model"}, testTracer(t), nil)
}

func echoToolDef(delay time.Duration) toolhost.Definition {
	return toolhost.Definition{
		Name:        "echo",
		Description: "echoes its input after an optional delay",
		Class:       toolhost.ClassWeb,
		Schema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
		},
		Policy: toolhost.Policy{Class: toolhost.ClassWeb, RequestTimeout: time.Second},
		Handler: func(ctx toolhost.Context, args map[string]any) (map[string]any, error) {
			if delay > 0 {
				time.Sleep(delay)
			}
			return map[string]any{"echo": args["text"]}, nil
		},
	}
}

func TestRunDoneWhenNoToolCalls(t *testing.T) {
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{
		{Message: swarm.Message{Role: swarm.RoleAssistant, Content: "final answer"}, FinishReason: "stop"},
	}}
	runner := newTestRunner(t, backend, nil)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "writer"})
	runner.Run(context.Background(), a, "you are a writer", "write something", time.Time{})

	assert.Equal(t, swarm.AgentDone, a.Status)
	assert.Equal(t, "final answer", a.Result)
	assert.Equal(t, 1, a.Turns)
	// system + user + assistant
	require.Len(t, a.Transcript.Messages, 3)
	assert.Equal(t, swarm.RoleSystem, a.Transcript.Messages[0].Role)
	assert.Equal(t, swarm.RoleUser, a.Transcript.Messages[1].Role)
	assert.Equal(t, swarm.RoleAssistant, a.Transcript.Messages[2].Role)
}

func TestRunFailsWithBudgetExhaustedOnMaxTurns(t *testing.T) {
	toolCallResp := llmclient.ChatResponse{
		Message: swarm.Message{
			Role:      swarm.RoleAssistant,
			ToolCalls: []swarm.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}}},
		},
	}
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{toolCallResp}}

	tools := toolhost.NewHost()
	require.NoError(t, tools.Register(echoToolDef(0)))
	runner := newTestRunner(t, backend, tools)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker", MaxTurns: 1, AllowedTools: []string{"echo"}})
	runner.Run(context.Background(), a, "sys", "task", time.Time{})

	require.Equal(t, swarm.AgentFailed, a.Status)
	assert.Contains(t, a.Err, "exceeded max turn count")
	assert.Equal(t, 1, a.Turns)
}

func TestRunFailsWithBudgetExhaustedOnMaxTokens(t *testing.T) {
	toolCallResp := llmclient.ChatResponse{
		Message: swarm.Message{
			Role:      swarm.RoleAssistant,
			ToolCalls: []swarm.ToolCall{{ID: "c1", Name: "echo", Arguments: map[string]any{"text": "hi"}}},
		},
		InputTokens:  50,
		OutputTokens: 60,
	}
	doneResp := llmclient.ChatResponse{
		Message: swarm.Message{Role: swarm.RoleAssistant, Content: "should not get here"},
	}
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{toolCallResp, doneResp}}

	tools := toolhost.NewHost()
	require.NoError(t, tools.Register(echoToolDef(0)))
	runner := newTestRunner(t, backend, tools)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker", MaxTokens: 100, AllowedTools: []string{"echo"}})
	runner.Run(context.Background(), a, "sys", "task", time.Time{})

	require.Equal(t, swarm.AgentFailed, a.Status)
	assert.Contains(t, a.Err, "exceeded token budget")
	assert.Equal(t, 1, a.Turns)
	assert.Equal(t, 110, a.TokensUsed)
}

func TestRunAppendsToolResultsInEmissionOrderNotCompletionOrder(t *testing.T) {
	// "slow" is emitted first but finishes second; "fast" is emitted
	// second but finishes first. The transcript must still read
	// slow-then-fast, matching emission order.
	toolCallResp := llmclient.ChatResponse{
		Message: swarm.Message{
			Role: swarm.RoleAssistant,
			ToolCalls: []swarm.ToolCall{
				{ID: "call-slow", Name: "slow", Arguments: map[string]any{"text": "s"}},
				{ID: "call-fast", Name: "fast", Arguments: map[string]any{"text": "f"}},
			},
		},
	}
	doneResp := llmclient.ChatResponse{
		Message: swarm.Message{Role: swarm.RoleAssistant, Content: "done"},
	}
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{toolCallResp, doneResp}}

	tools := toolhost.NewHost()
	slow := echoToolDef(30 * time.Millisecond)
	slow.Name = "slow"
	fast := echoToolDef(0)
	fast.Name = "fast"
	require.NoError(t, tools.Register(slow))
	require.NoError(t, tools.Register(fast))
	runner := newTestRunner(t, backend, tools)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker", AllowedTools: []string{"slow", "fast"}})
	runner.Run(context.Background(), a, "sys", "task", time.Time{})

	require.Equal(t, swarm.AgentDone, a.Status)
	// system, user, assistant(tool calls), tool(slow), tool(fast), assistant(done)
	require.Len(t, a.Transcript.Messages, 6)
	assert.Equal(t, "call-slow", a.Transcript.Messages[3].ToolCallID)
	assert.Equal(t, "call-fast", a.Transcript.Messages[4].ToolCallID)
}

func TestRunCancelledBeforeFirstTurn(t *testing.T) {
	backend := &scriptedBackend{} // no responses scripted: a call would panic
	runner := newTestRunner(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker"})
	runner.Run(ctx, a, "sys", "task", time.Time{})

	assert.Equal(t, swarm.AgentCancelled, a.Status)
}

func TestRunFoldsToolErrorIntoTranscriptAndContinues(t *testing.T) {
	toolCallResp := llmclient.ChatResponse{
		Message: swarm.Message{
			Role:      swarm.RoleAssistant,
			ToolCalls: []swarm.ToolCall{{ID: "c1", Name: "read_file", Arguments: map[string]any{}}},
		},
	}
	doneResp := llmclient.ChatResponse{
		Message: swarm.Message{Role: swarm.RoleAssistant, Content: "finished despite tool error"},
	}
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{toolCallResp, doneResp}}

	// read_file is allowed but never registered on this host, so the host
	// itself reports unknown_tool.
	tools := toolhost.NewHost()
	runner := newTestRunner(t, backend, tools)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker", AllowedTools: []string{"read_file"}})
	runner.Run(context.Background(), a, "sys", "task", time.Time{})

	require.Equal(t, swarm.AgentDone, a.Status)
	assert.Equal(t, "finished despite tool error", a.Result)

	toolMsg := a.Transcript.Messages[3]
	assert.Equal(t, swarm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "not registered")
}

// TestRunDeniesToolCallOutsideAllowedTools covers S6: an agent's
// allowlist is {read_file}, but the LLM emits a call to a
// globally-registered tool outside that allowlist. dispatchTools must
// deny it in place rather than ever reaching the host, so the sensitive
// tool's handler never runs.
func TestRunDeniesToolCallOutsideAllowedTools(t *testing.T) {
	toolCallResp := llmclient.ChatResponse{
		Message: swarm.Message{
			Role:      swarm.RoleAssistant,
			ToolCalls: []swarm.ToolCall{{ID: "c1", Name: "run_command", Arguments: map[string]any{}}},
		},
	}
	doneResp := llmclient.ChatResponse{
		Message: swarm.Message{Role: swarm.RoleAssistant, Content: "finished despite denied tool"},
	}
	backend := &scriptedBackend{responses: []llmclient.ChatResponse{toolCallResp, doneResp}}

	handlerRan := false
	tools := toolhost.NewHost()
	require.NoError(t, tools.Register(toolhost.Definition{
		Name:  "run_command",
		Class: toolhost.ClassCodeExecution,
		Handler: func(ctx toolhost.Context, args map[string]any) (map[string]any, error) {
			handlerRan = true
			return map[string]any{}, nil
		},
	}))
	runner := newTestRunner(t, backend, tools)

	a := swarm.NewAgent("task-1", swarm.AgentSpec{Role: "worker", AllowedTools: []string{"read_file"}})
	runner.Run(context.Background(), a, "sys", "task", time.Time{})

	require.Equal(t, swarm.AgentDone, a.Status)
	assert.False(t, handlerRan, "a disallowed tool's handler must never run")

	toolMsg := a.Transcript.Messages[3]
	assert.Equal(t, swarm.RoleTool, toolMsg.Role)
	assert.Contains(t, toolMsg.Content, "not in this agent's allowed_tools")
}
