package llmclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

func testTracer(t *testing.T) *observability.Tracer {
	t.Helper()
	tracer, err := observability.NewTracer(context.Background(), &observability.TracingConfig{
		ServiceName:    "llmclient-test",
		ServiceVersion: "test",
		Exporter:       "stdout",
		SamplingRate:   0,
	})
	require.NoError(t, err)
	return tracer
}

func TestOllamaBackendChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message:         ollamaMessage{Role: "assistant", Content: "hi there"},
			Done:            true,
			DoneReason:      "stop",
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL})
	client := New(backend, Config{}, testTracer(t), nil)

	resp, err := client.Chat(context.Background(), []swarm.Message{
		{Role: swarm.RoleUser, Content: "hello"},
	}, ChatOptions{Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Message.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
}

func TestClientOpensCircuitAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL, MaxRetries: 1})
	client := New(backend, Config{
		MaxRetries:              0,
		BreakerFailureThreshold: 2,
		BreakerCooldown:         time.Minute,
	}, testTracer(t), nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := client.Chat(ctx, []swarm.Message{{Role: swarm.RoleUser, Content: "x"}}, ChatOptions{Model: "m"})
		require.Error(t, err)
	}

	_, err := client.Chat(ctx, []swarm.Message{{Role: swarm.RoleUser, Content: "x"}}, ChatOptions{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, swarm.KindCircuitOpen, swarm.KindOf(err))
}

func TestOllamaBackendChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		chunks := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "Hel"}},
			{Message: ollamaMessage{Content: "lo"}},
			{Done: true, DoneReason: "stop"},
		}
		for _, c := range chunks {
			json.NewEncoder(w).Encode(c)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL})
	client := New(backend, Config{}, testTracer(t), nil)

	var text string
	for chunk, err := range client.ChatStream(context.Background(), []swarm.Message{
		{Role: swarm.RoleUser, Content: "hi"},
	}, ChatOptions{Model: "llama3"}) {
		require.NoError(t, err)
		text += chunk.TextDelta
	}
	assert.Equal(t, "Hello", text)
}

func TestOllamaBackendChatStreamEarlyStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		chunks := []ollamaChatResponse{
			{Message: ollamaMessage{Content: "a"}},
			{Message: ollamaMessage{Content: "b"}},
			{Message: ollamaMessage{Content: "c"}},
			{Done: true},
		}
		for _, c := range chunks {
			json.NewEncoder(w).Encode(c)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL})
	client := New(backend, Config{}, testTracer(t), nil)

	var seen int
	for range client.ChatStream(context.Background(), []swarm.Message{
		{Role: swarm.RoleUser, Content: "hi"},
	}, ChatOptions{Model: "llama3"}) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestOpenAIBackendChatWithToolCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(openAIChatResponse{
			Choices: []openAIChoice{
				{
					Message: openAIMessage{
						Role: "assistant",
						ToolCalls: []openAIToolCall{
							{ID: "call_1", Type: "function", Function: openAIFunctionCall{Name: "search", Arguments: `{"query":"go"}`}},
						},
					},
					FinishReason: "tool_calls",
				},
			},
			Usage: openAIUsage{PromptTokens: 20, CompletionTokens: 8},
		})
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "sk-test"})
	client := New(backend, Config{}, testTracer(t), nil)

	resp, err := client.Chat(context.Background(), []swarm.Message{
		{Role: swarm.RoleUser, Content: "search for go"},
	}, ChatOptions{Model: "gpt-4o"})
	require.NoError(t, err)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.Equal(t, "search", resp.Message.ToolCalls[0].Name)
	assert.Equal(t, "go", resp.Message.ToolCalls[0].Arguments["query"])
}

func TestOpenAIBackendAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(openAIChatResponse{
			Error: &openAIAPIError{Message: "invalid api key", Type: "invalid_request_error"},
		})
	}))
	defer srv.Close()

	backend := NewOpenAIBackend(OpenAIConfig{BaseURL: srv.URL, APIKey: "bad", MaxRetries: 1})
	client := New(backend, Config{MaxRetries: 0}, testTracer(t), nil)

	_, err := client.Chat(context.Background(), []swarm.Message{{Role: swarm.RoleUser, Content: "x"}}, ChatOptions{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, swarm.KindAuthError, swarm.KindOf(err))
}

func TestClientConcurrencySemaphoreBlocksExcessCallers(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		json.NewEncoder(w).Encode(ollamaChatResponse{Message: ollamaMessage{Content: "ok"}, Done: true})
	}))
	defer srv.Close()

	backend := NewOllamaBackend(OllamaConfig{BaseURL: srv.URL})
	client := New(backend, Config{Concurrency: 1, RateLimit: 1000, RateBurst: 1000}, testTracer(t), nil)

	done := make(chan struct{})
	go func() {
		_, _ = client.Chat(context.Background(), []swarm.Message{{Role: swarm.RoleUser, Content: "x"}}, ChatOptions{Model: "m"})
		done <- struct{}{}
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first call never started")
	}

	secondStarted := make(chan struct{})
	go func() {
		_, _ = client.Chat(context.Background(), []swarm.Message{{Role: swarm.RoleUser, Content: "y"}}, ChatOptions{Model: "m"})
		close(secondStarted)
	}()

	select {
	case <-secondStarted:
		t.Fatal("second call should have been blocked by the concurrency semaphore")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	<-secondStarted
}
