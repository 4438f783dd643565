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

// Package llmclient is the single point of contact every Agent and the
// Coordinator share to talk to an LLM backend: retry with jitter, a
// circuit breaker, a token-bucket rate limiter, and a concurrency
// semaphore all gate one underlying Backend. The semaphore is the
// system's single global throttle -- agent fan-out naturally queues
// behind it.
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/swarmhive/swarmd/pkg/circuitbreaker"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// ToolSchema describes one tool the model may call, in the shape a
// Backend's wire format expects.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatOptions controls one chat/chat_stream call.
type ChatOptions struct {
	Model           string
	MaxTokens       int
	Temperature     float64
	TopP            float64
	Tools           []ToolSchema
	StructuredOutput map[string]any // JSON schema the response content must satisfy; nil means unconstrained
}

// ChatResponse is one complete LLM turn.
type ChatResponse struct {
	Message      swarm.Message
	FinishReason string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one piece of a streamed response: either a text delta
// or a tool-call delta, never both.
type StreamChunk struct {
	TextDelta string
	ToolCall  *swarm.ToolCall
}

// Backend is the wire-level contract a concrete LLM provider implements.
// Client never calls a Backend directly from agent/coordinator code --
// all calls go through Client so retry/breaker/limiter/semaphore apply
// uniformly regardless of backend.
type Backend interface {
	Name() string
	Chat(ctx context.Context, messages []swarm.Message, opts ChatOptions) (ChatResponse, error)
	ChatStream(ctx context.Context, messages []swarm.Message, opts ChatOptions) iter.Seq2[StreamChunk, error]
}

// Config controls retry, breaker, rate-limit, and concurrency behavior
// shared by every backend a Client wraps.
type Config struct {
	MaxRetries int           // R
	BaseDelay  time.Duration // base
	MaxDelay   time.Duration // cap

	BreakerFailureThreshold int
	BreakerSuccessThreshold int
	BreakerCooldown         time.Duration // T

	RateLimit rate.Limit // r, tokens/sec
	RateBurst int        // b

	Concurrency int // C
}

func (c *Config) setDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.BreakerFailureThreshold <= 0 {
		c.BreakerFailureThreshold = 5
	}
	if c.BreakerSuccessThreshold <= 0 {
		c.BreakerSuccessThreshold = 1
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 10
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
}

// Client is the LLM Client: a Backend wrapped in the resilience stack
// every caller shares. Safe for concurrent use.
type Client struct {
	backend Backend
	cfg     Config

	breaker *circuitbreaker.Breaker
	limiter *rate.Limiter
	sem     chan struct{}

	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// New wraps backend in the shared resilience stack. tracer must be a
// non-nil *observability.Tracer (construct one with observability.NewTracer;
// the exporters it accepts are otlp, jaeger, zipkin and stdout). metrics
// may be nil, in which case metric recording is skipped.
func New(backend Backend, cfg Config, tracer *observability.Tracer, metrics *observability.Metrics) *Client {
	cfg.setDefaults()
	return &Client{
		backend: backend,
		cfg:     cfg,
		breaker: circuitbreaker.New(cfg.BreakerFailureThreshold, cfg.BreakerSuccessThreshold, cfg.BreakerCooldown),
		limiter: rate.NewLimiter(cfg.RateLimit, cfg.RateBurst),
		sem:     make(chan struct{}, cfg.Concurrency),
		tracer:  tracer,
		metrics: metrics,
	}
}

// Chat runs one complete (non-streamed) chat turn, subject to the
// circuit breaker, rate limiter, concurrency semaphore, and retry with
// jitter.
func (c *Client) Chat(ctx context.Context, messages []swarm.Message, opts ChatOptions) (ChatResponse, error) {
	const op = "llmclient.Client.Chat"

	if !c.breaker.Allow() {
		return ChatResponse{}, swarm.NewError(op, swarm.KindCircuitOpen, fmt.Errorf("circuit breaker open for backend %s", c.backend.Name()))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return ChatResponse{}, swarm.NewError(op, swarm.KindRateLimitTimeout, err)
	}

	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return ChatResponse{}, swarm.NewError(op, swarm.KindCancelled, ctx.Err())
	}

	spanCtx, span := c.tracer.StartLLMCall(ctx, opts.Model, opts.MaxTokens, opts.Temperature, opts.TopP)
	defer span.End()

	start := time.Now()
	resp, err := c.callWithRetry(spanCtx, messages, opts)
	duration := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordLLMCall(opts.Model, c.backend.Name(), duration)
	}

	if err != nil {
		c.breaker.RecordFailure()
		c.tracer.RecordError(span, err)
		if c.metrics != nil {
			c.metrics.RecordLLMError(opts.Model, c.backend.Name(), string(swarm.KindOf(err)))
		}
		return ChatResponse{}, err
	}

	c.breaker.RecordSuccess()
	c.tracer.AddLLMUsage(span, resp.InputTokens, resp.OutputTokens)
	c.tracer.AddLLMFinishReason(span, resp.FinishReason)
	if c.metrics != nil {
		c.metrics.RecordLLMTokens(opts.Model, c.backend.Name(), resp.InputTokens, resp.OutputTokens)
	}

	return resp, nil
}

// ChatStream runs one streamed chat turn. The breaker/limiter/semaphore
// gates are acquired before the sequence starts yielding and released
// when iteration ends (including early stop by the consumer, which also
// cancels the upstream request). ChatStream itself does not retry --
// retrying a partially-consumed stream would duplicate already-yielded
// chunks, so only the non-streaming Chat path retries.
func (c *Client) ChatStream(ctx context.Context, messages []swarm.Message, opts ChatOptions) iter.Seq2[StreamChunk, error] {
	return func(yield func(StreamChunk, error) bool) {
		if !c.breaker.Allow() {
			yield(StreamChunk{}, swarm.NewError("llmclient.Client.ChatStream", swarm.KindCircuitOpen, fmt.Errorf("circuit breaker open for backend %s", c.backend.Name())))
			return
		}
		if err := c.limiter.Wait(ctx); err != nil {
			yield(StreamChunk{}, swarm.NewError("llmclient.Client.ChatStream", swarm.KindRateLimitTimeout, err))
			return
		}

		select {
		case c.sem <- struct{}{}:
			defer func() { <-c.sem }()
		case <-ctx.Done():
			yield(StreamChunk{}, swarm.NewError("llmclient.Client.ChatStream", swarm.KindCancelled, ctx.Err()))
			return
		}

		streamCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		spanCtx, span := c.tracer.StartLLMCall(streamCtx, opts.Model, opts.MaxTokens, opts.Temperature, opts.TopP)
		defer span.End()

		failed := false
		for chunk, err := range c.backend.ChatStream(spanCtx, messages, opts) {
			if err != nil {
				failed = true
				c.tracer.RecordError(span, err)
			}
			if !yield(chunk, err) {
				cancel() // consumer stopped early: cancel the upstream request
				break
			}
			if err != nil {
				break
			}
		}

		if failed {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}
}

// callWithRetry retries transient backend failures (backend_unavailable,
// deadline_exceeded) with exponential backoff and full jitter, up to
// cfg.MaxRetries retries after the first attempt. Any other failure
// (auth_error, bad_request, context_overflow, ...) returns immediately.
func (c *Client) callWithRetry(ctx context.Context, messages []swarm.Message, opts ChatOptions) (ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		resp, err := c.backend.Chat(ctx, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetriable(err) {
			return ChatResponse{}, err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := backoffWithJitter(c.cfg.BaseDelay, c.cfg.MaxDelay, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ChatResponse{}, swarm.NewError("llmclient.Client.Chat", swarm.KindCancelled, ctx.Err())
		}
	}

	return ChatResponse{}, swarm.NewError("llmclient.Client.Chat", swarm.KindBackendUnavailable,
		fmt.Errorf("backend unavailable after %d retries: %w", c.cfg.MaxRetries, lastErr))
}

func isRetriable(err error) bool {
	switch swarm.KindOf(err) {
	case swarm.KindBackendUnavailable, swarm.KindDeadlineExceeded:
		return true
	default:
		return errors.Is(err, context.DeadlineExceeded)
	}
}

// backoffWithJitter computes attempt's delay as base*2^attempt, capped at
// max, with full jitter (a uniform random value in [0, computed delay]),
// so a retry storm across many concurrent agents doesn't synchronize.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	computed := base << attempt
	if computed <= 0 || computed > max {
		computed = max
	}
	return time.Duration(rand.Int63n(int64(computed) + 1))
}
