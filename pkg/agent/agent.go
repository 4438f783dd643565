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

// Package agent runs one swarm.Agent's turn loop against an LLM Client and
// a Tool Host: pending -> running -> tool_wait -> done/failed/cancelled.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

// DefaultMaxTurns is M, the bounded turn count an Agent may take before
// failing with budget_exhausted, used when an AgentSpec leaves MaxTurns
// unset.
const DefaultMaxTurns = 12

// Config controls the turn loop's model selection and sampling parameters.
// One Config is shared by every Agent a Runner executes.
type Config struct {
	Model       string
	Temperature float64
	TopP        float64
}

// Runner drives Agents through their turn loop. Safe for concurrent use
// across independent Agents; a single Agent must only ever be driven by
// one goroutine at a time.
type Runner struct {
	llm     *llmclient.Client
	tools   *toolhost.Host
	cfg     Config
	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// NewRunner builds a Runner over the given LLM Client and Tool Host.
func NewRunner(llm *llmclient.Client, tools *toolhost.Host, cfg Config, tracer *observability.Tracer, metrics *observability.Metrics) *Runner {
	return &Runner{llm: llm, tools: tools, cfg: cfg, tracer: tracer, metrics: metrics}
}

// Run executes a's turn loop until it reaches done, failed, or cancelled.
// systemPrompt and userPrompt seed the transcript on a pending Agent;
// deadline bounds every tool invocation the agent dispatches (zero means
// no deadline). Run never returns an error: the outcome is always
// recorded on a.Status/a.Result/a.Err, matching how a Coordinator
// inspects a completed Agent.
func (r *Runner) Run(ctx context.Context, a *swarm.Agent, systemPrompt, userPrompt string, deadline time.Time) {
	if a.Status == swarm.AgentPending {
		a.Transcript.Append(swarm.Message{Role: swarm.RoleSystem, Content: systemPrompt})
		a.Transcript.Append(swarm.Message{Role: swarm.RoleUser, Content: userPrompt})
	}
	a.Status = swarm.AgentRunning

	maxTurns := a.Spec.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}

	spanCtx, span := r.tracer.StartAgentRun(ctx, a.TaskID, a.ID, a.Spec.Role, r.cfg.Model, "")
	defer span.End()

	for {
		if err := spanCtx.Err(); err != nil {
			r.cancel(a, span, err)
			return
		}
		if a.Turns >= maxTurns {
			r.fail(a, span, swarm.NewError("agent.Runner.Run", swarm.KindBudgetExhausted,
				fmt.Errorf("exceeded max turn count %d", maxTurns)))
			return
		}
		if a.Spec.MaxTokens > 0 && a.TokensUsed >= a.Spec.MaxTokens {
			r.fail(a, span, swarm.NewError("agent.Runner.Run", swarm.KindBudgetExhausted,
				fmt.Errorf("exceeded token budget %d", a.Spec.MaxTokens)))
			return
		}

		resp, err := r.llm.Chat(spanCtx, a.Transcript.Messages, llmclient.ChatOptions{
			Model:       r.cfg.Model,
			MaxTokens:   a.Spec.MaxTokens,
			Temperature: r.cfg.Temperature,
			TopP:        r.cfg.TopP,
			Tools:       r.toolSchemas(a.Spec.AllowedTools),
		})
		a.Turns++
		if err != nil {
			r.fail(a, span, err)
			return
		}

		a.TokensUsed += resp.InputTokens + resp.OutputTokens
		a.Transcript.Append(resp.Message)

		if len(resp.Message.ToolCalls) == 0 {
			a.Status = swarm.AgentDone
			a.Result = resp.Message.Content
			return
		}

		// Cancellation interrupts after the turn's LLM call completes and
		// before pending tool calls are dispatched, never mid-dispatch.
		if err := spanCtx.Err(); err != nil {
			r.cancel(a, span, err)
			return
		}

		a.Status = swarm.AgentToolWait
		r.dispatchTools(spanCtx, a, resp.Message.ToolCalls, deadline)
		a.Status = swarm.AgentRunning
	}
}

// dispatchTools runs every tool call in resp.Message.ToolCalls concurrently
// via errgroup, then appends their results to the transcript in the order
// the calls were emitted by the LLM -- not the order they finished in. A
// call naming a tool outside a.Spec.AllowedTools is never dispatched to the
// host: it is denied in place with a policy_denied result, since the
// allowlist the agent advertised to the LLM (toolSchemas) is not on its own
// enough to stop the LLM from emitting a call to an unlisted tool.
func (r *Runner) dispatchTools(ctx context.Context, a *swarm.Agent, calls []swarm.ToolCall, deadline time.Time) {
	results := make([]swarm.Message, len(calls))
	allowed := allowedToolSet(a.Spec.AllowedTools)

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			if !allowed[call.Name] {
				result := toolhost.ToolResult{
					ToolCallID: call.ID,
					Error:      fmt.Sprintf("tool %q is not in this agent's allowed_tools", call.Name),
					ErrorKind:  string(swarm.KindPolicyDenied),
				}
				if r.metrics != nil {
					r.metrics.RecordToolError(call.Name, result.ErrorKind)
				}
				results[i] = toolResultMessage(call, result)
				return nil
			}

			toolCtx, span := r.tracer.StartToolExecution(gctx, call.Name, r.toolClass(call.Name), call.ID)
			defer span.End()

			start := time.Now()
			result := r.tools.Invoke(toolCtx, a.ID, a.TaskID, deadline, toolhost.ToolCall{
				ID: call.ID, Name: call.Name, Arguments: call.Arguments,
			})

			if r.metrics != nil {
				if result.Error != "" {
					r.metrics.RecordToolError(call.Name, result.ErrorKind)
				} else {
					r.metrics.RecordToolCall(call.Name, time.Since(start))
				}
			}

			results[i] = toolResultMessage(call, result)
			return nil // tool failures are folded into the transcript, never aborted
		})
	}
	_ = g.Wait() // every tool goroutine always returns nil; errgroup only supplies the shared gctx

	for _, m := range results {
		a.Transcript.Append(m)
	}
}

func allowedToolSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

func toolResultMessage(call swarm.ToolCall, result toolhost.ToolResult) swarm.Message {
	if result.Error != "" {
		return swarm.Message{Role: swarm.RoleTool, Content: result.Error, ToolCallID: call.ID, Name: call.Name}
	}
	return swarm.Message{Role: swarm.RoleTool, Content: formatToolContent(result.Content), ToolCallID: call.ID, Name: call.Name}
}

// formatToolContent renders a tool's structured result as the text content
// of a RoleTool message, the form every LLM chat API expects tool results
// in. Marshal failure is unexpected (content always comes from a tool
// handler's own map[string]any) and falls back to a best-effort message
// rather than losing the tool call's outcome entirely.
func formatToolContent(content map[string]any) string {
	b, err := json.Marshal(content)
	if err != nil {
		return fmt.Sprintf("%v", content)
	}
	return string(b)
}

func (r *Runner) toolClass(name string) string {
	defs := r.tools.Definitions([]string{name})
	if len(defs) == 0 {
		return ""
	}
	return string(defs[0].Class)
}

func (r *Runner) toolSchemas(allowed []string) []llmclient.ToolSchema {
	defs := r.tools.Definitions(allowed)
	out := make([]llmclient.ToolSchema, len(defs))
	for i, d := range defs {
		out[i] = llmclient.ToolSchema{Name: d.Name, Description: d.Description, Parameters: d.Schema}
	}
	return out
}

func (r *Runner) fail(a *swarm.Agent, span trace.Span, err error) {
	a.Status = swarm.AgentFailed
	a.Err = err.Error()
	r.tracer.RecordError(span, err)
}

func (r *Runner) cancel(a *swarm.Agent, span trace.Span, err error) {
	a.Status = swarm.AgentCancelled
	a.Err = err.Error()
	r.tracer.RecordError(span, err)
}
