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

package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// planSchema constrains the planner turn's response to a JSON object
// naming the agent population: a role, a role-specific prompt, and the
// tool names that agent may call.
var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"agents": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"role":   map[string]any{"type": "string"},
					"prompt": map[string]any{"type": "string"},
					"tools":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []any{"role", "prompt"},
			},
		},
	},
	"required": []any{"agents"},
}

type planAgent struct {
	Role   string   `json:"role"`
	Prompt string   `json:"prompt"`
	Tools  []string `json:"tools,omitempty"`
}

type planResponse struct {
	Agents []planAgent `json:"agents"`
}

const plannerSystemPrompt = "You decompose a task into a small team of agents. " +
	"Respond only with the structured plan: each agent needs a short role name and a " +
	"self-contained prompt describing exactly what that agent must do."

// planStar produces the star-topology agent population: a planner turn
// decomposes task.Prompt into at most maxAgents role/prompt pairs. A
// malformed plan is repaired up to cfg.PlanRepairAttempts times by
// replaying the parse or validation error back to the model; once
// repair attempts are exhausted the coordinator falls back to a single
// agent whose prompt is the original task verbatim, so planning itself
// never surfaces plan_invalid to the caller -- it is fully absorbed by
// the fallback.
func (c *Coordinator) planStar(ctx context.Context, task *swarm.Task, maxAgents int) ([]swarm.AgentSpec, error) {
	messages := []swarm.Message{
		{Role: swarm.RoleSystem, Content: plannerSystemPrompt},
		{Role: swarm.RoleUser, Content: planUserPrompt(task, maxAgents)},
	}

	for attempt := 0; attempt <= c.cfg.PlanRepairAttempts; attempt++ {
		plan, err := c.planTurn(ctx, messages)
		if err == nil {
			if verr := validatePlan(plan, maxAgents); verr == nil {
				return specsFromPlan(plan, maxAgents), nil
			} else {
				err = verr
			}
		}
		messages = append(messages,
			swarm.Message{Role: swarm.RoleAssistant, Content: "(malformed plan)"},
			swarm.Message{Role: swarm.RoleUser, Content: fmt.Sprintf(
				"Your previous plan was rejected: %v. Reply again with a corrected plan matching the required schema.", err)},
		)
	}

	// Repair attempts exhausted: fall back to a single agent carrying the
	// original task verbatim as its role prompt.
	return []swarm.AgentSpec{{Role: "generalist", Instructions: task.Prompt}}, nil
}

func (c *Coordinator) planTurn(ctx context.Context, messages []swarm.Message) (planResponse, error) {
	resp, err := c.llm.Chat(ctx, messages, llmclient.ChatOptions{
		Model:            c.cfg.Model,
		Temperature:      c.cfg.Temperature,
		TopP:             c.cfg.TopP,
		StructuredOutput: planSchema,
	})
	if err != nil {
		return planResponse{}, err
	}

	var plan planResponse
	if err := json.Unmarshal([]byte(resp.Message.Content), &plan); err != nil {
		return planResponse{}, fmt.Errorf("plan response was not valid JSON: %w", err)
	}
	return plan, nil
}

func validatePlan(plan planResponse, maxAgents int) error {
	if len(plan.Agents) == 0 {
		return fmt.Errorf("plan named zero agents")
	}
	if len(plan.Agents) > maxAgents {
		return fmt.Errorf("plan named %d agents, exceeding max_agents %d", len(plan.Agents), maxAgents)
	}
	for i, a := range plan.Agents {
		if strings.TrimSpace(a.Role) == "" {
			return fmt.Errorf("agent %d is missing a role", i)
		}
		if strings.TrimSpace(a.Prompt) == "" {
			return fmt.Errorf("agent %d is missing a prompt", i)
		}
	}
	return nil
}

func specsFromPlan(plan planResponse, maxAgents int) []swarm.AgentSpec {
	n := len(plan.Agents)
	if n > maxAgents {
		n = maxAgents
	}
	specs := make([]swarm.AgentSpec, n)
	for i := 0; i < n; i++ {
		a := plan.Agents[i]
		specs[i] = swarm.AgentSpec{Role: a.Role, Instructions: a.Prompt, AllowedTools: a.Tools}
	}
	return specs
}

func planUserPrompt(task *swarm.Task, maxAgents int) string {
	return fmt.Sprintf("Task: %s\n\nDecompose this into at most %d agents.", task.Prompt, maxAgents)
}

// planMapReduce produces the map stage's agent population: one mapper
// agent per shard of task.Context, sharing an identical role and
// partitioned input. The reduce stage is not a spawned Agent -- it
// reuses the same merge turn star topology uses, over the mappers'
// outputs once every mapper is done. When task.Context carries no
// shards there is nothing to partition, so the map step degenerates to
// a single mapper over the whole prompt; the reduce turn still runs,
// synthesizing that one output, which keeps the topology's two-stage
// shape intact even in the degenerate case rather than silently
// behaving like star.
func (c *Coordinator) planMapReduce(ctx context.Context, task *swarm.Task, maxAgents int) ([]swarm.AgentSpec, error) {
	shards := task.Context
	if len(shards) == 0 {
		shards = []string{task.Prompt}
	}
	if len(shards) > maxAgents {
		shards = shards[:maxAgents]
	}

	specs := make([]swarm.AgentSpec, len(shards))
	for i, shard := range shards {
		specs[i] = swarm.AgentSpec{
			Role:          "mapper",
			Instructions:  fmt.Sprintf("Task: %s\n\nApply this task to the following shard only:\n%s", task.Prompt, shard),
			InputDocument: shard,
		}
	}
	return specs, nil
}

// merge synthesizes a final answer from the successful agents' outputs,
// ordered by agent id rather than completion time so the merge prompt
// is deterministic regardless of scheduling. merge is a single bare
// Chat call: it carries no tools and is not itself an agent, so it
// bypasses pkg/agent entirely.
func (c *Coordinator) merge(ctx context.Context, task *swarm.Task, successful []*swarm.Agent) (string, error) {
	ordered := make([]*swarm.Agent, len(successful))
	copy(ordered, successful)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var b strings.Builder
	fmt.Fprintf(&b, "Original task:\n%s\n\n", task.Prompt)
	fmt.Fprintf(&b, "The following agents each completed a portion of this task. Synthesize their outputs into one final answer.\n\n")
	for _, a := range ordered {
		fmt.Fprintf(&b, "### Agent %q (%s)\n%s\n\n", a.Spec.Role, a.ID, a.Result)
	}

	messages := []swarm.Message{
		{Role: swarm.RoleSystem, Content: "You merge the outputs of several agents into one coherent final answer."},
		{Role: swarm.RoleUser, Content: b.String()},
	}

	const op = "coordinator.Coordinator.merge"
	resp, err := c.llm.Chat(ctx, messages, llmclient.ChatOptions{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return "", swarm.NewError(op, swarm.KindOf(err), err)
	}
	return resp.Message.Content, nil
}
