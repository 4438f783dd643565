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

// Package coordinator turns a swarm.Task into a final answer by
// orchestrating a small population of pkg/agent Runners: a planner turn
// produces the agent population, the agents run to completion (or are
// cut off by a deadline), and a merge turn synthesizes their outputs.
package coordinator

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/swarmhive/swarmd/pkg/agent"
	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
)

// DefaultMaxAgents bounds the planner's agent population when a Task
// leaves MaxAgents unset.
const DefaultMaxAgents = 4

// DefaultPlanRepairAttempts is the number of repair retries the planner
// gets before falling back to a single-agent plan.
const DefaultPlanRepairAttempts = 2

// Config controls the planner/merge model selection and the bounds a
// Coordinator enforces on every Task it runs.
type Config struct {
	Model              string
	Temperature        float64
	TopP               float64
	MaxAgents          int
	PlanRepairAttempts int
	AgentMaxTurns      int
	AgentMaxTokens     int
}

func (c *Config) setDefaults() {
	if c.MaxAgents <= 0 {
		c.MaxAgents = DefaultMaxAgents
	}
	if c.PlanRepairAttempts <= 0 {
		c.PlanRepairAttempts = DefaultPlanRepairAttempts
	}
}

// Coordinator runs Tasks to completion. Safe for concurrent use across
// independent Tasks.
type Coordinator struct {
	llm     *llmclient.Client
	agents  *agent.Runner
	cfg     Config
	tracer  *observability.Tracer
	metrics *observability.Metrics
}

// New builds a Coordinator. llm is used directly for the planner and
// merge turns; agents drives each spawned Agent's own turn loop.
func New(llm *llmclient.Client, agents *agent.Runner, cfg Config, tracer *observability.Tracer, metrics *observability.Metrics) *Coordinator {
	cfg.setDefaults()
	return &Coordinator{llm: llm, agents: agents, cfg: cfg, tracer: tracer, metrics: metrics}
}

// Run executes task to completion, mutating its Status/Result/Err/
// Partial/AgentReports in place and returning a classified error when
// the task did not produce a usable result. Run never panics; every
// failure path is represented both on task and in the returned error so
// callers can choose which to inspect.
func (c *Coordinator) Run(ctx context.Context, task *swarm.Task) (retErr error) {
	const op = "coordinator.Coordinator.Run"

	ctx, span := c.tracer.Start(ctx, "coordinator.Run")
	defer func() {
		if retErr != nil {
			c.tracer.RecordError(span, retErr)
		}
		span.End()
	}()

	task.Status = swarm.TaskRunning

	maxAgents := task.MaxAgents
	if maxAgents <= 0 {
		maxAgents = c.cfg.MaxAgents
	}
	if maxAgents > c.cfg.MaxAgents {
		maxAgents = c.cfg.MaxAgents
	}

	runCtx := ctx
	if !task.Deadline.IsZero() {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, task.Deadline)
		defer cancel()
	}

	topology := task.Topology
	if topology == "" {
		topology = swarm.TopologyStar
	}

	var specs []swarm.AgentSpec
	var err error
	switch topology {
	case swarm.TopologyMapReduce:
		specs, err = c.planMapReduce(runCtx, task, maxAgents)
	default:
		specs, err = c.planStar(runCtx, task, maxAgents)
	}
	if err != nil {
		return c.fail(task, swarm.NewError(op, swarm.KindPlanInvalid, err))
	}

	agents := c.spawn(runCtx, task, specs)

	reports, successful := c.collect(agents)
	task.AgentReports = reports

	n := len(agents)
	quorum := int(math.Ceil(float64(n) / 2))
	deadlineHit := runCtx.Err() != nil
	if len(successful) < quorum && !deadlineHit {
		return c.fail(task, swarm.NewError(op, swarm.KindSwarmInsufficientSuccesses,
			fmt.Errorf("only %d of %d agents reached done (quorum %d)", len(successful), n, quorum)))
	}
	if deadlineHit && len(successful) == 0 {
		return c.fail(task, swarm.NewError(op, swarm.KindDeadlineExceeded,
			fmt.Errorf("deadline expired before any agent reached done (0 of %d)", n)))
	}
	task.Partial = len(successful) < n

	// Once the deadline has already passed, the merge turn runs against
	// the task's outer context rather than runCtx so the immediate
	// best-effort merge of whatever agents finished isn't itself killed
	// by the same deadline.
	mergeCtx := runCtx
	if deadlineHit {
		mergeCtx = ctx
	}
	result, err := c.merge(mergeCtx, task, successful)
	if err != nil {
		return c.fail(task, err)
	}

	task.Status = swarm.TaskDone
	task.Result = result
	return nil
}

// spawn launches one agent.Runner per spec concurrently, bounded only by
// the LLM Client's own concurrency semaphore -- the Coordinator imposes
// no separate admission control, matching the back-pressure model where
// agent fan-out naturally queues behind the Client's single throttle.
func (c *Coordinator) spawn(ctx context.Context, task *swarm.Task, specs []swarm.AgentSpec) []*swarm.Agent {
	agents := make([]*swarm.Agent, len(specs))
	g, gctx := errgroup.WithContext(ctx)

	for i, spec := range specs {
		i, spec := i, spec
		if spec.MaxTurns <= 0 {
			spec.MaxTurns = c.cfg.AgentMaxTurns
		}
		if spec.MaxTokens <= 0 {
			spec.MaxTokens = c.cfg.AgentMaxTokens
		}
		a := swarm.NewAgent(task.ID, spec)
		agents[i] = a

		g.Go(func() error {
			c.agents.Run(gctx, a, agentSystemPrompt(spec), spec.Instructions, task.Deadline)
			return nil
		})
	}
	_ = g.Wait() // every goroutine always returns nil; outcome lives on each Agent

	return agents
}

// collect builds the per-agent report list and the subset of agents
// that reached done, both in the order of agents (spawn order). merge
// sorts the done subset by agent id before presenting it, so the merge
// turn sees agent outputs by agent id, not completion time.
func (c *Coordinator) collect(agents []*swarm.Agent) ([]swarm.AgentReport, []*swarm.Agent) {
	reports := make([]swarm.AgentReport, len(agents))
	var successful []*swarm.Agent
	for i, a := range agents {
		reports[i] = swarm.AgentReport{AgentID: a.ID, Role: a.Spec.Role, Status: a.Status, Err: a.Err}
		if a.Status == swarm.AgentDone {
			successful = append(successful, a)
		}
	}
	return reports, successful
}

func (c *Coordinator) fail(task *swarm.Task, err error) error {
	switch swarm.KindOf(err) {
	case swarm.KindDeadlineExceeded, swarm.KindCancelled:
		task.Status = swarm.TaskCancelled
	default:
		task.Status = swarm.TaskFailed
	}
	task.Err = err.Error()
	return err
}

func agentSystemPrompt(spec swarm.AgentSpec) string {
	if spec.Role == "" {
		return "You are a helpful assistant completing one part of a larger task."
	}
	return fmt.Sprintf("You are the %q agent in a coordinated swarm. Focus only on your assigned slice of the task.", spec.Role)
}
