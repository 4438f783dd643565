package coordinator

import (
	"context"
	"iter"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhive/swarmd/pkg/agent"
	"github.com/swarmhive/swarmd/pkg/llmclient"
	"github.com/swarmhive/swarmd/pkg/observability"
	"github.com/swarmhive/swarmd/pkg/swarm"
	"github.com/swarmhive/swarmd/pkg/toolhost"
)

func testTracer(t *testing.T) *observability.Tracer {
	t.Helper()
	tracer, err := observability.NewTracer(context.Background(), &observability.TracingConfig{
		ServiceName:    "coordinator-test",
		ServiceVersion: "test",
		Exporter:       "stdout",
		SamplingRate:   0,
	})
	require.NoError(t, err)
	return tracer
}

// fakeBackend routes a Chat call by its shape: a call carrying a
// StructuredOutput schema is the planner turn, a call whose system
// prompt names the synthesis task is the merge turn, and everything else
// is an agent turn. A "stuck" role always answers with a tool call so the
// caller's turn cap fails it; any other role answers done on its first
// turn.
type fakeBackend struct {
	mu          sync.Mutex
	planContent []string // one entry consumed per planner call; last entry repeats once exhausted
	planCalls   int
	mergeResult string
	mergeCalled bool
	stuckDelay  time.Duration // if set, a "stuck" agent's turn sleeps this long before replying
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Chat(ctx context.Context, messages []swarm.Message, opts llmclient.ChatOptions) (llmclient.ChatResponse, error) {
	var sys string
	if len(messages) > 0 {
		sys = messages[0].Content
	}

	switch {
	case opts.StructuredOutput != nil:
		b.mu.Lock()
		idx := b.planCalls
		if idx >= len(b.planContent) {
			idx = len(b.planContent) - 1
		}
		content := b.planContent[idx]
		b.planCalls++
		b.mu.Unlock()
		return llmclient.ChatResponse{Message: swarm.Message{Role: swarm.RoleAssistant, Content: content}}, nil

	case strings.Contains(sys, "merge the outputs"):
		b.mu.Lock()
		b.mergeCalled = true
		b.mu.Unlock()
		return llmclient.ChatResponse{Message: swarm.Message{Role: swarm.RoleAssistant, Content: b.mergeResult}}, nil

	default:
		if strings.Contains(sys, "stuck") {
			if b.stuckDelay > 0 {
				time.Sleep(b.stuckDelay)
			}
			return llmclient.ChatResponse{Message: swarm.Message{
				Role:      swarm.RoleAssistant,
				ToolCalls: []swarm.ToolCall{{ID: "c1", Name: "noop", Arguments: map[string]any{}}},
			}}, nil
		}
		return llmclient.ChatResponse{Message: swarm.Message{Role: swarm.RoleAssistant, Content: "agent output"}}, nil
	}
}

func (b *fakeBackend) ChatStream(ctx context.Context, messages []swarm.Message, opts llmclient.ChatOptions) iter.Seq2[llmclient.StreamChunk, error] {
	return func(yield func(llmclient.StreamChunk, error) bool) {}
}

func newTestCoordinator(t *testing.T, backend llmclient.Backend, cfg Config) *Coordinator {
	t.Helper()
	tracer := testTracer(t)
	llm := llmclient.New(backend, llmclient.Config{}, tracer, nil)
	runner := agent.NewRunner(llm, toolhost.NewHost(), agent.Config{Model: "test-model"}, tracer, nil)
	return New(llm, runner, cfg, tracer, nil)
}

func plan(roles ...string) string {
	var b strings.Builder
	b.WriteString(`{"agents":[`)
	for i, role := range roles {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(`{"role":"` + role + `","prompt":"do your part"}`)
	}
	b.WriteString(`]}`)
	return b.String()
}

// TestRunStarPartialSuccessMerges covers S4: with max_agents = 4, three
// agents finish normally and one exceeds its turn cap. The quorum
// ceil(4/2) = 2 is met by the three successes, so the merge proceeds
// over those three and the task is marked partial.
func TestRunStarPartialSuccessMerges(t *testing.T) {
	backend := &fakeBackend{
		planContent: []string{plan("done-1", "done-2", "done-3", "stuck-4")},
		mergeResult: "final merged answer",
	}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 4, AgentMaxTurns: 1})

	task := swarm.NewTask("do the thing", swarm.TopologyStar)
	task.MaxAgents = 4

	err := c.Run(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, swarm.TaskDone, task.Status)
	assert.True(t, task.Partial)
	assert.Equal(t, "final merged answer", task.Result)
	assert.True(t, backend.mergeCalled)

	require.Len(t, task.AgentReports, 4)
	var failed int
	for _, r := range task.AgentReports {
		if r.Status == swarm.AgentFailed {
			failed++
			assert.Contains(t, r.Err, "exceeded max turn count")
		}
	}
	assert.Equal(t, 1, failed)
}

// TestRunStarInsufficientSuccessesSkipsMerge covers S5: three of four
// agents fail, leaving only one success against a quorum of two. The
// task must fail swarm_insufficient_successes and no merge call may be
// issued.
func TestRunStarInsufficientSuccessesSkipsMerge(t *testing.T) {
	backend := &fakeBackend{
		planContent: []string{plan("done-1", "stuck-2", "stuck-3", "stuck-4")},
		mergeResult: "should never be produced",
	}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 4, AgentMaxTurns: 1})

	task := swarm.NewTask("do the thing", swarm.TopologyStar)
	task.MaxAgents = 4

	err := c.Run(context.Background(), task)

	require.Error(t, err)
	assert.Equal(t, swarm.KindSwarmInsufficientSuccesses, swarm.KindOf(err))
	assert.Equal(t, swarm.TaskFailed, task.Status)
	assert.Empty(t, task.Result)
	assert.False(t, backend.mergeCalled)
	require.Len(t, task.AgentReports, 4)
}

// TestRunStarPlanRepairExhaustedFallsBackToSingleAgent covers the
// planner's repair loop: every planner call returns malformed JSON, so
// after the configured repair attempts the coordinator falls back to a
// single generalist agent carrying the original task prompt, and that
// fallback still produces a done task rather than surfacing
// plan_invalid to the caller.
func TestRunStarPlanRepairExhaustedFallsBackToSingleAgent(t *testing.T) {
	backend := &fakeBackend{
		planContent: []string{"not json", "still not json", "nope"},
		mergeResult: "fallback merge result",
	}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 4, PlanRepairAttempts: 2, AgentMaxTurns: 1})

	task := swarm.NewTask("original task text", swarm.TopologyStar)

	err := c.Run(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, swarm.TaskDone, task.Status)
	assert.Equal(t, 3, backend.planCalls) // initial attempt + 2 repairs
	require.Len(t, task.AgentReports, 1)
	assert.Equal(t, "generalist", task.AgentReports[0].Role)
	assert.Equal(t, swarm.AgentDone, task.AgentReports[0].Status)
	assert.Equal(t, "fallback merge result", task.Result)
}

// TestRunMapReduceDegenerateSingleShard covers map-reduce with no
// context to partition: the map stage degenerates to one mapper over
// the whole prompt, and the reduce stage still runs as a merge turn
// over that single output.
func TestRunMapReduceDegenerateSingleShard(t *testing.T) {
	backend := &fakeBackend{mergeResult: "reduced answer"}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 2, AgentMaxTurns: 1})

	task := swarm.NewTask("summarize this", swarm.TopologyMapReduce)

	err := c.Run(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, swarm.TaskDone, task.Status)
	assert.False(t, task.Partial)
	assert.Equal(t, "reduced answer", task.Result)
	require.Len(t, task.AgentReports, 1)
	assert.Equal(t, "mapper", task.AgentReports[0].Role)
	assert.Equal(t, 0, backend.planCalls) // map-reduce never calls the planner
}

// TestRunDeadlineAlreadyExpiredFailsWithNothingToMerge covers a Task
// submitted with a deadline already in the past: every agent observes
// its context already Done on its first turn and is recorded cancelled,
// leaving zero successes. The deadline, not the quorum check, governs
// this outcome -- there is nothing to best-effort merge, so the task
// fails deadline_exceeded rather than swarm_insufficient_successes.
func TestRunDeadlineAlreadyExpiredFailsWithNothingToMerge(t *testing.T) {
	backend := &fakeBackend{
		planContent: []string{plan("done-1", "done-2")},
		mergeResult: "should never be produced",
	}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 2, AgentMaxTurns: 1})

	task := swarm.NewTask("do the thing", swarm.TopologyStar)
	task.Deadline = time.Now().Add(-time.Minute)

	err := c.Run(context.Background(), task)

	require.Error(t, err)
	assert.Equal(t, swarm.KindDeadlineExceeded, swarm.KindOf(err))
	assert.False(t, backend.mergeCalled)
	for _, r := range task.AgentReports {
		assert.Equal(t, swarm.AgentCancelled, r.Status)
	}
}

// TestRunDeadlineExpiryMergesWhateverCompletedBelowQuorum covers the
// deadline-merge path: "done-1" answers on its first turn well within
// the deadline, while the other three agents are still mid-flight on
// their own first turn when the deadline cuts them off, leaving one
// success against a quorum of two. Because it was the deadline -- not
// agent failure -- that stopped the run, the coordinator merges that
// one output immediately instead of failing insufficient_successes.
func TestRunDeadlineExpiryMergesWhateverCompletedBelowQuorum(t *testing.T) {
	backend := &fakeBackend{
		planContent: []string{plan("done-1", "stuck-2", "stuck-3", "stuck-4")},
		mergeResult: "best effort merge",
		stuckDelay:  50 * time.Millisecond,
	}
	c := newTestCoordinator(t, backend, Config{Model: "test-model", MaxAgents: 4, AgentMaxTurns: 100})

	task := swarm.NewTask("do the thing", swarm.TopologyStar)
	task.MaxAgents = 4
	task.Deadline = time.Now().Add(15 * time.Millisecond)

	err := c.Run(context.Background(), task)

	require.NoError(t, err)
	assert.Equal(t, swarm.TaskDone, task.Status)
	assert.True(t, task.Partial)
	assert.Equal(t, "best effort merge", task.Result)
	assert.True(t, backend.mergeCalled)

	var done, cancelled int
	for _, r := range task.AgentReports {
		switch r.Status {
		case swarm.AgentDone:
			done++
		case swarm.AgentCancelled:
			cancelled++
		}
	}
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, cancelled)
}
