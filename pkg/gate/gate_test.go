package gate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/types"
)

var devQA = &config.Workflow{Gates: []config.Gate{
	{ID: "dev", Role: "developer"},
	{ID: "qa", Role: "reviewer", CanReject: true},
}}

func gatedTask(gateID string, entered time.Time) *types.Task {
	return &types.Task{
		ID:     "TASK-2026-01-15-001",
		Status: types.StatusInProgress,
		Gate:   &types.GateRef{Current: gateID, Entered: entered},
	}
}

func TestCompleteAdvancesToNextGate(t *testing.T) {
	entered := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	now := entered.Add(90 * time.Second)
	task := gatedTask("dev", entered)
	task.ReviewContext = &types.ReviewContext{FromGate: "qa"}

	res, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeComplete, Agent: "a1", Summary: "built it", Now: now})
	require.NoError(t, err)

	assert.Equal(t, types.StatusReady, res.Status)
	require.NotNil(t, res.Gate)
	assert.Equal(t, "qa", res.Gate.Current)
	assert.Equal(t, now, res.Gate.Entered)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, "complete", res.HistoryEntry.Outcome)
	assert.Equal(t, int64(90), res.HistoryEntry.DurationSec)

	res.Apply(task)
	assert.Nil(t, task.ReviewContext, "advance clears review context")
	assert.Len(t, task.GateHistory, 1)
}

func TestCompleteFinalGateFinishesWorkflow(t *testing.T) {
	task := gatedTask("qa", time.Now().UTC())

	res, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeComplete, Agent: "r1"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusDone, res.Status)
	assert.Nil(t, res.Gate)

	res.Apply(task)
	assert.Nil(t, task.Gate)
	assert.Equal(t, types.StatusDone, task.Status)
}

func TestNeedsReviewLoopsToOrigin(t *testing.T) {
	entered := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	now := entered.Add(10 * time.Minute)
	task := gatedTask("qa", entered)

	res, err := Evaluate(Input{
		Task: task, Workflow: devQA, Outcome: OutcomeNeedsReview,
		Agent: "r1", Blockers: []string{"tests failing"}, Notes: "flaky suite", Now: now,
	})
	require.NoError(t, err)

	assert.Equal(t, types.StatusReady, res.Status)
	assert.Equal(t, "dev", res.Gate.Current)
	require.NotNil(t, res.ReviewContext)
	assert.Equal(t, "qa", res.ReviewContext.FromGate)
	assert.Equal(t, "reviewer", res.ReviewContext.FromRole)
	assert.Equal(t, "r1", res.ReviewContext.FromAgent)
	assert.Equal(t, []string{"tests failing"}, res.ReviewContext.Blockers)
	assert.Equal(t, "flaky suite", res.ReviewContext.Notes)
}

func TestCompleteThenRejectScenario(t *testing.T) {
	// S4: dev completes, qa rejects; history length 2, task back at dev.
	entered := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	task := gatedTask("dev", entered)

	res, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeComplete, Agent: "a1", Now: entered.Add(time.Minute)})
	require.NoError(t, err)
	res.Apply(task)
	assert.Equal(t, "qa", task.Gate.Current)

	res, err = Evaluate(Input{
		Task: task, Workflow: devQA, Outcome: OutcomeNeedsReview,
		Agent: "r1", Blockers: []string{"tests failing"}, Now: entered.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	res.Apply(task)

	assert.Equal(t, "dev", task.Gate.Current)
	assert.Equal(t, "qa", task.ReviewContext.FromGate)
	assert.Len(t, task.GateHistory, 2)
}

func TestConditionalGateSkipped(t *testing.T) {
	// S5: security gate skipped without the tag, visited with it.
	flow := &config.Workflow{Gates: []config.Gate{
		{ID: "dev", Role: "developer"},
		{ID: "security", Role: "security", When: "tags.includes('security')"},
		{ID: "qa", Role: "reviewer", CanReject: true},
	}}

	tests := []struct {
		name        string
		tags        []string
		wantGate    string
		wantSkipped []string
	}{
		{"no security tag", nil, "qa", []string{"security"}},
		{"with security tag", []string{"security"}, "security", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := gatedTask("dev", time.Now().UTC())
			task.Routing = &types.Routing{Tags: tt.tags}

			res, err := Evaluate(Input{Task: task, Workflow: flow, Outcome: OutcomeComplete})
			require.NoError(t, err)
			assert.Equal(t, tt.wantGate, res.Gate.Current)
			assert.Equal(t, tt.wantSkipped, res.Skipped)
		})
	}
}

func TestBlockedStaysInGate(t *testing.T) {
	entered := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	task := gatedTask("dev", entered)

	res, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeBlocked, Blockers: []string{"waiting on API keys"}})
	require.NoError(t, err)

	assert.Equal(t, types.StatusBlocked, res.Status)
	assert.Equal(t, "dev", res.Gate.Current)
	assert.Equal(t, entered, res.Gate.Entered, "blocked does not re-enter the gate")
	assert.Equal(t, []string{"waiting on API keys"}, res.HistoryEntry.Blockers)
}

func TestEvaluateErrors(t *testing.T) {
	tests := []struct {
		name    string
		task    *types.Task
		flow    *config.Workflow
		outcome Outcome
		wantErr error
	}{
		{"gate not in workflow", gatedTask("ghost", time.Now()), devQA, OutcomeComplete, ErrGateNotInWorkflow},
		{"no workflow", gatedTask("dev", time.Now()), nil, OutcomeComplete, ErrWorkflowMisconfigured},
		{"reject from no-reject gate", gatedTask("dev", time.Now()), devQA, OutcomeNeedsReview, ErrWorkflowMisconfigured},
		{"unknown outcome", gatedTask("dev", time.Now()), devQA, Outcome("maybe"), ErrWorkflowMisconfigured},
		{"task without gate", &types.Task{ID: "T"}, devQA, OutcomeComplete, ErrGateNotInWorkflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(Input{Task: tt.task, Workflow: tt.flow, Outcome: tt.outcome})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestEvaluateIsIdempotentPerApplication(t *testing.T) {
	// Re-evaluating the same input yields the same result; each Apply
	// appends exactly one history entry.
	task := gatedTask("dev", time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	now := time.Date(2026, 1, 15, 9, 5, 0, 0, time.UTC)

	first, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeComplete, Now: now})
	require.NoError(t, err)
	second, err := Evaluate(Input{Task: task, Workflow: devQA, Outcome: OutcomeComplete, Now: now})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	before := len(task.GateHistory)
	first.Apply(task)
	assert.Len(t, task.GateHistory, before+1)
}

func TestEnter(t *testing.T) {
	task := &types.Task{ID: "T", Routing: &types.Routing{}}
	now := time.Now().UTC()

	ref, skipped, err := Enter(devQA, task, now)
	require.NoError(t, err)
	assert.Equal(t, "dev", ref.Current)
	assert.Empty(t, skipped)

	conditionalFirst := &config.Workflow{Gates: []config.Gate{
		{ID: "security", Role: "security", When: "tags.includes('security')"},
		{ID: "dev", Role: "developer"},
	}}
	ref, skipped, err = Enter(conditionalFirst, task, now)
	require.NoError(t, err)
	assert.Equal(t, "dev", ref.Current)
	assert.Equal(t, []string{"security"}, skipped)
}

func TestEvalWhen(t *testing.T) {
	task := &types.Task{Routing: &types.Routing{
		Agent: "a1", Role: "developer", Team: "alpha", Tags: []string{"backend", "security"},
	}}

	tests := []struct {
		expr    string
		want    bool
		wantErr bool
	}{
		{"tags.includes('security')", true, false},
		{"tags.includes('frontend')", false, false},
		{"!tags.includes('frontend')", true, false},
		{"role == 'developer'", true, false},
		{"team == 'beta'", false, false},
		{"agent == 'a1' && tags.includes('backend')", true, false},
		{"agent == 'a1' && tags.includes('frontend')", false, false},
		{"totally bogus", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := EvalWhen(tt.expr, task)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildContext(t *testing.T) {
	task := gatedTask("qa", time.Now().UTC())
	task.ReviewContext = &types.ReviewContext{
		FromGate: "qa", FromRole: "reviewer", Blockers: []string{"tests failing"},
	}
	task.GateHistory = []types.GateHistoryEntry{{Gate: "dev"}}

	out := BuildContext(task, devQA.GateByID("qa"), devQA)
	assert.Contains(t, out, "## Workflow Stage: qa")
	assert.Contains(t, out, "reviewer")
	assert.Contains(t, out, "needs_review")
	assert.Contains(t, out, "tests failing")
	assert.Contains(t, out, "gate history")

	// A no-reject gate does not advertise needs_review.
	out = BuildContext(&types.Task{Gate: &types.GateRef{Current: "dev"}}, devQA.GateByID("dev"), devQA)
	assert.NotContains(t, out, "needs_review")
}
