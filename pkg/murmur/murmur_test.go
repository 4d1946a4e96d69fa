package murmur

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

func testOrg(triggers ...config.MurmurTrigger) *config.OrgChart {
	return &config.OrgChart{
		Teams: []config.Team{{
			ID:           "core",
			Orchestrator: "lead",
			Members:      []string{"lead", "dev-1"},
			Murmur:       &config.MurmurConfig{Triggers: triggers},
		}},
		Agents: []config.Agent{
			{ID: "lead", Role: "orchestrator"},
			{ID: "dev-1", Role: "developer"},
		},
	}
}

func newTestManager(t *testing.T, org *config.OrgChart, opts ...Option) (*Manager, *store.Store, *[]types.Event) {
	t.Helper()
	root := t.TempDir()
	logger := events.NewLogger(root)
	var got []types.Event
	logger.AddNotifier(events.NotifierFunc(func(ev types.Event) { got = append(got, ev) }))
	st := store.New(root, logger)
	return New(st, org, logger, opts...), st, &got
}

func eventsOfType(evs []types.Event, typ types.EventType) []types.Event {
	var out []types.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestQueueEmptyTriggerCreatesReviewTask(t *testing.T) {
	m, st, got := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))

	created, err := m.Run(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	task, err := st.Get(created[0])
	require.NoError(t, err)
	assert.Equal(t, types.StatusReady, task.Status)
	assert.Equal(t, "lead", task.Routing.Agent)
	assert.Equal(t, "core", task.Routing.Team)
	assert.Equal(t, KindReview, task.Metadata[types.MetaKind])

	triggered := eventsOfType(*got, types.EventMurmurTriggered)
	require.Len(t, triggered, 1)
	assert.Equal(t, "core", triggered[0].Payload["team"])

	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.Equal(t, created[0], state.CurrentReviewTaskID)
	assert.Equal(t, TriggerQueueEmpty, state.LastTriggeredBy)
}

func TestQueueEmptyDoesNotFireWithTeamWork(t *testing.T) {
	m, st, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))

	_, err := st.Create(store.CreateInput{
		Title:   "real work",
		Routing: &types.Routing{Team: "core"},
		Ready:   true,
	})
	require.NoError(t, err)

	created, err := m.Run(time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestIdempotencyGuardBlocksRepeatTrigger(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))
	now := time.Now().UTC()

	first, err := m.Run(now)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The review task sits in ready, but queueEmpty matching it aside, the
	// guard alone must block a second trigger.
	second, err := m.Run(now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestPendingReportsSkippedWhileReviewOutstanding(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))
	now := time.Now().UTC()

	created, err := m.Run(now)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// The outstanding review task is team-routed and ready, but it must not
	// count as team work: the queue stays empty and the trigger keeps
	// matching, reported as skipped until the review ends.
	pending := m.Pending(now.Add(time.Minute))
	require.Len(t, pending, 1)
	assert.Equal(t, "core", pending[0].Team)
	assert.Equal(t, TriggerQueueEmpty, pending[0].Trigger)
	assert.True(t, pending[0].Skipped)
}

func TestCompletionBatchTrigger(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerCompletionBatch, Threshold: 2}))

	done := &types.Task{ID: "TASK-X", Routing: &types.Routing{Team: "core"}}
	require.NoError(t, m.OnTaskDone(done))

	created, err := m.Run(time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, created, "below threshold")

	require.NoError(t, m.OnTaskDone(&types.Task{ID: "TASK-Y", Routing: &types.Routing{Team: "core"}}))
	created, err = m.Run(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Counters reset on fire.
	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.Equal(t, 0, state.CompletionsSinceLastReview)
}

func TestFailureBatchTrigger(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerFailureBatch, Threshold: 1}))

	require.NoError(t, m.OnTaskDeadletter(&types.Task{ID: "TASK-X", Routing: &types.Routing{Team: "core"}}))

	created, err := m.Run(time.Now().UTC())
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestTriggersEvaluatedInOrder(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(
		config.MurmurTrigger{Type: TriggerFailureBatch, Threshold: 1},
		config.MurmurTrigger{Type: TriggerQueueEmpty},
	))

	// Queue is empty AND a failure is recorded; the first-listed trigger
	// wins.
	require.NoError(t, m.OnTaskDeadletter(&types.Task{ID: "TASK-X", Routing: &types.Routing{Team: "core"}}))
	_, err := m.Run(time.Now().UTC())
	require.NoError(t, err)

	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.Equal(t, TriggerFailureBatch, state.LastTriggeredBy)
}

func TestReviewDoneEndsCycle(t *testing.T) {
	m, st, got := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))

	created, err := m.Run(time.Now().UTC())
	require.NoError(t, err)
	require.Len(t, created, 1)

	review, err := st.Get(created[0])
	require.NoError(t, err)
	require.NoError(t, m.OnTaskDone(review))

	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.False(t, state.InReview())
	assert.NotNil(t, state.LastReviewAt)
	assert.Len(t, eventsOfType(*got, types.EventMurmurEnded), 1)
}

func TestCleanupTaskNotFound(t *testing.T) {
	m, _, got := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerQueueEmpty}))
	now := time.Now().UTC()

	// Arm the guard with a task id that does not exist.
	unlock, err := m.lockTeam("core")
	require.NoError(t, err)
	require.NoError(t, m.saveState("core", &State{
		CurrentReviewTaskID: "TASK-GONE",
		ReviewStartedAt:     &now,
	}))
	unlock()

	created, err := m.Run(now)
	require.NoError(t, err)
	// Guard cleared and queueEmpty immediately re-fires.
	require.Len(t, created, 1)

	cleaned := eventsOfType(*got, types.EventMurmurCleaned)
	require.Len(t, cleaned, 1)
	assert.Equal(t, CleanTaskNotFound, cleaned[0].Payload["reason"])
}

func TestCleanupTimeout(t *testing.T) {
	m, st, got := newTestManager(t,
		testOrg(config.MurmurTrigger{Type: TriggerCompletionBatch, Threshold: 100}),
		WithReviewTimeout(10*time.Minute))
	now := time.Now().UTC()

	task, err := st.Create(store.CreateInput{Title: "review", Ready: true})
	require.NoError(t, err)

	started := now.Add(-time.Hour)
	unlock, err := m.lockTeam("core")
	require.NoError(t, err)
	require.NoError(t, m.saveState("core", &State{
		CurrentReviewTaskID: task.ID,
		ReviewStartedAt:     &started,
	}))
	unlock()

	_, err = m.Run(now)
	require.NoError(t, err)

	cleaned := eventsOfType(*got, types.EventMurmurCleaned)
	require.Len(t, cleaned, 1)
	assert.Equal(t, CleanTimeout, cleaned[0].Payload["reason"])

	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.False(t, state.InReview())
}

func TestStateRoundTrip(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg())
	now := time.Now().UTC().Truncate(time.Second)

	in := &State{
		CurrentReviewTaskID:        "TASK-R",
		ReviewStartedAt:            &now,
		LastTriggeredBy:            TriggerFailureBatch,
		CompletionsSinceLastReview: 3,
		FailuresSinceLastReview:    1,
	}
	unlock, err := m.lockTeam("core")
	require.NoError(t, err)
	require.NoError(t, m.saveState("core", in))
	unlock()

	out, err := m.LoadState("core")
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// The on-disk form is plain JSON with the contractual keys.
	data, err := os.ReadFile(filepath.Join(m.root, StateDir, "core.json"))
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "TASK-R", raw["currentReviewTaskId"])
	assert.Equal(t, float64(3), raw["completionsSinceLastReview"])
}

func TestConcurrentIncrementsDoNotCorruptState(t *testing.T) {
	m, _, _ := newTestManager(t, testOrg(config.MurmurTrigger{Type: TriggerCompletionBatch, Threshold: 1000}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.OnTaskDone(&types.Task{ID: "TASK-N", Routing: &types.Routing{Team: "core"}})
		}()
	}
	wg.Wait()

	state, err := m.LoadState("core")
	require.NoError(t, err)
	assert.Equal(t, 20, state.CompletionsSinceLastReview)
}
