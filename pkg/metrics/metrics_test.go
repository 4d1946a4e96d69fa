package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

func TestNotifierCountsEvents(t *testing.T) {
	notify := Notifier()

	dispatchesBefore := testutil.ToFloat64(DispatchesTotal)
	deadlettersBefore := testutil.ToFloat64(DeadlettersTotal)
	statusBefore := testutil.ToFloat64(ProtocolMessagesTotal.WithLabelValues("status.update"))

	notify(types.Event{Type: types.EventDispatchMatched})
	notify(types.Event{Type: types.EventDispatchMatched})
	notify(types.Event{Type: types.EventTaskDeadletter})
	notify(types.Event{Type: types.EventProtocolReceived, Payload: map[string]any{"type": "status.update"}})
	notify(types.Event{Type: types.EventTaskCreated}) // not instrumented

	assert.Equal(t, dispatchesBefore+2, testutil.ToFloat64(DispatchesTotal))
	assert.Equal(t, deadlettersBefore+1, testutil.ToFloat64(DeadlettersTotal))
	assert.Equal(t, statusBefore+1, testutil.ToFloat64(ProtocolMessagesTotal.WithLabelValues("status.update")))
}

func TestCollectorSetsGauges(t *testing.T) {
	root := t.TempDir()
	logger := events.NewLogger(root)
	st := store.New(root, logger)

	_, err := st.Create(store.CreateInput{Title: "backlog task"})
	require.NoError(t, err)
	ready, err := st.Create(store.CreateInput{Title: "ready task", Ready: true})
	require.NoError(t, err)
	_, err = st.Transition(ready.ID, types.StatusInProgress, &store.TransitionOpts{
		Mutate: func(u *types.Task) {
			u.Lease = &types.Lease{Agent: "dev-1", ExpiresAt: time.Now().UTC().Add(time.Hour)}
		},
	})
	require.NoError(t, err)

	c := NewCollector(st)
	c.Collect()

	assert.Equal(t, float64(1), testutil.ToFloat64(TasksTotal.WithLabelValues("backlog")))
	assert.Equal(t, float64(1), testutil.ToFloat64(TasksTotal.WithLabelValues("in-progress")))
	assert.Equal(t, float64(0), testutil.ToFloat64(TasksTotal.WithLabelValues("deadletter")))
	assert.Equal(t, float64(1), testutil.ToFloat64(LeasesActive))
}

func TestCollectorExpiredLeaseNotCountedLive(t *testing.T) {
	root := t.TempDir()
	logger := events.NewLogger(root)
	st := store.New(root, logger)

	task, err := st.Create(store.CreateInput{Title: "stale", Ready: true})
	require.NoError(t, err)
	_, err = st.Transition(task.ID, types.StatusInProgress, &store.TransitionOpts{
		Mutate: func(u *types.Task) {
			u.Lease = &types.Lease{Agent: "dev-1", ExpiresAt: time.Now().UTC().Add(-time.Minute)}
		},
	})
	require.NoError(t, err)

	NewCollector(st).Collect()

	assert.Equal(t, float64(0), testutil.ToFloat64(LeasesActive))
}
