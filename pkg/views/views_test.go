package views

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	root := t.TempDir()
	return store.New(root, events.NewLogger(root))
}

func claim(t *testing.T, st *store.Store, id, agent string) {
	t.Helper()
	_, err := st.Transition(id, types.StatusInProgress, &store.TransitionOpts{
		Mutate: func(u *types.Task) {
			u.Lease = &types.Lease{Agent: agent, ExpiresAt: time.Now().UTC().Add(time.Hour)}
		},
	})
	require.NoError(t, err)
}

func TestBuildKanbanColumnsAndOrder(t *testing.T) {
	st := newStore(t)

	_, err := st.Create(store.CreateInput{Title: "backlog idea"})
	require.NoError(t, err)
	low, err := st.Create(store.CreateInput{Title: "low prio", Priority: types.PriorityLow, Ready: true})
	require.NoError(t, err)
	crit, err := st.Create(store.CreateInput{Title: "critical fix", Priority: types.PriorityCritical, Ready: true})
	require.NoError(t, err)
	active, err := st.Create(store.CreateInput{Title: "claimed", Ready: true})
	require.NoError(t, err)
	claim(t, st, active.ID, "dev-1")

	board, err := BuildKanban(st)
	require.NoError(t, err)
	require.Len(t, board.Columns, len(boardColumns))

	byStatus := make(map[types.Status]Column)
	for _, col := range board.Columns {
		byStatus[col.Status] = col
	}

	assert.Len(t, byStatus[types.StatusBacklog].Cards, 1)
	ready := byStatus[types.StatusReady].Cards
	require.Len(t, ready, 2)
	assert.Equal(t, crit.ID, ready[0].ID, "critical sorts ahead of low")
	assert.Equal(t, low.ID, ready[1].ID)

	inProgress := byStatus[types.StatusInProgress].Cards
	require.Len(t, inProgress, 1)
	assert.Equal(t, "dev-1", inProgress[0].Agent)
	assert.Empty(t, byStatus[types.StatusDeadletter].Cards)
}

func TestBuildMailboxSections(t *testing.T) {
	st := newStore(t)

	active, err := st.Create(store.CreateInput{Title: "working on it", Ready: true})
	require.NoError(t, err)
	claim(t, st, active.ID, "dev-1")

	_, err = st.Create(store.CreateInput{
		Title:   "queued for dev-1",
		Routing: &types.Routing{Agent: "dev-1"},
		Ready:   true,
	})
	require.NoError(t, err)

	returned, err := st.Create(store.CreateInput{
		Title:   "rework",
		Routing: &types.Routing{Agent: "dev-1"},
		Ready:   true,
	})
	require.NoError(t, err)
	_, err = st.Update(returned.ID, func(u *types.Task) error {
		u.ReviewContext = &types.ReviewContext{FromGate: "qa", Blockers: []string{"tests failing"}}
		return nil
	})
	require.NoError(t, err)

	_, err = st.Create(store.CreateInput{
		Title:   "someone else's",
		Routing: &types.Routing{Agent: "dev-2"},
		Ready:   true,
	})
	require.NoError(t, err)

	mb, err := BuildMailbox(st, "dev-1")
	require.NoError(t, err)

	require.Len(t, mb.Active, 1)
	assert.Equal(t, active.ID, mb.Active[0].ID)
	require.Len(t, mb.Inbox, 1)
	require.Len(t, mb.Returned, 1)
	assert.Equal(t, []string{"tests failing"}, mb.Returned[0].Blockers)
	assert.Empty(t, mb.Blocked)
}

func TestRenderFormats(t *testing.T) {
	st := newStore(t)
	_, err := st.Create(store.CreateInput{Title: "a task", Ready: true})
	require.NoError(t, err)

	board, err := BuildKanban(st)
	require.NoError(t, err)

	cli, err := Render(board, FormatCLI)
	require.NoError(t, err)
	assert.Contains(t, string(cli), "READY (1)")
	assert.Contains(t, string(cli), "a task")

	raw, err := Render(board, FormatJSON)
	require.NoError(t, err)
	var decoded Board
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded.Columns, len(boardColumns))

	lines, err := Render(board, FormatJSONL)
	require.NoError(t, err)
	sc := bufio.NewScanner(strings.NewReader(string(lines)))
	count := 0
	for sc.Scan() {
		var c Card
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		count++
	}
	assert.Equal(t, 1, count)

	_, err = Render(board, Format("xml"))
	require.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("yaml")
	require.Error(t, err)
}

func TestWriteFileAtomic(t *testing.T) {
	st := newStore(t)
	_, err := st.Create(store.CreateInput{Title: "a task", Ready: true})
	require.NoError(t, err)

	board, err := BuildKanban(st)
	require.NoError(t, err)

	path, err := WriteFile(st.Root(), "kanban.json", board, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(st.Root(), ViewsDir, "kanban.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded Board
	require.NoError(t, json.Unmarshal(data, &decoded))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file cleaned up")
}

func TestWatcherRebuildsOnStoreChange(t *testing.T) {
	st := newStore(t)
	_, err := st.Create(store.CreateInput{Title: "first", Ready: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rebuilds := make(chan int, 16)
	count := 0
	w := NewWatcher(st)
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func() error {
			count++
			rebuilds <- count
			return nil
		})
	}()

	// Initial rebuild fires before any event.
	select {
	case n := <-rebuilds:
		require.Equal(t, 1, n)
	case <-ctx.Done():
		t.Fatal("timed out waiting for initial rebuild")
	}

	_, err = st.Create(store.CreateInput{Title: "second", Ready: true})
	require.NoError(t, err)

	select {
	case n := <-rebuilds:
		assert.GreaterOrEqual(t, n, 2)
	case <-ctx.Done():
		t.Fatal("timed out waiting for rebuild after create")
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
