package executor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolSpawnWritesRequest(t *testing.T) {
	root := t.TempDir()
	sp := NewSpool(root)

	result, err := sp.SpawnSession(context.Background(), SpawnContext{
		TaskID: "TASK-2026-08-26-001",
		Agent:  "dev-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.SessionID)

	data, err := os.ReadFile(filepath.Join(root, SpawnsDir, "TASK-2026-08-26-001.json"))
	require.NoError(t, err)

	var req SpawnRequest
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, result.SessionID, req.SessionID)
	assert.Equal(t, "dev-1", req.Spawn.Agent)
	assert.False(t, req.SpawnedAt.IsZero())
}

func TestSpoolRedispatchOverwritesRequest(t *testing.T) {
	root := t.TempDir()
	sp := NewSpool(root)
	ctx := context.Background()

	first, err := sp.SpawnSession(ctx, SpawnContext{TaskID: "TASK-1", Agent: "dev-1"})
	require.NoError(t, err)
	second, err := sp.SpawnSession(ctx, SpawnContext{TaskID: "TASK-1", Agent: "dev-2"})
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)

	entries, err := os.ReadDir(filepath.Join(root, SpawnsDir))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(root, SpawnsDir, "TASK-1.json"))
	require.NoError(t, err)
	var req SpawnRequest
	require.NoError(t, json.Unmarshal(data, &req))
	assert.Equal(t, "dev-2", req.Spawn.Agent)
}

func TestSpoolSpawnCancelledContext(t *testing.T) {
	sp := NewSpool(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sp.SpawnSession(ctx, SpawnContext{TaskID: "TASK-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSpoolSessionStatusRoundTrip(t *testing.T) {
	root := t.TempDir()
	sp := NewSpool(root)

	_, err := sp.GetSessionStatus("missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSessionUnknown))

	// Gateway reports a heartbeat.
	hb := time.Now().UTC().Truncate(time.Second)
	reported := SessionStatus{SessionID: "sess-1", Alive: true, LastHeartbeatAt: &hb}
	data, err := json.Marshal(reported)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, SessionsDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, SessionsDir, "sess-1.json"), data, 0o644))

	status, err := sp.GetSessionStatus("sess-1")
	require.NoError(t, err)
	assert.True(t, status.Alive)
	require.NotNil(t, status.LastHeartbeatAt)
	assert.True(t, status.LastHeartbeatAt.Equal(hb))
}

func TestSpoolForceComplete(t *testing.T) {
	root := t.TempDir()
	sp := NewSpool(root)

	// Works even before the gateway ever reported.
	require.NoError(t, sp.ForceCompleteSession("sess-9"))

	status, err := sp.GetSessionStatus("sess-9")
	require.NoError(t, err)
	assert.False(t, status.Alive)
	require.NotNil(t, status.CompletedAt)
}
