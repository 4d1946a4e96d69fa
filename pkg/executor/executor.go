package executor

import (
	"context"
	"time"

	"github.com/cuemby/aof/pkg/types"
)

// SpawnContext carries everything an executor needs to start an agent
// session. TaskFileContents is the record pre-serialized by the engine so
// executors never read the store themselves.
type SpawnContext struct {
	TaskID           string         `json:"taskId"`
	TaskPath         string         `json:"taskPath"`
	TaskFileContents string         `json:"taskFileContents"`
	Agent            string         `json:"agent"`
	Priority         types.Priority `json:"priority,omitempty"`
	Routing          *types.Routing `json:"routing,omitempty"`
	Thinking         string         `json:"thinking,omitempty"`
	ProjectID        string         `json:"projectId,omitempty"`
	ProjectRoot      string         `json:"projectRoot,omitempty"`
	GateContext      string         `json:"gateContext,omitempty"`
	ContextBundle    string         `json:"contextBundle,omitempty"`
}

// SpawnResult is an executor's answer to SpawnSession. A failed spawn
// carries the error string for classification; PlatformLimit flags
// rejections by the platform's own concurrency cap.
type SpawnResult struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId,omitempty"`
	Error         string `json:"error,omitempty"`
	PlatformLimit bool   `json:"platformLimit,omitempty"`
}

// SessionStatus reports liveness of a spawned session.
type SessionStatus struct {
	SessionID       string     `json:"sessionId"`
	Alive           bool       `json:"alive"`
	LastHeartbeatAt *time.Time `json:"lastHeartbeatAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Executor is the gateway that actually spawns agent sessions. It is the
// engine's only outbound side-effector; implementations live outside the
// core. Any implementation satisfying these three methods suffices.
type Executor interface {
	// SpawnSession starts an agent session for the task. The context
	// carries the caller's timeout; a timed-out spawn is classified
	// transient.
	SpawnSession(ctx context.Context, spawn SpawnContext) (SpawnResult, error)

	// GetSessionStatus reports whether the session is alive and when it
	// last heartbeat.
	GetSessionStatus(sessionID string) (SessionStatus, error)

	// ForceCompleteSession tears down a session the engine has given up
	// on (stale heartbeat recovery).
	ForceCompleteSession(sessionID string) error
}
