package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Spool directory layout, relative to the data root. The engine writes one
// spawn request per task; the gateway consumes requests and reports session
// liveness back through the sessions directory.
const (
	SpawnsDir   = ".aof/spawns"
	SessionsDir = ".aof/sessions"
)

// ErrSessionUnknown reports a session the gateway has not written a status
// file for yet.
var ErrSessionUnknown = errors.New("session status not reported")

// SpawnRequest is the on-disk form of a spooled spawn.
type SpawnRequest struct {
	SessionID string       `json:"sessionId"`
	SpawnedAt time.Time    `json:"spawnedAt"`
	Spawn     SpawnContext `json:"spawn"`
}

// Spool is a filesystem-backed Executor: spawns become JSON requests under
// .aof/spawns/ for an out-of-process gateway, and session status is read
// back from .aof/sessions/. It lets the engine run against any gateway that
// can watch a directory.
type Spool struct {
	root string
}

// NewSpool builds a spool executor rooted at the data directory.
func NewSpool(root string) *Spool {
	return &Spool{root: root}
}

// SpawnSession writes the spawn request and mints the session id. The
// request file is named after the task so a re-dispatch overwrites the
// stale request instead of queueing a duplicate.
func (s *Spool) SpawnSession(ctx context.Context, spawn SpawnContext) (SpawnResult, error) {
	if err := ctx.Err(); err != nil {
		return SpawnResult{}, fmt.Errorf("spawn cancelled: %w", err)
	}

	req := SpawnRequest{
		SessionID: uuid.NewString(),
		SpawnedAt: time.Now().UTC(),
		Spawn:     spawn,
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return SpawnResult{}, fmt.Errorf("failed to marshal spawn request: %w", err)
	}

	dir := filepath.Join(s.root, SpawnsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SpawnResult{}, fmt.Errorf("failed to create spawn spool: %w", err)
	}

	path := filepath.Join(dir, spawn.TaskID+".json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return SpawnResult{}, fmt.Errorf("failed to write spawn request: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return SpawnResult{}, fmt.Errorf("failed to write spawn request: %w", err)
	}

	return SpawnResult{Success: true, SessionID: req.SessionID}, nil
}

// GetSessionStatus reads the gateway's status file. A session without one
// yields ErrSessionUnknown so callers treat it as not-yet-reported rather
// than dead.
func (s *Spool) GetSessionStatus(sessionID string) (SessionStatus, error) {
	data, err := os.ReadFile(s.sessionPath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return SessionStatus{}, fmt.Errorf("%w: %s", ErrSessionUnknown, sessionID)
		}
		return SessionStatus{}, fmt.Errorf("failed to read session status: %w", err)
	}
	var status SessionStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return SessionStatus{}, fmt.Errorf("failed to parse session status: %w", err)
	}
	return status, nil
}

// ForceCompleteSession marks the session dead in its status file. The
// gateway sees the flip and tears the session down on its side.
func (s *Spool) ForceCompleteSession(sessionID string) error {
	status, err := s.GetSessionStatus(sessionID)
	if err != nil && !errors.Is(err, ErrSessionUnknown) {
		return err
	}
	now := time.Now().UTC()
	status.SessionID = sessionID
	status.Alive = false
	status.CompletedAt = &now

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session status: %w", err)
	}
	dir := filepath.Join(s.root, SessionsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}
	tmp := s.sessionPath(sessionID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write session status: %w", err)
	}
	if err := os.Rename(tmp, s.sessionPath(sessionID)); err != nil {
		return fmt.Errorf("failed to write session status: %w", err)
	}
	return nil
}

func (s *Spool) sessionPath(sessionID string) string {
	return filepath.Join(s.root, SessionsDir, sessionID+".json")
}
