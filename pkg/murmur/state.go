package murmur

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StateDir holds per-team review state, relative to the project root.
const StateDir = ".murmur"

// State is one team's review-cycle bookkeeping, persisted as
// .murmur/<team-id>.json.
type State struct {
	CurrentReviewTaskID        string     `json:"currentReviewTaskId,omitempty"`
	ReviewStartedAt            *time.Time `json:"reviewStartedAt,omitempty"`
	LastReviewAt               *time.Time `json:"lastReviewAt,omitempty"`
	LastTriggeredBy            string     `json:"lastTriggeredBy,omitempty"`
	CompletionsSinceLastReview int        `json:"completionsSinceLastReview"`
	FailuresSinceLastReview    int        `json:"failuresSinceLastReview"`
}

// InReview reports whether a review task is currently outstanding.
func (s *State) InReview() bool { return s.CurrentReviewTaskID != "" }

func (m *Manager) statePath(teamID string) string {
	return filepath.Join(m.root, StateDir, teamID+".json")
}

// loadState reads a team's state, returning the zero state when the file
// does not exist yet. Callers hold the team lock.
func (m *Manager) loadState(teamID string) (*State, error) {
	data, err := os.ReadFile(m.statePath(teamID))
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}
		return nil, fmt.Errorf("failed to read murmur state: %w", err)
	}
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse murmur state: %w", err)
	}
	return &s, nil
}

// saveState writes a team's state atomically. Callers hold the team lock.
func (m *Manager) saveState(teamID string, s *State) error {
	dir := filepath.Join(m.root, StateDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create murmur dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode murmur state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, teamID+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write murmur state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync murmur state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close murmur state: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.statePath(teamID)); err != nil {
		return fmt.Errorf("failed to replace murmur state: %w", err)
	}
	return nil
}
