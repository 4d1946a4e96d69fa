package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/aof/pkg/types"
)

// RunResultFile is the durable completion artifact inside a task's outputs
// side channel.
const RunResultFile = "run-result.json"

// WriteRunResult persists a completion artifact atomically.
func (s *Store) WriteRunResult(id string, rr *types.RunResult) error {
	dir, err := s.WorkspacePath(id, OutputsDir)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}

	path := filepath.Join(dir, RunResultFile)
	tmp, err := os.CreateTemp(dir, RunResultFile+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp run result: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write run result: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync run result: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close run result: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace run result: %w", err)
	}
	return nil
}

// ReadRunResult loads a task's completion artifact. Returns (nil, nil) when
// none has been written.
func (s *Store) ReadRunResult(id string) (*types.RunResult, error) {
	dir, err := s.WorkspacePath(id, OutputsDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, RunResultFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read run result: %w", err)
	}
	var rr types.RunResult
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("failed to parse run result: %w", err)
	}
	return &rr, nil
}

// ExpireRunResult marks the artifact consumed so a later recovery pass does
// not apply it twice. Writes an expired marker when no artifact exists.
func (s *Store) ExpireRunResult(id string) error {
	rr, err := s.ReadRunResult(id)
	if err != nil {
		return err
	}
	if rr == nil {
		rr = &types.RunResult{TaskID: id}
	}
	rr.Expired = true
	return s.WriteRunResult(id, rr)
}
