package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// WorkspacePath returns the side-channel folder of the given kind for a
// directory-form task. File-form tasks have no workspace.
func (s *Store) WorkspacePath(id, kind string) (string, error) {
	_, basePath, _, err := s.locate(id)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(basePath)
	if err != nil || !fi.IsDir() {
		return "", ValidationError(id, "task has no workspace (file-form record)")
	}
	dir := filepath.Join(basePath, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s folder: %w", kind, err)
	}
	return dir, nil
}

// RecordPath returns the on-disk path of the task's record file.
func (s *Store) RecordPath(id string) (string, error) {
	recordPath, _, _, err := s.locate(id)
	if err != nil {
		return "", err
	}
	return recordPath, nil
}

// RecordBytes returns the serialized record as stored on disk.
func (s *Store) RecordBytes(id string) ([]byte, error) {
	recordPath, _, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(recordPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return data, nil
}

// TaskInputs lists the file names in the task's inputs/ folder.
func (s *Store) TaskInputs(id string) ([]string, error) {
	return s.listSideChannel(id, InputsDir)
}

// TaskOutputs lists the file names in the task's outputs/ folder.
func (s *Store) TaskOutputs(id string) ([]string, error) {
	return s.listSideChannel(id, OutputsDir)
}

func (s *Store) listSideChannel(id, kind string) ([]string, error) {
	_, basePath, _, err := s.locate(id)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(basePath, kind))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list %s for %s: %w", kind, id, err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
