package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/aof/pkg/types"
)

// LintFinding reports one malformed or inconsistent record.
type LintFinding struct {
	Task  string `json:"task"`
	Issue string `json:"issue"`
}

// Lint scans every status bucket and reports malformed records. Each schema
// failure emits a task.validation.failed event rather than being silently
// skipped.
func (s *Store) Lint() ([]LintFinding, error) {
	var findings []LintFinding
	report := func(task, issue string) {
		findings = append(findings, LintFinding{Task: task, Issue: issue})
		s.emit(types.EventTaskValidationFailed, "lint", task, map[string]any{"issue": issue})
	}

	seen := make(map[string]string)
	for _, status := range types.AllStatuses() {
		bucket := s.bucketDir(status)
		entries, err := os.ReadDir(bucket)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to scan %s bucket: %w", status, err)
		}
		for _, e := range entries {
			name := strings.TrimSuffix(e.Name(), ".md")
			recordPath := filepath.Join(bucket, e.Name())
			if e.IsDir() {
				recordPath = filepath.Join(recordPath, RecordFile)
			} else if !strings.HasSuffix(e.Name(), ".md") {
				continue
			}

			if prior, dup := seen[name]; dup {
				report(name, fmt.Sprintf("record exists in both %s and %s buckets", prior, status))
				continue
			}
			seen[name] = string(status)

			data, err := os.ReadFile(recordPath)
			if err != nil {
				report(name, fmt.Sprintf("unreadable record: %v", err))
				continue
			}
			t, err := UnmarshalRecord(data)
			if err != nil {
				report(name, err.Error())
				continue
			}
			if t.ID != name {
				report(name, fmt.Sprintf("record id %q does not match path", t.ID))
			}
			if t.Status != status {
				report(name, fmt.Sprintf("frontmatter status %q disagrees with %s bucket", t.Status, status))
			}
			if t.Lease != nil && status != types.StatusInProgress {
				report(name, fmt.Sprintf("lease present on %s task", status))
			}
			if t.Lease == nil && status == types.StatusInProgress {
				report(name, "in-progress task has no lease")
			}
			if t.Gate != nil && t.Gate.Current == "" {
				report(name, "gate ref missing current gate")
			}
		}
	}
	return findings, nil
}
