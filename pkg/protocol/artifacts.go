package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/aof/pkg/store"
)

// Artifact names inside a task's inputs and outputs side channels.
const (
	HandoffJSONFile = "handoff.json"
	HandoffMDFile   = "handoff.md"
	SummaryFile     = "summary.md"
)

// Handoff is the durable delegation record written to the child task's
// inputs.
type Handoff struct {
	ParentID  string         `json:"parentId"`
	ChildID   string         `json:"childId"`
	FromAgent string         `json:"fromAgent"`
	ToAgent   string         `json:"toAgent,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	SentAt    time.Time      `json:"sentAt"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// WriteHandoff persists both forms of the handoff record: the JSON for
// tooling and the markdown brief the receiving agent reads.
func WriteHandoff(st *store.Store, taskID string, h *Handoff) error {
	dir, err := st.WorkspacePath(taskID, store.InputsDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode handoff: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, HandoffJSONFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write handoff json: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Handoff\n\n")
	fmt.Fprintf(&b, "- From: %s (task %s)\n", h.FromAgent, h.ParentID)
	if h.ToAgent != "" {
		fmt.Fprintf(&b, "- To: %s\n", h.ToAgent)
	}
	fmt.Fprintf(&b, "- Sent: %s\n", h.SentAt.UTC().Format(time.RFC3339))
	if h.Reason != "" {
		b.WriteString("\n## Reason\n\n" + h.Reason + "\n")
	}
	if err := os.WriteFile(filepath.Join(dir, HandoffMDFile), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write handoff brief: %w", err)
	}
	return nil
}

// ReadHandoff loads the JSON handoff record from a task's inputs. Returns
// (nil, nil) when none exists.
func ReadHandoff(st *store.Store, taskID string) (*Handoff, error) {
	dir, err := st.WorkspacePath(taskID, store.InputsDir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, HandoffJSONFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read handoff: %w", err)
	}
	var h Handoff
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("failed to parse handoff: %w", err)
	}
	return &h, nil
}

// WriteSummary stores a completion summary in the task's outputs and
// returns its ref (the path relative to the outputs dir).
func WriteSummary(st *store.Store, taskID, summary string) (string, error) {
	dir, err := st.WorkspacePath(taskID, store.OutputsDir)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(summary, "\n") {
		summary += "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("failed to write summary: %w", err)
	}
	return filepath.Join(store.OutputsDir, SummaryFile), nil
}

// ReadSummary loads the summary artifact. Returns "" when none exists.
func ReadSummary(st *store.Store, taskID string) (string, error) {
	dir, err := st.WorkspacePath(taskID, store.OutputsDir)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read summary: %w", err)
	}
	return string(data), nil
}
