package protocol

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// WorkLogHeading anchors progress notes inside a task's body.
const WorkLogHeading = "## Work Log"

// statusUpdate is the decoded status.update payload.
type statusUpdate struct {
	Progress string   `mapstructure:"progress"`
	Blockers []string `mapstructure:"blockers"`
	Notes    string   `mapstructure:"notes"`

	// Blocked requests a transition to blocked; blockers alone are
	// informational.
	Blocked bool `mapstructure:"blocked"`
}

// handleStatusUpdate appends a work-log entry and optionally blocks the
// task. No other state changes.
func (r *Router) handleStatusUpdate(target *Target, env *types.Envelope, task *types.Task) error {
	var upd statusUpdate
	if err := mapstructure.WeakDecode(env.Payload, &upd); err != nil {
		return fmt.Errorf("failed to decode status update: %w", err)
	}

	entry := formatWorkLogEntry(env.FromAgent, env.SentAt, &upd)
	if err := appendWorkLog(target.Store, task, entry); err != nil {
		return err
	}

	target.Events.Emit(types.EventStatusUpdated, env.FromAgent, task.ID, map[string]any{
		"progress": upd.Progress,
		"blockers": upd.Blockers,
	})

	if upd.Blocked && len(upd.Blockers) > 0 && !task.Status.IsTerminal() && task.Status != types.StatusBlocked {
		_, err := target.Store.Transition(task.ID, types.StatusBlocked, &store.TransitionOpts{
			Reason:   "agent reported blockers",
			Blockers: upd.Blockers,
			Actor:    env.FromAgent,
			Mutate:   func(u *types.Task) { u.Lease = nil },
		})
		if err != nil {
			return fmt.Errorf("failed to block task: %w", err)
		}
	}
	return nil
}

// appendWorkLog adds an entry under the work-log heading, creating the
// heading on first use.
func appendWorkLog(st *store.Store, task *types.Task, entry string) error {
	section := entry
	if !strings.Contains(task.Body, WorkLogHeading) {
		section = WorkLogHeading + "\n\n" + entry
	}
	if _, err := st.AppendBody(task.ID, section); err != nil {
		return fmt.Errorf("failed to append work log: %w", err)
	}
	return nil
}

func formatWorkLogEntry(agent string, at time.Time, upd *statusUpdate) string {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "### %s by %s\n\n", at.UTC().Format(time.RFC3339), agent)
	if upd.Progress != "" {
		b.WriteString(upd.Progress + "\n")
	}
	if len(upd.Blockers) > 0 {
		b.WriteString("\nBlockers:\n")
		for _, bl := range upd.Blockers {
			b.WriteString("- " + bl + "\n")
		}
	}
	if upd.Notes != "" {
		b.WriteString("\n" + upd.Notes + "\n")
	}
	return b.String()
}
