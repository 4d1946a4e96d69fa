package gate

import (
	"fmt"
	"strings"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/types"
)

// BuildContext renders a human-readable brief for the agent entering a
// gate: its role, what the stage expects, the outcomes it can report, and
// any rejection context from a previous review. The result is passed as
// gateContext through SpawnSession so agents never read raw workflow
// config.
func BuildContext(t *types.Task, g *config.Gate, w *config.Workflow) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Workflow Stage: %s\n\n", g.ID)
	fmt.Fprintf(&b, "You are acting as the %s for this stage.\n", orUnspecified(g.Role))
	if g.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", g.Description)
	}
	if g.RequireHuman {
		b.WriteString("\nThis stage requires human sign-off before the task can advance.\n")
	}

	b.WriteString("\n### Position\n\n")
	idx := w.GateIndex(g.ID)
	for i, other := range w.Gates {
		marker := "  "
		if i == idx {
			marker = "->"
		}
		fmt.Fprintf(&b, "%s %d. %s (%s)\n", marker, i+1, other.ID, other.Role)
	}

	b.WriteString("\n### Outcomes\n\n")
	b.WriteString("- complete: this stage's work is finished; the task advances\n")
	if g.CanReject {
		b.WriteString("- needs_review: reject the work back to the first stage with blockers\n")
	}
	b.WriteString("- blocked: you cannot proceed; report blockers\n")

	if rc := t.ReviewContext; rc != nil {
		b.WriteString("\n### Returned From Review\n\n")
		fmt.Fprintf(&b, "Gate %s (%s) sent this task back", rc.FromGate, orUnspecified(rc.FromRole))
		if rc.FromAgent != "" {
			fmt.Fprintf(&b, " via %s", rc.FromAgent)
		}
		b.WriteString(".\n")
		if len(rc.Blockers) > 0 {
			b.WriteString("\nBlockers raised:\n")
			for _, blocker := range rc.Blockers {
				fmt.Fprintf(&b, "- %s\n", blocker)
			}
		}
		if rc.Notes != "" {
			fmt.Fprintf(&b, "\nNotes: %s\n", rc.Notes)
		}
	}

	if n := len(t.GateHistory); n > 0 {
		b.WriteString("\n### Tips\n\n")
		fmt.Fprintf(&b, "This task has been through %d gate visit(s); check the record's gate history before redoing work.\n", n)
	}

	return b.String()
}

func orUnspecified(s string) string {
	if s == "" {
		return "unspecified role"
	}
	return s
}
