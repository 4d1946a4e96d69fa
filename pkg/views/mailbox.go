package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Mailbox is the per-agent projection: what the agent holds, what is queued
// for it, and what came back from review.
type Mailbox struct {
	Agent       string    `json:"agent"`
	GeneratedAt time.Time `json:"generatedAt"`
	Active      []Card    `json:"active"`
	Inbox       []Card    `json:"inbox"`
	Returned    []Card    `json:"returned"`
	Blocked     []Card    `json:"blocked"`
}

// BuildMailbox projects the store into one agent's mailbox. Active holds
// leased in-progress tasks; Inbox holds ready tasks routed to the agent;
// Returned holds tasks a gate sent back to it; Blocked holds its blocked
// routed tasks.
func BuildMailbox(st *store.Store, agent string) (*Mailbox, error) {
	tasks, err := st.List()
	if err != nil {
		return nil, fmt.Errorf("failed to build mailbox view: %w", err)
	}

	mb := &Mailbox{Agent: agent, GeneratedAt: time.Now().UTC()}
	for _, t := range tasks {
		switch t.Status {
		case types.StatusInProgress:
			if t.Lease != nil && t.Lease.Agent == agent {
				mb.Active = append(mb.Active, cardFor(t))
			}
		case types.StatusReady:
			if t.AgentHint() != agent {
				continue
			}
			if t.ReviewContext != nil {
				mb.Returned = append(mb.Returned, cardFor(t))
			} else {
				mb.Inbox = append(mb.Inbox, cardFor(t))
			}
		case types.StatusBlocked:
			if t.AgentHint() == agent || (t.Lease != nil && t.Lease.Agent == agent) {
				mb.Blocked = append(mb.Blocked, cardFor(t))
			}
		}
	}
	sortCards(mb.Active)
	sortCards(mb.Inbox)
	sortCards(mb.Returned)
	sortCards(mb.Blocked)
	return mb, nil
}

func (m *Mailbox) renderCLI() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Mailbox for %s  %s\n", m.Agent, m.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	section := func(name string, cards []Card) {
		fmt.Fprintf(&sb, "\n%s (%d)\n", name, len(cards))
		if len(cards) == 0 {
			sb.WriteString("  -\n")
			return
		}
		for _, c := range cards {
			line := fmt.Sprintf("  %-24s %-8s %s", c.ID, c.Priority, c.Title)
			if c.Gate != "" {
				line += "  [" + c.Gate + "]"
			}
			if len(c.Blockers) > 0 {
				line += "  !" + strings.Join(c.Blockers, "; ")
			}
			sb.WriteString(line + "\n")
		}
	}
	section("ACTIVE", m.Active)
	section("INBOX", m.Inbox)
	section("RETURNED", m.Returned)
	section("BLOCKED", m.Blocked)
	return sb.String()
}

func (m *Mailbox) cards() []Card {
	var out []Card
	out = append(out, m.Active...)
	out = append(out, m.Inbox...)
	out = append(out, m.Returned...)
	out = append(out, m.Blocked...)
	return out
}
