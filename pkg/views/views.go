package views

import (
	"sort"

	"github.com/cuemby/aof/pkg/types"
)

// ViewsDir is the projection output directory under the data root.
const ViewsDir = "views"

// Card is one task as it appears on a projection. Cards carry only what a
// human scanning a board needs; the record on disk stays the source of truth.
type Card struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	Status   types.Status   `json:"status"`
	Priority types.Priority `json:"priority,omitempty"`
	Agent    string         `json:"agent,omitempty"`
	Team     string         `json:"team,omitempty"`
	Gate     string         `json:"gate,omitempty"`
	Blockers []string       `json:"blockers,omitempty"`
	Updated  string         `json:"updated,omitempty"`
}

func cardFor(t *types.Task) Card {
	c := Card{
		ID:       t.ID,
		Title:    t.Title,
		Status:   t.Status,
		Priority: t.Priority,
		Agent:    taskAgent(t),
		Team:     t.Team(),
	}
	if t.InWorkflow() {
		c.Gate = t.Gate.Current
	}
	if rc := t.ReviewContext; rc != nil {
		c.Blockers = rc.Blockers
	}
	if !t.UpdatedAt.IsZero() {
		c.Updated = t.UpdatedAt.UTC().Format("2006-01-02 15:04")
	}
	return c
}

// taskAgent is the lease holder when the task is claimed, the routing hint
// otherwise.
func taskAgent(t *types.Task) string {
	if t.Lease != nil && t.Lease.Agent != "" {
		return t.Lease.Agent
	}
	return t.AgentHint()
}

// sortCards orders by priority rank then id, matching dispatch order.
func sortCards(cards []Card) {
	sort.Slice(cards, func(i, j int) bool {
		if ri, rj := cards[i].Priority.Rank(), cards[j].Priority.Rank(); ri != rj {
			return ri < rj
		}
		return cards[i].ID < cards[j].ID
	})
}
