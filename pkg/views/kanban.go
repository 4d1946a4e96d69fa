package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// boardColumns lists the status buckets shown on the kanban board, in
// display order. Terminal buckets other than deadletter are omitted; done
// and cancelled tasks are history, deadletter needs operator attention.
var boardColumns = []types.Status{
	types.StatusBacklog,
	types.StatusReady,
	types.StatusInProgress,
	types.StatusReview,
	types.StatusBlocked,
	types.StatusDeadletter,
}

// Column is one status bucket on the board.
type Column struct {
	Status types.Status `json:"status"`
	Cards  []Card       `json:"cards"`
}

// Board is the kanban projection of the task store.
type Board struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Columns     []Column  `json:"columns"`
}

// BuildKanban projects the store into a board.
func BuildKanban(st *store.Store) (*Board, error) {
	tasks, err := st.List()
	if err != nil {
		return nil, fmt.Errorf("failed to build kanban view: %w", err)
	}

	byStatus := make(map[types.Status][]Card)
	for _, t := range tasks {
		byStatus[t.Status] = append(byStatus[t.Status], cardFor(t))
	}

	board := &Board{GeneratedAt: time.Now().UTC()}
	for _, status := range boardColumns {
		cards := byStatus[status]
		sortCards(cards)
		board.Columns = append(board.Columns, Column{Status: status, Cards: cards})
	}
	return board, nil
}

// renderCLI draws the board as a column-per-bucket text listing.
func (b *Board) renderCLI() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Kanban  %s\n", b.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	for _, col := range b.Columns {
		fmt.Fprintf(&sb, "\n%s (%d)\n", strings.ToUpper(string(col.Status)), len(col.Cards))
		if len(col.Cards) == 0 {
			sb.WriteString("  -\n")
			continue
		}
		for _, c := range col.Cards {
			line := fmt.Sprintf("  %-24s %-8s %s", c.ID, c.Priority, c.Title)
			if c.Agent != "" {
				line += "  @" + c.Agent
			}
			if c.Gate != "" {
				line += "  [" + c.Gate + "]"
			}
			sb.WriteString(line + "\n")
		}
	}
	return sb.String()
}

// cards flattens the board for jsonl rendering, column order preserved.
func (b *Board) cards() []Card {
	var out []Card
	for _, col := range b.Columns {
		out = append(out, col.Cards...)
	}
	return out
}
