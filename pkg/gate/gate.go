package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/types"
)

// Gate-layer error kinds.
var (
	// ErrWorkflowMisconfigured reports a workflow the evaluator cannot
	// apply (bad predicate, rejection from a no-reject gate, ...).
	ErrWorkflowMisconfigured = errors.New("workflow misconfigured")

	// ErrGateNotInWorkflow reports a task whose current gate is absent
	// from the configured workflow.
	ErrGateNotInWorkflow = errors.New("gate not in workflow")
)

// Outcome is an agent's verdict on its current gate.
type Outcome string

const (
	OutcomeComplete    Outcome = "complete"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeBlocked     Outcome = "blocked"
)

// Input carries everything Evaluate needs. Now is injectable so the
// function stays pure.
type Input struct {
	Task     *types.Task
	Workflow *config.Workflow
	Outcome  Outcome
	Summary  string
	Blockers []string
	Notes    string
	Agent    string
	Now      time.Time
}

// Result is the computed transition. Apply writes it onto a task; Evaluate
// itself mutates nothing.
type Result struct {
	// Status the task should move to (ready, blocked, or done).
	Status types.Status

	// Gate is the task's next gate ref; nil when the workflow is finished.
	Gate *types.GateRef

	// ReviewContext to set (rejection); nil means clear it (advance) or
	// keep it (blocked).
	ReviewContext *types.ReviewContext

	// ClearReview marks that the prior review context must be dropped.
	ClearReview bool

	// HistoryEntry is appended to the task's gate history, exactly once.
	HistoryEntry types.GateHistoryEntry

	// Skipped lists gates passed over because their when predicate was
	// false.
	Skipped []string
}

// Apply writes the result onto the task. Applying the same result twice
// appends two history entries; callers apply each evaluation once.
func (r *Result) Apply(t *types.Task) {
	t.Status = r.Status
	t.Gate = r.Gate
	t.GateHistory = append(t.GateHistory, r.HistoryEntry)
	if r.ReviewContext != nil {
		t.ReviewContext = r.ReviewContext
	} else if r.ClearReview {
		t.ReviewContext = nil
	}
}

// Evaluate runs the gate state machine for one outcome. It is a pure
// function: the task is read, never written.
//
//   - complete: advance to the next gate whose when predicate holds;
//     conditional gates that evaluate false are recorded in Skipped. With
//     no further active gate the task is done and leaves the workflow.
//   - needs_review: loop back to the first gate (origin strategy) and set
//     the review context for the receiving agent.
//   - blocked: stay at the current gate, block the task.
func Evaluate(in Input) (*Result, error) {
	t := in.Task
	w := in.Workflow
	if w == nil || len(w.Gates) == 0 {
		return nil, fmt.Errorf("%w: task %s has a gate but no workflow is configured", ErrWorkflowMisconfigured, t.ID)
	}
	if t.Gate == nil || t.Gate.Current == "" {
		return nil, fmt.Errorf("%w: task %s is not in a gate", ErrGateNotInWorkflow, t.ID)
	}
	idx := w.GateIndex(t.Gate.Current)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s names gate %q", ErrGateNotInWorkflow, t.ID, t.Gate.Current)
	}
	current := w.Gates[idx]
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	entry := types.GateHistoryEntry{
		Gate:        current.ID,
		Role:        current.Role,
		Agent:       in.Agent,
		Entered:     t.Gate.Entered,
		Exited:      now,
		Outcome:     string(in.Outcome),
		Summary:     in.Summary,
		Blockers:    in.Blockers,
		DurationSec: int64(now.Sub(t.Gate.Entered).Seconds()),
	}

	switch in.Outcome {
	case OutcomeComplete:
		next, skipped, err := nextActiveGate(w, idx, t)
		if err != nil {
			return nil, err
		}
		res := &Result{
			HistoryEntry: entry,
			Skipped:      skipped,
			ClearReview:  true,
		}
		if next == nil {
			res.Status = types.StatusDone
			res.Gate = nil
		} else {
			res.Status = types.StatusReady
			res.Gate = &types.GateRef{Current: next.ID, Entered: now}
		}
		return res, nil

	case OutcomeNeedsReview:
		if !current.CanReject {
			return nil, fmt.Errorf("%w: gate %q cannot reject", ErrWorkflowMisconfigured, current.ID)
		}
		first := w.Gates[0]
		return &Result{
			Status: types.StatusReady,
			Gate:   &types.GateRef{Current: first.ID, Entered: now},
			ReviewContext: &types.ReviewContext{
				FromGate:  current.ID,
				FromAgent: in.Agent,
				FromRole:  current.Role,
				Timestamp: now,
				Blockers:  in.Blockers,
				Notes:     in.Notes,
			},
			HistoryEntry: entry,
		}, nil

	case OutcomeBlocked:
		return &Result{
			Status:       types.StatusBlocked,
			Gate:         &types.GateRef{Current: current.ID, Entered: t.Gate.Entered},
			HistoryEntry: entry,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown gate outcome %q", ErrWorkflowMisconfigured, in.Outcome)
	}
}

// nextActiveGate scans forward from idx for the first gate whose when
// predicate holds, collecting the skipped conditional gates.
func nextActiveGate(w *config.Workflow, idx int, t *types.Task) (*config.Gate, []string, error) {
	var skipped []string
	for i := idx + 1; i < len(w.Gates); i++ {
		g := w.Gates[i]
		if g.When == "" {
			return &w.Gates[i], skipped, nil
		}
		ok, err := EvalWhen(g.When, t)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: gate %q: %v", ErrWorkflowMisconfigured, g.ID, err)
		}
		if ok {
			return &w.Gates[i], skipped, nil
		}
		skipped = append(skipped, g.ID)
	}
	return nil, skipped, nil
}

// Enter places a task at the workflow's first active gate. Used when a
// task with a configured workflow is first dispatched.
func Enter(w *config.Workflow, t *types.Task, now time.Time) (*types.GateRef, []string, error) {
	if w == nil || len(w.Gates) == 0 {
		return nil, nil, fmt.Errorf("%w: empty workflow", ErrWorkflowMisconfigured)
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	next, skipped, err := nextActiveGate(w, -1, t)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return nil, skipped, nil
	}
	return &types.GateRef{Current: next.ID, Entered: now}, skipped, nil
}
