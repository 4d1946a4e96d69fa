package protocol

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/cuemby/aof/pkg/gate"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// completionReport is the decoded completion.report payload.
type completionReport struct {
	Outcome      string           `mapstructure:"outcome"`
	Summary      string           `mapstructure:"summary"`
	SummaryRef   string           `mapstructure:"summaryRef"`
	Deliverables []string         `mapstructure:"deliverables"`
	Tests        types.TestTotals `mapstructure:"tests"`
	Blockers     []string         `mapstructure:"blockers"`
	Notes        string           `mapstructure:"notes"`
}

// handleCompletion writes the durable run-result artifact, then applies the
// transition: through the gate evaluator for workflow tasks, or the direct
// status mapping otherwise. The caller already holds the per-task lock.
func (r *Router) handleCompletion(target *Target, env *types.Envelope, task *types.Task) error {
	var rep completionReport
	if err := mapstructure.WeakDecode(env.Payload, &rep); err != nil {
		return fmt.Errorf("failed to decode completion report: %w", err)
	}
	outcome := types.Outcome(rep.Outcome)
	if !outcome.Valid() {
		target.Events.Emit(types.EventProtocolRejected, env.FromAgent, task.ID, map[string]any{
			"reason": RejectInvalidEnvelope,
			"detail": fmt.Sprintf("unknown outcome %q", rep.Outcome),
		})
		return fmt.Errorf("%s: unknown outcome %q", RejectInvalidEnvelope, rep.Outcome)
	}

	if rep.Summary != "" && rep.SummaryRef == "" {
		ref, err := WriteSummary(target.Store, task.ID, rep.Summary)
		if err != nil {
			r.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to write summary artifact")
		} else {
			rep.SummaryRef = ref
		}
	}

	now := time.Now().UTC()
	rr := &types.RunResult{
		TaskID:       task.ID,
		Outcome:      outcome,
		SummaryRef:   rep.SummaryRef,
		Deliverables: rep.Deliverables,
		Tests:        rep.Tests,
		Blockers:     rep.Blockers,
		Notes:        rep.Notes,
		ReportedBy:   env.FromAgent,
		ReportedAt:   now,
	}
	if err := target.Store.WriteRunResult(task.ID, rr); err != nil {
		return fmt.Errorf("failed to write run result: %w", err)
	}

	var applyErr error
	if task.InWorkflow() && target.Manifest != nil && target.Manifest.Workflow != nil {
		applyErr = r.applyGated(target, env, task, outcome, &rep, now)
	} else {
		applyErr = r.applyDirect(target, env, task, outcome, &rep)
	}
	if applyErr != nil {
		return applyErr
	}

	target.Events.Emit(types.EventCompletionApplied, env.FromAgent, task.ID, map[string]any{
		"outcome": string(outcome),
		"tests":   rep.Tests,
	})
	return nil
}

// applyGated runs the gate evaluator and applies its result in one write.
func (r *Router) applyGated(target *Target, env *types.Envelope, task *types.Task,
	outcome types.Outcome, rep *completionReport, now time.Time) error {

	// Partial results keep the task at its gate; requeue for another
	// session without consulting the evaluator.
	if outcome == types.OutcomePartial {
		_, err := target.Store.Transition(task.ID, types.StatusReady, &store.TransitionOpts{
			Reason: "partial completion",
			Actor:  env.FromAgent,
			Mutate: func(u *types.Task) { u.Lease = nil },
		})
		return err
	}

	gateOutcome := map[types.Outcome]gate.Outcome{
		types.OutcomeDone:        gate.OutcomeComplete,
		types.OutcomeNeedsReview: gate.OutcomeNeedsReview,
		types.OutcomeBlocked:     gate.OutcomeBlocked,
	}[outcome]

	result, err := gate.Evaluate(gate.Input{
		Task:     task,
		Workflow: target.Manifest.Workflow,
		Outcome:  gateOutcome,
		Summary:  rep.Summary,
		Blockers: rep.Blockers,
		Notes:    rep.Notes,
		Agent:    env.FromAgent,
		Now:      now,
	})
	if err != nil {
		return fmt.Errorf("gate evaluation failed: %w", err)
	}

	_, err = target.Store.Transition(task.ID, result.Status, &store.TransitionOpts{
		Blockers: rep.Blockers,
		Actor:    env.FromAgent,
		Mutate: func(u *types.Task) {
			result.Apply(u)
			u.Lease = nil
		},
	})
	if err != nil {
		return err
	}

	if result.Status == types.StatusDone {
		r.noteDone(target, task)
	}
	return nil
}

// applyDirect maps the outcome straight to a status for ungated tasks.
func (r *Router) applyDirect(target *Target, env *types.Envelope, task *types.Task,
	outcome types.Outcome, rep *completionReport) error {

	status := map[types.Outcome]types.Status{
		types.OutcomeDone:        types.StatusDone,
		types.OutcomeNeedsReview: types.StatusReview,
		types.OutcomeBlocked:     types.StatusBlocked,
		types.OutcomePartial:     types.StatusReady,
	}[outcome]

	_, err := target.Store.Transition(task.ID, status, &store.TransitionOpts{
		Reason:   "completion: " + string(outcome),
		Blockers: rep.Blockers,
		Actor:    env.FromAgent,
		Mutate:   func(u *types.Task) { u.Lease = nil },
	})
	if err != nil {
		return err
	}

	if status == types.StatusDone {
		r.noteDone(target, task)
	}
	return nil
}

func (r *Router) noteDone(target *Target, task *types.Task) {
	if target.Murmur == nil {
		return
	}
	if err := target.Murmur.OnTaskDone(task); err != nil {
		r.logger.Warn().Err(err).Str("task_id", task.ID).Msg("Failed to record completion for murmur")
	}
}
