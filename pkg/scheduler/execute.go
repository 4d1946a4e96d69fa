package scheduler

import (
	"context"
	"time"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// execute applies the planned actions in order, then runs the dependency
// cascade for tasks completed during this poll.
func (s *Scheduler) execute(ctx context.Context, res *Result, now time.Time) {
	murmurRan := false
	slaRan := false
	completed := false

	for _, a := range res.Actions {
		var err error
		switch a.Type {
		case types.ActionExpireLease:
			_, err = s.leases.Reclaim(a.TaskID)
			if err == nil {
				res.Stats.LeasesExpired++
				res.Stats.TasksRequeued++
			}

		case types.ActionStaleHeartbeat:
			var done bool
			done, err = s.recoverStale(a, res, now)
			completed = completed || done

		case types.ActionPromote:
			_, err = s.store.Transition(a.TaskID, types.StatusReady, &store.TransitionOpts{Actor: "scheduler"})
			if err == nil {
				res.Stats.TasksPromoted++
			}

		case types.ActionRequeue:
			_, err = s.store.Transition(a.TaskID, types.StatusReady, &store.TransitionOpts{
				Reason: a.Reason,
				Actor:  "scheduler",
			})
			if err == nil {
				res.Stats.TasksRequeued++
			}

		case types.ActionDeadletter:
			err = s.deadletter(a)

		case types.ActionAssign:
			err = s.dispatch(ctx, res, a, now)
			if err == nil {
				res.Stats.ActionsExecuted++
			}

		case types.ActionSLAViolation:
			if slaRan {
				continue
			}
			slaRan = true
			err = s.runSLACheck(now)

		case types.ActionMurmurCreateTask:
			if murmurRan {
				continue
			}
			murmurRan = true
			_, err = s.murmur.Run(now)
		}

		if err != nil {
			res.Stats.ActionsFailed++
			s.logger.Warn().Err(err).Str("type", string(a.Type)).
				Str("task_id", a.TaskID).Msg("Action failed")
		}
	}

	// A skipped trigger means a review is outstanding; Run still owes that
	// team its stale-review cleanup even though no task is created.
	if s.murmur != nil && !murmurRan && res.Stats.ReviewsSkipped > 0 {
		if _, err := s.murmur.Run(now); err != nil {
			s.logger.Warn().Err(err).Msg("Murmur cleanup failed")
		}
	}

	if completed {
		s.cascade(res)
	}
}

// runSLACheck re-reads in-progress tasks and lets the checker emit its
// rate-limited alerts.
func (s *Scheduler) runSLACheck(now time.Time) error {
	tasks, err := s.store.ListByStatus(types.StatusInProgress)
	if err != nil {
		return err
	}
	s.checker.Check(tasks, now)
	return nil
}

// cascade re-evaluates dependents after completions: any backlog task whose
// dependencies are now all done gets promoted.
func (s *Scheduler) cascade(res *Result) {
	ready, err := s.store.ComputeReadyTasks()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Cascade pass failed")
		return
	}
	for _, t := range ready {
		if _, err := s.store.Transition(t.ID, types.StatusReady, &store.TransitionOpts{
			Reason: "dependency cascade",
			Actor:  "scheduler",
		}); err != nil {
			res.Stats.ActionsFailed++
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Cascade promotion failed")
			continue
		}
		res.Stats.TasksPromoted++
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:      types.ActionPromote,
			TaskID:    t.ID,
			TaskTitle: t.Title,
			Reason:    "dependency cascade",
		})
	}
}

// recoverStale handles a dead or silent session. A durable run result, when
// present and unconsumed, decides the task's fate; otherwise the task is
// reclaimed to ready and the artifact marked expired. Returns whether the
// task completed.
func (s *Scheduler) recoverStale(a types.SchedulerAction, res *Result, now time.Time) (bool, error) {
	t, err := s.store.Get(a.TaskID)
	if err != nil {
		return false, err
	}

	if sessionID := t.Meta().String(types.MetaSessionID); sessionID != "" {
		if err := s.exec.ForceCompleteSession(sessionID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to force-complete session")
		} else {
			s.events.Emit(types.EventSessionForced, "scheduler", t.ID, map[string]any{
				"sessionId": sessionID,
			})
		}
	}

	rr, err := s.store.ReadRunResult(t.ID)
	if err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to read run result")
	}
	if rr == nil || rr.Expired {
		if _, err := s.leases.Reclaim(t.ID); err != nil {
			return false, err
		}
		res.Stats.TasksRequeued++
		if err := s.store.ExpireRunResult(t.ID); err != nil {
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to expire run result")
		}
		return false, nil
	}

	clearLease := func(u *types.Task) { u.Lease = nil }
	completed := false
	switch rr.Outcome {
	case types.OutcomeDone:
		_, err = s.store.Transition(t.ID, types.StatusDone, &store.TransitionOpts{
			Reason: "recovered run result",
			Actor:  "scheduler",
			Mutate: clearLease,
		})
		if err == nil {
			completed = true
			if s.murmur != nil {
				if merr := s.murmur.OnTaskDone(t); merr != nil {
					s.logger.Warn().Err(merr).Str("task_id", t.ID).Msg("Failed to record completion for murmur")
				}
			}
		}
	case types.OutcomeBlocked:
		_, err = s.store.Transition(t.ID, types.StatusBlocked, &store.TransitionOpts{
			Reason:   "recovered run result: blocked",
			Blockers: rr.Blockers,
			Actor:    "scheduler",
			Mutate:   clearLease,
		})
	case types.OutcomeNeedsReview:
		_, err = s.store.Transition(t.ID, types.StatusReview, &store.TransitionOpts{
			Reason: "recovered run result: needs review",
			Actor:  "scheduler",
			Mutate: clearLease,
		})
	case types.OutcomePartial:
		_, err = s.leases.Reclaim(t.ID)
		if err == nil {
			res.Stats.TasksRequeued++
		}
	default:
		_, err = s.leases.Reclaim(t.ID)
	}
	if err != nil {
		return false, err
	}

	if err := s.store.ExpireRunResult(t.ID); err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to expire run result")
	}
	return completed, nil
}
