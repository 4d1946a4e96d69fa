package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/aof/pkg/assembler"
	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/executor"
	"github.com/cuemby/aof/pkg/gate"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// resolveAgent picks the agent for a ready task. Gated tasks resolve the
// current gate's role first; otherwise explicit routing.agent wins, then
// routing.role, then the first active member of routing.team.
func (s *Scheduler) resolveAgent(t *types.Task) (agent, team string) {
	var org *config.OrgChart
	if s.project != nil {
		org = s.project.Org
	}

	if t.InWorkflow() && s.workflow() != nil {
		if g := s.workflow().GateByID(t.Gate.Current); g != nil && g.Role != "" {
			if a := org.FirstActiveByRole(g.Role); a != nil {
				return a.ID, s.agentTeam(org, a.ID, t)
			}
		}
	}

	if hint := t.AgentHint(); hint != "" {
		if a := org.AgentByID(hint); a == nil || a.Active() {
			return hint, s.agentTeam(org, hint, t)
		}
	}
	if t.Routing != nil && t.Routing.Role != "" {
		if a := org.FirstActiveByRole(t.Routing.Role); a != nil {
			return a.ID, s.agentTeam(org, a.ID, t)
		}
	}
	if t.Routing != nil && t.Routing.Team != "" {
		if a := org.FirstActiveMember(t.Routing.Team); a != nil {
			return a.ID, t.Routing.Team
		}
	}
	return "", ""
}

func (s *Scheduler) agentTeam(org *config.OrgChart, agentID string, t *types.Task) string {
	if team := t.Team(); team != "" {
		return team
	}
	if tm := org.TeamOf(agentID); tm != nil {
		return tm.ID
	}
	return ""
}

// contextBudget returns the agent's context policy, nil when unset.
func (s *Scheduler) contextBudget(agentID string) *config.ContextBudget {
	if s.project == nil {
		return nil
	}
	a := s.project.Org.AgentByID(agentID)
	if a == nil || a.Policies == nil {
		return nil
	}
	return a.Policies.Context
}

func (s *Scheduler) workflow() *config.Workflow {
	if s.project == nil || s.project.Manifest == nil {
		return nil
	}
	return s.project.Manifest.Workflow
}

// dispatch spawns a session for one assign action: place the task at its
// first gate if it opts into the workflow, read the record once, spawn, and
// on success take the lease in the same transition that moves the task to
// in-progress.
func (s *Scheduler) dispatch(ctx context.Context, res *Result, a types.SchedulerAction, now time.Time) error {
	t, err := s.store.Get(a.TaskID)
	if err != nil {
		return err
	}
	if t.Status != types.StatusReady {
		return fmt.Errorf("task %s no longer ready", t.ID)
	}

	if w := s.workflow(); w != nil && !t.InWorkflow() && t.Routing != nil && t.Routing.Workflow != "" {
		ref, _, err := gate.Enter(w, t, now)
		if err != nil {
			return fmt.Errorf("failed to enter workflow: %w", err)
		}
		if ref != nil {
			if _, err := s.store.Update(t.ID, func(u *types.Task) error {
				u.Gate = ref
				return nil
			}); err != nil {
				return err
			}
			t.Gate = ref
		}
	}

	gateContext := ""
	if w := s.workflow(); w != nil && t.InWorkflow() {
		if g := w.GateByID(t.Gate.Current); g != nil {
			gateContext = gate.BuildContext(t, g, w)
		}
	}

	contents, err := s.store.RecordBytes(t.ID)
	if err != nil {
		return fmt.Errorf("failed to read task record: %w", err)
	}
	path, err := s.store.RecordPath(t.ID)
	if err != nil {
		return err
	}

	// Context assembly failures degrade the session, never the dispatch.
	bundle := ""
	opts := assembler.Options{}
	budget := s.contextBudget(a.Agent)
	if budget != nil {
		opts.MaxChars = budget.Critical
	}
	if b, err := s.asm.Assemble(t.ID, opts); err != nil {
		s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Context assembly failed")
	} else {
		bundle = b.Summary
		if budget != nil && budget.Warn > 0 && b.TotalChars >= budget.Warn {
			s.logger.Warn().Str("task_id", t.ID).Str("agent", a.Agent).
				Int("chars", b.TotalChars).Int("warn", budget.Warn).
				Msg("Context bundle over warn budget")
		}
	}

	spawn := executor.SpawnContext{
		TaskID:           t.ID,
		TaskPath:         path,
		TaskFileContents: string(contents),
		Agent:            a.Agent,
		Priority:         t.Priority,
		Routing:          t.Routing,
		ProjectRoot:      s.store.Root(),
		GateContext:      gateContext,
		ContextBundle:    bundle,
	}
	if s.project != nil && s.project.Manifest != nil {
		spawn.ProjectID = s.project.Manifest.ID
	}

	s.events.Emit(types.EventDispatchMatched, "scheduler", t.ID, map[string]any{
		"agent": a.Agent,
		"team":  a.Team,
	})
	s.events.Emit(types.EventActionStarted, "scheduler", t.ID, map[string]any{
		"action": string(types.ActionAssign),
		"agent":  a.Agent,
	})

	spawnCtx, cancel := context.WithTimeout(ctx, s.cfg.SpawnTimeout)
	defer cancel()
	result, err := s.exec.SpawnSession(spawnCtx, spawn)
	if err == nil && !result.Success {
		err = fmt.Errorf("spawn failed: %s", result.Error)
	}
	if err != nil {
		return s.spawnFailed(res, t, a, err, now)
	}

	if _, err := s.leases.Acquire(t.ID, a.Agent, s.cfg.LeaseTTL); err != nil {
		return fmt.Errorf("failed to acquire lease after spawn: %w", err)
	}
	if result.SessionID != "" {
		if _, err := s.store.Update(t.ID, func(u *types.Task) error {
			u.SetMeta(types.MetaSessionID, result.SessionID)
			return nil
		}); err != nil {
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to record session id")
		}
	}

	s.throttle.record(a.Team, now)
	s.events.Emit(types.EventActionCompleted, "scheduler", t.ID, map[string]any{
		"action":    string(types.ActionAssign),
		"agent":     a.Agent,
		"success":   true,
		"sessionId": result.SessionID,
	})
	s.logger.Info().Str("task_id", t.ID).Str("agent", a.Agent).Msg("Dispatched task")
	return nil
}

// spawnFailed classifies the error and blocks or deadletters the task.
// Permanent failures skip the retry loop entirely.
func (s *Scheduler) spawnFailed(res *Result, t *types.Task, a types.SchedulerAction, spawnErr error, now time.Time) error {
	msg := spawnErr.Error()
	class := executor.Classify(msg)
	reason := "spawn_failed: " + msg

	s.logger.Warn().Str("task_id", t.ID).Str("agent", a.Agent).
		Str("class", string(class)).Msg("Spawn failed")

	retries := t.Meta().Int(types.MetaRetryCount) + 1
	if _, err := s.store.Transition(t.ID, types.StatusBlocked, &store.TransitionOpts{
		Reason: reason,
		Actor:  "scheduler",
		Mutate: func(u *types.Task) {
			u.SetMeta(types.MetaRetryCount, retries)
			u.SetMeta(types.MetaLastBlockedAt, now.Format(time.RFC3339))
			u.SetMeta(types.MetaErrorClass, string(class))
			failures := u.Meta().Int(types.MetaDispatchFailures)
			u.SetMeta(types.MetaDispatchFailures, failures+1)
		},
	}); err != nil {
		return fmt.Errorf("failed to block task after spawn failure: %w", err)
	}
	res.Actions = append(res.Actions, types.SchedulerAction{
		Type:   types.ActionBlock,
		TaskID: t.ID,
		Agent:  a.Agent,
		Reason: reason,
	})
	s.events.Emit(types.EventDispatchFailed, "scheduler", t.ID, map[string]any{
		"agent":      a.Agent,
		"errorClass": string(class),
		"retryCount": retries,
	})
	s.events.Emit(types.EventActionCompleted, "scheduler", t.ID, map[string]any{
		"action":  string(types.ActionAssign),
		"agent":   a.Agent,
		"success": false,
	})

	if class == executor.ClassPermanent {
		if err := s.deadletter(types.SchedulerAction{
			Type:   types.ActionDeadletter,
			TaskID: t.ID,
			Reason: "permanent_spawn_failure",
		}); err != nil {
			return err
		}
	}
	return spawnErr
}

// deadletter parks a task permanently and raises the operator alert.
func (s *Scheduler) deadletter(a types.SchedulerAction) error {
	t, err := s.store.Get(a.TaskID)
	if err != nil {
		return err
	}
	meta := t.Meta().Reserved()

	if _, err := s.store.Transition(t.ID, types.StatusDeadletter, &store.TransitionOpts{
		Reason: a.Reason,
		Actor:  "scheduler",
	}); err != nil {
		return err
	}

	s.events.Emit(types.EventTaskDeadletter, "scheduler", t.ID, map[string]any{
		"reason":            a.Reason,
		"failureCount":      meta.DispatchFailures,
		"lastFailureReason": meta.BlockReason,
	})
	s.logger.Error().Str("task_id", t.ID).Str("title", t.Title).
		Int("failures", meta.DispatchFailures).Msg("Task moved to deadletter")

	if s.murmur != nil {
		if err := s.murmur.OnTaskDeadletter(t); err != nil {
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to record deadletter for murmur")
		}
	}
	return nil
}
