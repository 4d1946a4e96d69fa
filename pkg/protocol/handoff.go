package protocol

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// handoffRequest is the decoded handoff.request payload. TaskID must match
// the envelope's taskId (the delegating parent).
type handoffRequest struct {
	TaskID   string         `mapstructure:"taskId"`
	Title    string         `mapstructure:"title"`
	Body     string         `mapstructure:"body"`
	Reason   string         `mapstructure:"reason"`
	Routing  *types.Routing `mapstructure:"routing"`
	Priority string         `mapstructure:"priority"`
}

// handleHandoffRequest spawns a delegated child task. Delegation is one
// level deep: a parent that is itself delegated work cannot hand off again.
func (r *Router) handleHandoffRequest(target *Target, env *types.Envelope, parent *types.Task) error {
	var req handoffRequest
	if err := mapstructure.WeakDecode(env.Payload, &req); err != nil {
		return fmt.Errorf("failed to decode handoff request: %w", err)
	}

	if req.TaskID != "" && req.TaskID != env.TaskID {
		target.Events.Emit(types.EventDelegationReject, env.FromAgent, env.TaskID, map[string]any{
			"reason":        RejectTaskIDMismatch,
			"payloadTaskId": req.TaskID,
		})
		return fmt.Errorf("%s: envelope %s vs payload %s", RejectTaskIDMismatch, env.TaskID, req.TaskID)
	}

	depth := parent.Meta().Int(types.MetaDelegationDepth)
	if depth != 0 {
		target.Events.Emit(types.EventDelegationReject, env.FromAgent, parent.ID, map[string]any{
			"reason": RejectNestedDelegation,
			"depth":  depth,
		})
		return fmt.Errorf("%s: parent %s at depth %d", RejectNestedDelegation, parent.ID, depth)
	}

	title := req.Title
	if title == "" {
		title = "Handoff from " + parent.ID
	}
	child, err := target.Store.Create(store.CreateInput{
		Title:    title,
		Body:     req.Body,
		Priority: types.Priority(req.Priority),
		Routing:  req.Routing,
		Metadata: types.Metadata{
			types.MetaDelegationDepth: depth + 1,
			types.MetaCorrelationID:   parent.Meta().String(types.MetaCorrelationID),
		},
		CreatedBy: env.FromAgent,
		Ready:     true,
	})
	if err != nil {
		return fmt.Errorf("failed to create delegated task: %w", err)
	}

	h := &Handoff{
		ParentID:  parent.ID,
		ChildID:   child.ID,
		FromAgent: env.FromAgent,
		ToAgent:   env.ToAgent,
		Reason:    req.Reason,
		SentAt:    env.SentAt,
		Payload:   env.Payload,
	}
	if err := WriteHandoff(target.Store, child.ID, h); err != nil {
		r.logger.Warn().Err(err).Str("task_id", child.ID).Msg("Failed to write handoff artifacts")
	}

	target.Events.Emit(types.EventDelegationReq, env.FromAgent, parent.ID, map[string]any{
		"childId": child.ID,
		"toAgent": env.ToAgent,
	})
	r.logger.Info().Str("parent", parent.ID).Str("child", child.ID).Msg("Delegation requested")
	return nil
}

// handleHandoffRejected logs the rejection and blocks the delegated child.
func (r *Router) handleHandoffRejected(target *Target, env *types.Envelope, task *types.Task) error {
	reason := "handoff rejected"
	if s, ok := env.Payload["reason"].(string); ok && s != "" {
		reason = s
	}

	target.Events.Emit(types.EventDelegationReject, env.FromAgent, task.ID, map[string]any{
		"reason": reason,
	})

	if task.Status.IsTerminal() || task.Status == types.StatusBlocked {
		return nil
	}
	_, err := target.Store.Transition(task.ID, types.StatusBlocked, &store.TransitionOpts{
		Reason: reason,
		Actor:  env.FromAgent,
		Mutate: func(u *types.Task) { u.Lease = nil },
	})
	if err != nil {
		return fmt.Errorf("failed to block rejected handoff: %w", err)
	}
	return nil
}
