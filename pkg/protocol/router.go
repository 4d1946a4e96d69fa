package protocol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/murmur"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Target is one project's handler surface: everything the router needs to
// apply a message.
type Target struct {
	Store    *store.Store
	Events   *events.Logger
	Manifest *config.Manifest

	// Murmur, when present, receives completion and failure signals.
	Murmur *murmur.Manager
}

// Resolver maps an envelope's projectId to its target. Returning an error
// drops the message with invalid_project_id.
type Resolver func(projectID string) (*Target, error)

// SingleProject is the resolver for an engine serving exactly one data
// directory: every projectId resolves to it.
func SingleProject(t *Target) Resolver {
	return func(string) (*Target, error) { return t, nil }
}

// Router applies agent messages to task state. Handlers for different tasks
// may run concurrently; handling of one task id is serialized.
type Router struct {
	resolve Resolver

	// home receives protocol-level rejection events when no project
	// resolves.
	home   *events.Logger
	logger zerolog.Logger

	mu    sync.Mutex
	tasks map[string]*sync.Mutex
}

func NewRouter(resolve Resolver, home *events.Logger) *Router {
	return &Router{
		resolve: resolve,
		home:    home,
		logger:  log.WithComponent("protocol"),
		tasks:   make(map[string]*sync.Mutex),
	}
}

// lockTask returns the per-task mutex, creating it on first use.
func (r *Router) lockTask(projectID, taskID string) *sync.Mutex {
	key := projectID + "/" + taskID
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.tasks[key]
	if !ok {
		m = &sync.Mutex{}
		r.tasks[key] = m
	}
	return m
}

// Handle decodes and applies one wire message. The returned error describes
// why a message was dropped; the corresponding event has already been
// emitted.
func (r *Router) Handle(raw []byte) error {
	env, err := Decode(raw)
	if err != nil {
		reason := RejectInvalidJSON
		var de *DecodeError
		if errors.As(err, &de) {
			reason = de.Reason
		}
		r.home.Emit(types.EventProtocolRejected, "protocol", "", map[string]any{
			"reason": reason,
			"detail": err.Error(),
		})
		r.logger.Warn().Str("reason", reason).Msg("Rejected protocol message")
		return err
	}

	target, err := r.resolve(env.ProjectID)
	if err != nil || target == nil {
		r.home.Emit(types.EventProtocolRejected, env.FromAgent, env.TaskID, map[string]any{
			"reason":    RejectInvalidProject,
			"projectId": env.ProjectID,
		})
		r.logger.Warn().Str("project_id", env.ProjectID).Msg("Unresolvable project id")
		return fmt.Errorf("%s: %q", RejectInvalidProject, env.ProjectID)
	}

	mu := r.lockTask(env.ProjectID, env.TaskID)
	mu.Lock()
	defer mu.Unlock()

	task, err := target.Store.Get(env.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			// A handoff names its delegating parent; its absence is a
			// distinct rejection so operators see delegation failures.
			reason := RejectTaskNotFound
			if env.Type == types.MsgHandoffRequest {
				reason = RejectMissingParent
			}
			target.Events.Emit(types.EventProtocolRejected, env.FromAgent, env.TaskID, map[string]any{
				"reason": reason,
				"type":   string(env.Type),
			})
			return fmt.Errorf("%s: %s", reason, env.TaskID)
		}
		return fmt.Errorf("failed to load task: %w", err)
	}

	target.Events.Emit(types.EventProtocolReceived, env.FromAgent, env.TaskID, map[string]any{
		"type": string(env.Type),
	})

	switch env.Type {
	case types.MsgStatusUpdate:
		return r.handleStatusUpdate(target, env, task)
	case types.MsgCompletionReport:
		return r.handleCompletion(target, env, task)
	case types.MsgHandoffRequest:
		return r.handleHandoffRequest(target, env, task)
	case types.MsgHandoffAccepted:
		target.Events.Emit(types.EventDelegationAccept, env.FromAgent, env.TaskID, env.Payload)
		return nil
	case types.MsgHandoffRejected:
		return r.handleHandoffRejected(target, env, task)
	default:
		target.Events.Emit(types.EventProtocolUnknown, env.FromAgent, env.TaskID, map[string]any{
			"type": string(env.Type),
		})
		r.logger.Info().Str("type", string(env.Type)).Msg("Unknown protocol message type")
		return nil
	}
}
