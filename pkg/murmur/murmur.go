package murmur

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Trigger type names, matching the org chart schema.
const (
	TriggerQueueEmpty      = "queueEmpty"
	TriggerCompletionBatch = "completionBatch"
	TriggerFailureBatch    = "failureBatch"
)

// KindReview marks the tasks this package creates.
const KindReview = "orchestration_review"

// DefaultReviewTimeout bounds how long a review task may stay outstanding
// before the cleanup pass clears the guard.
const DefaultReviewTimeout = 30 * time.Minute

// Cleanup reasons recorded on murmur.review_cleaned events.
const (
	CleanTaskNotFound = "task_not_found"
	CleanTaskDone     = "task_done"
	CleanTimeout      = "timeout"
)

// Manager runs the per-team review trigger cycle. All state mutations for a
// team happen under that team's file lock, so concurrent managers on the
// same root stay consistent.
type Manager struct {
	root          string
	store         *store.Store
	org           *config.OrgChart
	events        *events.Logger
	log           zerolog.Logger
	reviewTimeout time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithReviewTimeout overrides the stale-review cutoff.
func WithReviewTimeout(d time.Duration) Option {
	return func(m *Manager) { m.reviewTimeout = d }
}

func New(st *store.Store, org *config.OrgChart, logger *events.Logger, opts ...Option) *Manager {
	m := &Manager{
		root:          st.Root(),
		store:         st,
		org:           org,
		events:        logger,
		log:           log.WithComponent("murmur"),
		reviewTimeout: DefaultReviewTimeout,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// LoadState returns a copy of one team's state.
func (m *Manager) LoadState(teamID string) (*State, error) {
	unlock, err := m.lockTeam(teamID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return m.loadState(teamID)
}

// Run evaluates every murmur-enabled team: cleanup first, then triggers.
// Returns the ids of review tasks created this pass.
func (m *Manager) Run(now time.Time) ([]string, error) {
	if m.org == nil {
		return nil, nil
	}
	var created []string
	var errs []error
	for i := range m.org.Teams {
		team := &m.org.Teams[i]
		if team.Murmur == nil || len(team.Murmur.Triggers) == 0 {
			continue
		}
		id, err := m.runTeam(team, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("team %s: %w", team.ID, err))
			continue
		}
		if id != "" {
			created = append(created, id)
		}
	}
	return created, errors.Join(errs...)
}

// Pending reports which teams would fire a trigger right now, without
// cleanup or task creation. A matching trigger on a team already in
// review is returned with Skipped set so callers can count it. Planning
// only; Run remains the mutating path.
func (m *Manager) Pending(now time.Time) []PendingTrigger {
	if m.org == nil {
		return nil
	}
	var out []PendingTrigger
	for i := range m.org.Teams {
		team := &m.org.Teams[i]
		if team.Murmur == nil || len(team.Murmur.Triggers) == 0 {
			continue
		}
		state, err := m.LoadState(team.ID)
		if err != nil {
			continue
		}
		if tr, ok := m.firstMatch(team, state); ok {
			out = append(out, PendingTrigger{
				Team:    team.ID,
				Trigger: tr.Type,
				Skipped: state.InReview(),
			})
		}
	}
	return out
}

// PendingTrigger names a team whose review trigger currently matches.
type PendingTrigger struct {
	Team    string
	Trigger string
	Skipped bool
}

func (m *Manager) runTeam(team *config.Team, now time.Time) (string, error) {
	unlock, err := m.lockTeam(team.ID)
	if err != nil {
		return "", err
	}
	defer unlock()

	state, err := m.loadState(team.ID)
	if err != nil {
		return "", err
	}

	if state.InReview() {
		cleaned, err := m.cleanupLocked(team.ID, state, now)
		if err != nil {
			return "", err
		}
		if !cleaned {
			return "", nil
		}
	}

	trigger, ok := m.firstMatch(team, state)
	if !ok {
		return "", nil
	}

	task, err := m.createReviewTask(team, trigger)
	if err != nil {
		return "", fmt.Errorf("failed to create review task: %w", err)
	}

	state.CurrentReviewTaskID = task.ID
	state.ReviewStartedAt = &now
	state.LastTriggeredBy = trigger.Type
	state.CompletionsSinceLastReview = 0
	state.FailuresSinceLastReview = 0
	if err := m.saveState(team.ID, state); err != nil {
		return "", err
	}

	m.events.Emit(types.EventMurmurTriggered, "murmur", task.ID, map[string]any{
		"team":    team.ID,
		"trigger": trigger.Type,
	})
	m.log.Info().Str("team", team.ID).Str("trigger", trigger.Type).
		Str("task_id", task.ID).Msg("Murmur review triggered")
	return task.ID, nil
}

// firstMatch walks the team's triggers in order and returns the first that
// fires.
func (m *Manager) firstMatch(team *config.Team, state *State) (*config.MurmurTrigger, bool) {
	for i := range team.Murmur.Triggers {
		tr := &team.Murmur.Triggers[i]
		switch tr.Type {
		case TriggerQueueEmpty:
			empty, err := m.queueEmpty(team.ID)
			if err != nil {
				m.log.Warn().Err(err).Str("team", team.ID).Msg("Failed to check team queue")
				continue
			}
			if empty {
				return tr, true
			}
		case TriggerCompletionBatch:
			if tr.Threshold > 0 && state.CompletionsSinceLastReview >= tr.Threshold {
				return tr, true
			}
		case TriggerFailureBatch:
			if tr.Threshold > 0 && state.FailuresSinceLastReview >= tr.Threshold {
				return tr, true
			}
		}
	}
	return nil, false
}

// queueEmpty reports whether the team has no ready and no in-progress tasks.
// Review tasks created by this package do not count as team work, otherwise
// an outstanding review would mask the empty queue it was triggered by.
func (m *Manager) queueEmpty(teamID string) (bool, error) {
	for _, status := range []types.Status{types.StatusReady, types.StatusInProgress} {
		tasks, err := m.store.ListByStatus(status)
		if err != nil {
			return false, err
		}
		for _, t := range tasks {
			if t.Meta().String(types.MetaKind) == KindReview {
				continue
			}
			if m.taskTeam(t) == teamID {
				return false, nil
			}
		}
	}
	return true, nil
}

// taskTeam resolves the team a task belongs to, via explicit routing or the
// routed agent's membership.
func (m *Manager) taskTeam(t *types.Task) string {
	if team := t.Team(); team != "" {
		return team
	}
	agent := t.AgentHint()
	if agent == "" && t.Lease != nil {
		agent = t.Lease.Agent
	}
	if team := m.org.TeamOf(agent); team != nil {
		return team.ID
	}
	return ""
}

func (m *Manager) createReviewTask(team *config.Team, trigger *config.MurmurTrigger) (*types.Task, error) {
	return m.store.Create(store.CreateInput{
		Title: fmt.Sprintf("Team review: %s", team.ID),
		Body: fmt.Sprintf("Periodic review for team %q, triggered by %s. "+
			"Assess recent outcomes and adjust the backlog.\n", team.ID, trigger.Type),
		Priority: types.PriorityHigh,
		Routing: &types.Routing{
			Agent: team.Orchestrator,
			Team:  team.ID,
		},
		Metadata:  types.Metadata{types.MetaKind: KindReview},
		CreatedBy: "murmur",
		Ready:     true,
	})
}

// OnTaskDone records a completed task: a review task ends the team's review
// cycle, anything else counts toward completionBatch.
func (m *Manager) OnTaskDone(task *types.Task) error {
	teamID := m.taskTeam(task)
	if teamID == "" {
		return nil
	}
	unlock, err := m.lockTeam(teamID)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := m.loadState(teamID)
	if err != nil {
		return err
	}
	if state.CurrentReviewTaskID == task.ID {
		return m.endReviewLocked(teamID, state, task.ID)
	}
	state.CompletionsSinceLastReview++
	return m.saveState(teamID, state)
}

// OnTaskDeadletter records a failed task toward failureBatch.
func (m *Manager) OnTaskDeadletter(task *types.Task) error {
	teamID := m.taskTeam(task)
	if teamID == "" {
		return nil
	}
	unlock, err := m.lockTeam(teamID)
	if err != nil {
		return err
	}
	defer unlock()

	state, err := m.loadState(teamID)
	if err != nil {
		return err
	}
	state.FailuresSinceLastReview++
	if state.CurrentReviewTaskID == task.ID {
		// The review task itself died; clear the guard so the next pass
		// can re-trigger.
		state.CurrentReviewTaskID = ""
		state.ReviewStartedAt = nil
	}
	return m.saveState(teamID, state)
}

func (m *Manager) endReviewLocked(teamID string, state *State, taskID string) error {
	now := time.Now().UTC()
	state.CurrentReviewTaskID = ""
	state.ReviewStartedAt = nil
	state.LastReviewAt = &now
	if err := m.saveState(teamID, state); err != nil {
		return err
	}
	m.events.Emit(types.EventMurmurEnded, "murmur", taskID, map[string]any{
		"team": teamID,
	})
	return nil
}

// cleanupLocked clears a stale review guard. Returns true when the guard was
// cleared.
func (m *Manager) cleanupLocked(teamID string, state *State, now time.Time) (bool, error) {
	reason := ""
	task, err := m.store.Get(state.CurrentReviewTaskID)
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		reason = CleanTaskNotFound
	case err != nil:
		return false, fmt.Errorf("failed to load review task: %w", err)
	case task.Status == types.StatusDone:
		reason = CleanTaskDone
	case state.ReviewStartedAt != nil && now.Sub(*state.ReviewStartedAt) > m.reviewTimeout:
		reason = CleanTimeout
	default:
		return false, nil
	}

	taskID := state.CurrentReviewTaskID
	state.CurrentReviewTaskID = ""
	state.ReviewStartedAt = nil
	if reason == CleanTaskDone {
		state.LastReviewAt = &now
	}
	if err := m.saveState(teamID, state); err != nil {
		return false, err
	}

	m.events.Emit(types.EventMurmurCleaned, "murmur", taskID, map[string]any{
		"team":   teamID,
		"reason": reason,
	})
	m.log.Warn().Str("team", teamID).Str("task_id", taskID).
		Str("reason", reason).Msg("Cleared stale murmur review")
	return true, nil
}
