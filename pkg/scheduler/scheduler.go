package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/aof/pkg/assembler"
	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/executor"
	"github.com/cuemby/aof/pkg/lease"
	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/murmur"
	"github.com/cuemby/aof/pkg/sla"
	"github.com/cuemby/aof/pkg/store"
	"github.com/cuemby/aof/pkg/types"
)

// Config tunes one scheduler instance. Zero values fall back to the
// documented defaults.
type Config struct {
	MaxConcurrentDispatches int           // default 3
	MinDispatchInterval     time.Duration // default 0
	MaxDispatchesPerPoll    int           // default 10
	MaxDispatchRetries      int           // default 3
	StaleHeartbeatAfter     time.Duration // default 10m
	LeaseTTL                time.Duration // default lease.DefaultTTL
	SpawnTimeout            time.Duration // per-spawn deadline, default 2m

	// DryRun plans and logs actions without mutating any state.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrentDispatches == 0 {
		c.MaxConcurrentDispatches = 3
	}
	if c.MaxDispatchesPerPoll == 0 {
		c.MaxDispatchesPerPoll = 10
	}
	if c.MaxDispatchRetries == 0 {
		c.MaxDispatchRetries = 3
	}
	if c.StaleHeartbeatAfter == 0 {
		c.StaleHeartbeatAfter = 10 * time.Minute
	}
	if c.LeaseTTL == 0 {
		c.LeaseTTL = lease.DefaultTTL
	}
	if c.SpawnTimeout == 0 {
		c.SpawnTimeout = 2 * time.Minute
	}
	return c
}

// Result is one poll cycle's outcome: the planned actions and the summary
// stats emitted as the scheduler.poll event.
type Result struct {
	Actions []types.SchedulerAction
	Stats   types.PollStats
	DryRun  bool
}

// Scheduler runs poll cycles over one project. Throttle state is process
// local; a restart forgets dispatch intervals.
type Scheduler struct {
	cfg      Config
	project  *config.Project
	store    *store.Store
	leases   *lease.Manager
	events   *events.Logger
	checker  *sla.Checker
	murmur   *murmur.Manager
	exec     executor.Executor
	asm      *assembler.Assembler
	throttle *throttle
	jitter   func() float64
	logger   zerolog.Logger
}

func New(project *config.Project, st *store.Store, leases *lease.Manager,
	logger *events.Logger, checker *sla.Checker, mm *murmur.Manager,
	exec executor.Executor, cfg Config) *Scheduler {
	return &Scheduler{
		cfg:      cfg.withDefaults(),
		project:  project,
		store:    st,
		leases:   leases,
		events:   logger,
		checker:  checker,
		murmur:   mm,
		exec:     exec,
		asm:      assembler.New(st),
		throttle: newThrottle(),
		logger:   log.WithComponent("scheduler"),
	}
}

// Poll runs one cycle: snapshot, lease expiry, stale heartbeats, promotion,
// blocked recovery, dispatch, cascade, SLA, murmur, execute. The pass order
// is strict; callers decide when to invoke and must not run two polls
// concurrently.
func (s *Scheduler) Poll(ctx context.Context) (*Result, error) {
	now := time.Now().UTC()
	res := &Result{DryRun: s.cfg.DryRun}

	snapshot, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot tasks: %w", err)
	}

	s.planLeaseExpiry(res, snapshot, now)
	s.planStaleHeartbeats(res, snapshot, now)
	if err := s.planPromotions(res); err != nil {
		s.logger.Warn().Err(err).Msg("Promotion pass failed")
	}
	s.planBlockedRecovery(res, snapshot, now)
	s.planDispatch(res, snapshot, now)
	s.planSLA(res, snapshot, now)
	s.planMurmur(res, now)

	res.Stats.ActionsPlanned = len(res.Actions)
	if s.cfg.DryRun {
		for _, a := range res.Actions {
			s.logger.Info().Str("type", string(a.Type)).Str("task_id", a.TaskID).
				Str("reason", a.Reason).Msg("Dry run: planned action")
		}
		res.Stats.Reason = "dry_run"
		return res, nil
	}

	s.execute(ctx, res, now)

	s.events.Emit(types.EventSchedulerPoll, "scheduler", "", map[string]any{
		"actionsPlanned":  res.Stats.ActionsPlanned,
		"actionsExecuted": res.Stats.ActionsExecuted,
		"actionsFailed":   res.Stats.ActionsFailed,
		"leasesExpired":   res.Stats.LeasesExpired,
		"tasksRequeued":   res.Stats.TasksRequeued,
		"tasksPromoted":   res.Stats.TasksPromoted,
		"reviewsSkipped":  res.Stats.ReviewsSkipped,
	})
	return res, nil
}

// planLeaseExpiry finds in-progress tasks whose lease has lapsed. Blocked
// spawn-failed tasks are recovered by the backoff pass, never reclaimed
// here.
func (s *Scheduler) planLeaseExpiry(res *Result, snapshot []*types.Task, now time.Time) {
	for _, t := range snapshot {
		if t.Status != types.StatusInProgress || !t.Lease.Expired(now) {
			continue
		}
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:      types.ActionExpireLease,
			TaskID:    t.ID,
			TaskTitle: t.Title,
			Agent:     t.Lease.Agent,
			Reason:    "lease expired",
		})
	}
}

// planStaleHeartbeats checks live-leased sessions against the executor's
// heartbeat view.
func (s *Scheduler) planStaleHeartbeats(res *Result, snapshot []*types.Task, now time.Time) {
	if s.exec == nil {
		return
	}
	for _, t := range snapshot {
		if t.Status != types.StatusInProgress || t.Lease == nil || t.Lease.Expired(now) {
			continue
		}
		sessionID := t.Meta().String(types.MetaSessionID)
		if sessionID == "" {
			continue
		}
		status, err := s.exec.GetSessionStatus(sessionID)
		if err != nil {
			s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("Failed to query session status")
			continue
		}
		if status.Alive && (status.LastHeartbeatAt == nil || now.Sub(*status.LastHeartbeatAt) < s.cfg.StaleHeartbeatAfter) {
			continue
		}
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:      types.ActionStaleHeartbeat,
			TaskID:    t.ID,
			TaskTitle: t.Title,
			Agent:     t.Lease.Agent,
			Reason:    fmt.Sprintf("session %s heartbeat stale", sessionID),
		})
	}
}

func (s *Scheduler) planPromotions(res *Result) error {
	ready, err := s.store.ComputeReadyTasks()
	if err != nil {
		return err
	}
	for _, t := range ready {
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:      types.ActionPromote,
			TaskID:    t.ID,
			TaskTitle: t.Title,
			Reason:    "dependencies satisfied",
		})
	}
	return nil
}

// planBlockedRecovery reconsiders spawn-failed tasks: deadletter past the
// retry cap or on a permanent error class, requeue once the backoff window
// has passed.
func (s *Scheduler) planBlockedRecovery(res *Result, snapshot []*types.Task, now time.Time) {
	for _, t := range snapshot {
		if t.Status != types.StatusBlocked {
			continue
		}
		meta := t.Meta().Reserved()
		if !isSpawnFailure(meta.BlockReason) {
			continue
		}
		if meta.ErrorClass == string(executor.ClassPermanent) || meta.RetryCount >= s.cfg.MaxDispatchRetries {
			res.Actions = append(res.Actions, types.SchedulerAction{
				Type:      types.ActionDeadletter,
				TaskID:    t.ID,
				TaskTitle: t.Title,
				Reason:    "max_dispatch_failures",
				Limit:     s.cfg.MaxDispatchRetries,
			})
			continue
		}
		blockedAt := t.Meta().Time(types.MetaLastBlockedAt)
		wait := executor.RetryBackoff(meta.RetryCount, s.jitter)
		if blockedAt.IsZero() || now.Sub(blockedAt) >= wait {
			res.Actions = append(res.Actions, types.SchedulerAction{
				Type:      types.ActionRequeue,
				TaskID:    t.ID,
				TaskTitle: t.Title,
				Reason:    fmt.Sprintf("spawn retry %d", meta.RetryCount),
			})
		}
	}
}

// planDispatch matches ready tasks to agents under the throttles. Assignment
// order is priority rank, then id for determinism.
func (s *Scheduler) planDispatch(res *Result, snapshot []*types.Task, now time.Time) {
	var ready []*types.Task
	inProgress := 0
	teamInProgress := map[string]int{}
	for _, t := range snapshot {
		switch t.Status {
		case types.StatusReady:
			ready = append(ready, t)
		case types.StatusInProgress:
			inProgress++
			if team := s.teamOf(t); team != "" {
				teamInProgress[team]++
			}
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority.Rank() != ready[j].Priority.Rank() {
			return ready[i].Priority.Rank() < ready[j].Priority.Rank()
		}
		return ready[i].ID < ready[j].ID
	})

	planned := 0
	for _, t := range ready {
		if planned >= s.cfg.MaxDispatchesPerPoll {
			break
		}
		if inProgress+planned >= s.cfg.MaxConcurrentDispatches {
			break
		}
		if !s.throttle.globalAllowed(now, s.cfg.MinDispatchInterval) {
			break
		}

		agent, team := s.resolveAgent(t)
		if agent == "" {
			s.noteUnassigned(res, t)
			continue
		}
		if team != "" {
			if over, limit := s.teamOverConcurrency(team, teamInProgress[team]); over {
				s.logger.Debug().Str("task_id", t.ID).Str("team", team).
					Int("limit", limit).Msg("Team concurrency limit reached")
				continue
			}
			if !s.throttle.teamAllowed(team, now, s.teamMinInterval(team)) {
				continue
			}
		}

		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:      types.ActionAssign,
			TaskID:    t.ID,
			TaskTitle: t.Title,
			Agent:     agent,
			Team:      team,
		})
		planned++
		if team != "" {
			teamInProgress[team]++
		}
	}
}

func (s *Scheduler) planSLA(res *Result, snapshot []*types.Task, now time.Time) {
	if s.checker == nil {
		return
	}
	for _, v := range s.checker.Scan(snapshot, now) {
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:     types.ActionSLAViolation,
			TaskID:   v.TaskID,
			Agent:    v.Agent,
			Duration: v.Duration.Milliseconds(),
			Reason:   fmt.Sprintf("in progress %s over limit %s", v.Duration.Round(time.Second), v.Limit),
		})
	}
}

func (s *Scheduler) planMurmur(res *Result, now time.Time) {
	if s.murmur == nil {
		return
	}
	for _, p := range s.murmur.Pending(now) {
		if p.Skipped {
			res.Stats.ReviewsSkipped++
			continue
		}
		res.Actions = append(res.Actions, types.SchedulerAction{
			Type:   types.ActionMurmurCreateTask,
			Team:   p.Team,
			Reason: p.Trigger,
		})
	}
}

func (s *Scheduler) teamOf(t *types.Task) string {
	if team := t.Team(); team != "" {
		return team
	}
	var org *config.OrgChart
	if s.project != nil {
		org = s.project.Org
	}
	agent := t.AgentHint()
	if agent == "" && t.Lease != nil {
		agent = t.Lease.Agent
	}
	if tm := org.TeamOf(agent); tm != nil {
		return tm.ID
	}
	return ""
}

func (s *Scheduler) teamOverConcurrency(teamID string, current int) (bool, int) {
	tm := s.teamConfig(teamID)
	if tm == nil || tm.Dispatch == nil || tm.Dispatch.MaxConcurrent <= 0 {
		return false, 0
	}
	return current >= tm.Dispatch.MaxConcurrent, tm.Dispatch.MaxConcurrent
}

func (s *Scheduler) teamMinInterval(teamID string) time.Duration {
	tm := s.teamConfig(teamID)
	if tm == nil || tm.Dispatch == nil || tm.Dispatch.MinIntervalMs <= 0 {
		return 0
	}
	return time.Duration(tm.Dispatch.MinIntervalMs) * time.Millisecond
}

func (s *Scheduler) teamConfig(teamID string) *config.Team {
	if s.project == nil {
		return nil
	}
	return s.project.Org.TeamByID(teamID)
}

func (s *Scheduler) noteUnassigned(res *Result, t *types.Task) {
	if !s.cfg.DryRun {
		s.events.Emit(types.EventDispatchUnassigned, "scheduler", t.ID, map[string]any{
			"title": t.Title,
		})
	}
	s.logger.Info().Str("task_id", t.ID).Msg("No agent resolves for ready task")
}

const spawnFailedPrefix = "spawn_failed"

func isSpawnFailure(blockReason string) bool {
	return len(blockReason) >= len(spawnFailedPrefix) && blockReason[:len(spawnFailedPrefix)] == spawnFailedPrefix
}
