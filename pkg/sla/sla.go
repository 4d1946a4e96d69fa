// Package sla watches in-progress tasks for time-limit violations. It only
// observes and alerts; breached tasks keep running.
package sla

import (
	"sync"
	"time"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/log"
	"github.com/cuemby/aof/pkg/types"
)

// Hardcoded fallbacks when neither the task nor the project sets a limit.
const (
	DefaultMaxInProgress  = time.Hour
	ResearchMaxInProgress = 4 * time.Hour
)

// DefaultRateLimit spaces repeat alerts for the same task.
const DefaultRateLimit = 15 * time.Minute

// RoleResearcher gets the longer fallback limit.
const RoleResearcher = "researcher"

// Violation describes one task over its in-progress limit.
type Violation struct {
	TaskID      string
	Agent       string
	Duration    time.Duration
	Limit       time.Duration
	Overage     time.Duration
	RateLimited bool
}

// Checker evaluates in-progress tasks against their effective limits. Alert
// timestamps are process-local; a restart may re-alert once per task.
type Checker struct {
	project *config.Project
	logger  *events.Logger

	mu        sync.Mutex
	rateLimit time.Duration
	lastAlert map[string]time.Time
}

// Option configures a Checker.
type Option func(*Checker)

// WithRateLimit overrides the per-task alert spacing.
func WithRateLimit(d time.Duration) Option {
	return func(c *Checker) { c.rateLimit = d }
}

func New(project *config.Project, logger *events.Logger, opts ...Option) *Checker {
	c := &Checker{
		project:   project,
		logger:    logger,
		rateLimit: DefaultRateLimit,
		lastAlert: make(map[string]time.Time),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EffectiveLimit resolves the limit for one task: task override, then the
// project SLA (research variant for researcher agents), then the hardcoded
// default.
func (c *Checker) EffectiveLimit(task *types.Task) time.Duration {
	if task.SLA != nil && task.SLA.MaxInProgressMs > 0 {
		return time.Duration(task.SLA.MaxInProgressMs) * time.Millisecond
	}

	research := c.isResearcher(task)
	if c.project != nil && c.project.Manifest != nil && c.project.Manifest.SLA != nil {
		sla := c.project.Manifest.SLA
		if research && sla.ResearchMaxInProgressMs > 0 {
			return time.Duration(sla.ResearchMaxInProgressMs) * time.Millisecond
		}
		if !research && sla.DefaultMaxInProgressMs > 0 {
			return time.Duration(sla.DefaultMaxInProgressMs) * time.Millisecond
		}
	}

	if research {
		return ResearchMaxInProgress
	}
	return DefaultMaxInProgress
}

func (c *Checker) isResearcher(task *types.Task) bool {
	agent := taskAgent(task)
	if agent == "" {
		return false
	}
	var org *config.OrgChart
	if c.project != nil {
		org = c.project.Org
	}
	if a := org.AgentByID(agent); a != nil {
		return a.Role == RoleResearcher
	}
	return agent == RoleResearcher
}

// Scan returns every in-progress task over its effective limit. It reads
// nothing but the tasks and mutates no alert state, so planners can call it
// freely.
func (c *Checker) Scan(tasks []*types.Task, now time.Time) []Violation {
	var out []Violation
	for _, task := range tasks {
		if task.Status != types.StatusInProgress {
			continue
		}
		limit := c.EffectiveLimit(task)
		duration := now.Sub(task.UpdatedAt)
		if duration <= limit {
			continue
		}
		out = append(out, Violation{
			TaskID:   task.ID,
			Agent:    taskAgent(task),
			Duration: duration,
			Limit:    limit,
			Overage:  duration - limit,
		})
	}
	return out
}

// Check scans the given in-progress tasks and returns every violation found.
// Each violation not suppressed by the rate limit emits an sla.violation
// event and an operator warning.
func (c *Checker) Check(tasks []*types.Task, now time.Time) []Violation {
	violations := c.Scan(tasks, now)
	out := make([]Violation, 0, len(violations))
	for _, v := range violations {
		if !c.shouldAlert(v.TaskID, now) {
			v.RateLimited = true
			out = append(out, v)
			continue
		}
		out = append(out, v)

		c.logger.Emit(types.EventSLAViolation, "sla", v.TaskID, map[string]any{
			"agent":      v.Agent,
			"durationMs": v.Duration.Milliseconds(),
			"limitMs":    v.Limit.Milliseconds(),
			"overageMs":  v.Overage.Milliseconds(),
		})
		logger := log.WithTaskID(v.TaskID)
		logger.Warn().
			Str("agent", v.Agent).
			Dur("duration", v.Duration).
			Dur("limit", v.Limit).
			Msg("Task exceeded SLA limit")
	}
	return out
}

// shouldAlert records and enforces the per-task alert spacing.
func (c *Checker) shouldAlert(taskID string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if last, ok := c.lastAlert[taskID]; ok && now.Sub(last) < c.rateLimit {
		return false
	}
	c.lastAlert[taskID] = now
	return true
}

// Forget drops alert tracking for a task, typically once it leaves
// in-progress.
func (c *Checker) Forget(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastAlert, taskID)
}

func taskAgent(task *types.Task) string {
	if task.Lease != nil && task.Lease.Agent != "" {
		return task.Lease.Agent
	}
	return task.AgentHint()
}
