package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/aof/pkg/config"
	"github.com/cuemby/aof/pkg/events"
	"github.com/cuemby/aof/pkg/types"
)

func testProject() *config.Project {
	return &config.Project{
		Manifest: &config.Manifest{
			ID: "proj",
			SLA: &config.SLAConfig{
				DefaultMaxInProgressMs:  30 * 60 * 1000,
				ResearchMaxInProgressMs: 2 * 60 * 60 * 1000,
			},
		},
		Org: &config.OrgChart{
			Agents: []config.Agent{
				{ID: "dev-1", Role: "developer"},
				{ID: "res-1", Role: "researcher"},
			},
		},
	}
}

func inProgressTask(id, agent string, updatedAt time.Time) *types.Task {
	return &types.Task{
		ID:        id,
		Status:    types.StatusInProgress,
		UpdatedAt: updatedAt,
		Lease:     &types.Lease{Agent: agent},
	}
}

func TestEffectiveLimitChain(t *testing.T) {
	tests := []struct {
		name    string
		project *config.Project
		task    *types.Task
		want    time.Duration
	}{
		{
			name:    "task override wins",
			project: testProject(),
			task: &types.Task{
				SLA:   &types.SLAOverride{MaxInProgressMs: 5 * 60 * 1000},
				Lease: &types.Lease{Agent: "res-1"},
			},
			want: 5 * time.Minute,
		},
		{
			name:    "project default for developer",
			project: testProject(),
			task:    &types.Task{Lease: &types.Lease{Agent: "dev-1"}},
			want:    30 * time.Minute,
		},
		{
			name:    "project research limit for researcher",
			project: testProject(),
			task:    &types.Task{Lease: &types.Lease{Agent: "res-1"}},
			want:    2 * time.Hour,
		},
		{
			name:    "hardcoded default without project sla",
			project: &config.Project{Manifest: &config.Manifest{ID: "p"}},
			task:    &types.Task{Lease: &types.Lease{Agent: "dev-1"}},
			want:    DefaultMaxInProgress,
		},
		{
			name:    "hardcoded research default without project sla",
			project: &config.Project{Manifest: &config.Manifest{ID: "p"}},
			task:    &types.Task{Lease: &types.Lease{Agent: "researcher"}},
			want:    ResearchMaxInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.project, events.NewLogger(t.TempDir()))
			assert.Equal(t, tt.want, c.EffectiveLimit(tt.task))
		})
	}
}

func TestCheckEmitsViolation(t *testing.T) {
	logger := events.NewLogger(t.TempDir())
	var got []types.Event
	logger.AddNotifier(events.NotifierFunc(func(ev types.Event) { got = append(got, ev) }))

	c := New(testProject(), logger)
	now := time.Now().UTC()

	tasks := []*types.Task{
		inProgressTask("TASK-A", "dev-1", now.Add(-45*time.Minute)), // over 30m
		inProgressTask("TASK-B", "dev-1", now.Add(-10*time.Minute)), // within
	}

	violations := c.Check(tasks, now)
	require.Len(t, violations, 1)
	assert.Equal(t, "TASK-A", violations[0].TaskID)
	assert.Equal(t, 30*time.Minute, violations[0].Limit)
	assert.Equal(t, 15*time.Minute, violations[0].Overage)
	assert.False(t, violations[0].RateLimited)

	require.Len(t, got, 1)
	assert.Equal(t, types.EventSLAViolation, got[0].Type)
	assert.Equal(t, "TASK-A", got[0].TaskID)
}

func TestCheckSkipsNonInProgress(t *testing.T) {
	c := New(testProject(), events.NewLogger(t.TempDir()))
	now := time.Now().UTC()

	task := inProgressTask("TASK-A", "dev-1", now.Add(-2*time.Hour))
	task.Status = types.StatusReview

	assert.Empty(t, c.Check([]*types.Task{task}, now))
}

func TestAlertRateLimit(t *testing.T) {
	logger := events.NewLogger(t.TempDir())
	var got []types.Event
	logger.AddNotifier(events.NotifierFunc(func(ev types.Event) { got = append(got, ev) }))

	c := New(testProject(), logger)
	now := time.Now().UTC()
	task := inProgressTask("TASK-A", "dev-1", now.Add(-2*time.Hour))

	first := c.Check([]*types.Task{task}, now)
	require.Len(t, first, 1)
	assert.False(t, first[0].RateLimited)

	// Ten minutes later: still violating, but suppressed.
	second := c.Check([]*types.Task{task}, now.Add(10*time.Minute))
	require.Len(t, second, 1)
	assert.True(t, second[0].RateLimited)
	assert.Len(t, got, 1)

	// Past the window the alert fires again.
	third := c.Check([]*types.Task{task}, now.Add(16*time.Minute))
	require.Len(t, third, 1)
	assert.False(t, third[0].RateLimited)
	assert.Len(t, got, 2)
}

func TestForgetResetsRateLimit(t *testing.T) {
	c := New(testProject(), events.NewLogger(t.TempDir()), WithRateLimit(time.Hour))
	now := time.Now().UTC()
	task := inProgressTask("TASK-A", "dev-1", now.Add(-2*time.Hour))

	require.False(t, c.Check([]*types.Task{task}, now)[0].RateLimited)
	require.True(t, c.Check([]*types.Task{task}, now.Add(time.Minute))[0].RateLimited)

	c.Forget("TASK-A")
	assert.False(t, c.Check([]*types.Task{task}, now.Add(2*time.Minute))[0].RateLimited)
}
