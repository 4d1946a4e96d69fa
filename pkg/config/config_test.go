package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateManifestWorkflowRules(t *testing.T) {
	tests := []struct {
		name    string
		m       *Manifest
		wantErr string
	}{
		{
			name: "valid two-gate workflow",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				Gates: []Gate{
					{ID: "dev", Role: "developer"},
					{ID: "qa", Role: "reviewer", CanReject: true},
				},
			}},
		},
		{
			name: "workflow optional",
			m:    &Manifest{ID: "p1"},
		},
		{
			name: "first gate must not reject",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				Gates: []Gate{
					{ID: "dev", Role: "developer", CanReject: true},
					{ID: "qa", Role: "reviewer"},
				},
			}},
			wantErr: "first gate",
		},
		{
			name: "unsupported rejection strategy",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				RejectionStrategy: "previous",
				Gates:             []Gate{{ID: "dev", Role: "developer"}},
			}},
			wantErr: "rejectionStrategy",
		},
		{
			name: "origin strategy accepted",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				RejectionStrategy: RejectionOrigin,
				Gates:             []Gate{{ID: "dev", Role: "developer"}},
			}},
		},
		{
			name: "duplicate gate ids",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				Gates: []Gate{
					{ID: "dev", Role: "developer"},
					{ID: "dev", Role: "reviewer"},
				},
			}},
			wantErr: "duplicate gate id",
		},
		{
			name:    "missing project id",
			m:       &Manifest{},
			wantErr: "validation",
		},
		{
			name: "gate without role",
			m: &Manifest{ID: "p1", Workflow: &Workflow{
				Gates: []Gate{{ID: "dev"}},
			}},
			wantErr: "validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateManifest(tt.m)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestManifestRoundTrip(t *testing.T) {
	root := t.TempDir()
	m := &Manifest{
		ID:    "demo",
		Owner: "ops",
		SLA:   &SLAConfig{DefaultMaxInProgressMs: 1000},
		Workflow: &Workflow{Gates: []Gate{
			{ID: "dev", Role: "developer"},
			{ID: "qa", Role: "reviewer", CanReject: true, When: "tags.includes('qa')"},
		}},
		Extra: map[string]any{"customKey": "kept"},
	}
	require.NoError(t, SaveManifest(root, m))

	got, err := LoadManifest(root)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.ID)
	assert.Equal(t, int64(1000), got.SLA.DefaultMaxInProgressMs)
	require.NotNil(t, got.Workflow)
	assert.Len(t, got.Workflow.Gates, 2)
	assert.Equal(t, "kept", got.Extra["customKey"])
}

func TestLoadManifestMissingIsDefault(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "default", m.ID)
	assert.Nil(t, m.Workflow)
}

func TestLintOrgChart(t *testing.T) {
	tests := []struct {
		name      string
		chart     *OrgChart
		wantRules []string
	}{
		{
			name: "clean chart",
			chart: &OrgChart{
				Agents: []Agent{
					{ID: "a1", Role: "developer"},
					{ID: "lead", Role: "orchestrator"},
				},
				Teams: []Team{{ID: "alpha", Orchestrator: "lead", Members: []string{"a1"}}},
			},
		},
		{
			name: "circular reportsTo",
			chart: &OrgChart{Agents: []Agent{
				{ID: "a1", ReportsTo: "a2"},
				{ID: "a2", ReportsTo: "a1"},
			}},
			wantRules: []string{"circular-reports-to", "circular-reports-to"},
		},
		{
			name: "dangling member and orchestrator",
			chart: &OrgChart{Teams: []Team{
				{ID: "alpha", Orchestrator: "ghost", Members: []string{"nobody"}},
			}},
			wantRules: []string{"dangling-routing-target", "dangling-routing-target"},
		},
		{
			name: "inverted context budget",
			chart: &OrgChart{Agents: []Agent{
				{ID: "a1", Policies: &AgentPolicies{Context: &ContextBudget{Target: 9000, Warn: 5000, Critical: 10000}}},
			}},
			wantRules: []string{"inverted-context-budget"},
		},
		{
			name: "self reportsTo",
			chart: &OrgChart{Agents: []Agent{
				{ID: "a1", ReportsTo: "a1"},
			}},
			wantRules: []string{"circular-reports-to"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := LintOrgChart(tt.chart)
			var rules []string
			for _, i := range issues {
				rules = append(rules, i.Rule)
			}
			assert.ElementsMatch(t, tt.wantRules, rules)
		})
	}
}

func TestOrgChartResolution(t *testing.T) {
	chart := &OrgChart{
		Agents: []Agent{
			{ID: "a1", Role: "developer", Inactive: true},
			{ID: "a2", Role: "developer"},
			{ID: "lead", Role: "orchestrator"},
		},
		Teams: []Team{{ID: "alpha", Orchestrator: "lead", Members: []string{"a1", "a2"}}},
	}

	assert.Equal(t, "a2", chart.FirstActiveByRole("developer").ID)
	assert.Nil(t, chart.FirstActiveByRole("researcher"))
	assert.Equal(t, "a2", chart.FirstActiveMember("alpha").ID)
	assert.Equal(t, "alpha", chart.TeamOf("lead").ID)
	assert.Equal(t, "alpha", chart.TeamOf("a1").ID)
	assert.Nil(t, chart.TeamOf("stranger"))
}

func TestSaveOrgChartRejectsInvalid(t *testing.T) {
	root := t.TempDir()
	bad := &OrgChart{Teams: []Team{{ID: "alpha", Members: []string{"ghost"}}}}
	err := SaveOrgChart(root, bad)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, OrgChartFile))
	assert.True(t, os.IsNotExist(statErr), "invalid chart must not be written")
}

func TestSaveOrgChartRoundTrip(t *testing.T) {
	root := t.TempDir()
	chart := &OrgChart{
		Agents: []Agent{{ID: "a1", Role: "developer"}},
		Teams: []Team{{
			ID:       "alpha",
			Members:  []string{"a1"},
			Dispatch: &DispatchOverrides{MaxConcurrent: 2, MinIntervalMs: 500},
			Murmur: &MurmurConfig{Triggers: []MurmurTrigger{
				{Type: "queueEmpty"},
				{Type: "completionBatch", Threshold: 5},
			}},
		}},
	}
	require.NoError(t, SaveOrgChart(root, chart))

	got, err := LoadOrgChart(root)
	require.NoError(t, err)
	team := got.TeamByID("alpha")
	require.NotNil(t, team)
	assert.Equal(t, 2, team.Dispatch.MaxConcurrent)
	require.NotNil(t, team.Murmur)
	assert.Equal(t, "completionBatch", team.Murmur.Triggers[1].Type)
}

func TestChannelStateRoundTrip(t *testing.T) {
	root := t.TempDir()

	st, err := LoadChannelState(root)
	require.NoError(t, err)
	assert.Nil(t, st)

	require.NoError(t, SaveChannelState(root, ChannelState{"channel": "stable", "pinned": true}))
	st, err = LoadChannelState(root)
	require.NoError(t, err)
	assert.Equal(t, "stable", st["channel"])
	assert.Equal(t, true, st["pinned"])
}

func TestRootEnv(t *testing.T) {
	t.Setenv(RootEnv, "/tmp/aof-data")
	assert.Equal(t, "/tmp/aof-data", Root())
}
