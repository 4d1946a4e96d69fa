package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// OrgChartFile is the roster's path relative to the data directory.
const OrgChartFile = "org/org-chart.yaml"

// ContextBudget holds the character-budget thresholds for an agent's
// context bundle. Valid budgets satisfy target < warn < critical.
type ContextBudget struct {
	Target   int `yaml:"target"`
	Warn     int `yaml:"warn"`
	Critical int `yaml:"critical"`
}

// AgentPolicies carries optional per-agent policy knobs.
type AgentPolicies struct {
	Context *ContextBudget `yaml:"context,omitempty"`
}

// Agent is one entry in the roster.
type Agent struct {
	ID        string         `yaml:"id" validate:"required"`
	Name      string         `yaml:"name,omitempty"`
	Role      string         `yaml:"role,omitempty"`
	ReportsTo string         `yaml:"reportsTo,omitempty"`
	Inactive  bool           `yaml:"inactive,omitempty"`
	Policies  *AgentPolicies `yaml:"policies,omitempty"`
}

// Active reports whether the agent may receive dispatches.
func (a *Agent) Active() bool {
	return !a.Inactive
}

// DispatchOverrides lets a team tighten the global dispatch throttles.
type DispatchOverrides struct {
	MaxConcurrent int   `yaml:"maxConcurrent,omitempty"`
	MinIntervalMs int64 `yaml:"minIntervalMs,omitempty"`
}

// MurmurTrigger is one condition that can start a team review cycle.
// Types: queueEmpty, completionBatch, failureBatch.
type MurmurTrigger struct {
	Type      string `yaml:"type" validate:"required,oneof=queueEmpty completionBatch failureBatch"`
	Threshold int    `yaml:"threshold,omitempty"`
}

// MurmurConfig enables periodic team reviews. Triggers are evaluated in
// order; the first match fires.
type MurmurConfig struct {
	Triggers []MurmurTrigger `yaml:"triggers" validate:"min=1,dive"`
	Context  []string        `yaml:"context,omitempty"`
}

// Team groups agents under an orchestrator with optional dispatch and
// murmur configuration.
type Team struct {
	ID           string             `yaml:"id" validate:"required"`
	Name         string             `yaml:"name,omitempty"`
	Orchestrator string             `yaml:"orchestrator,omitempty"`
	Members      []string           `yaml:"members,omitempty"`
	Dispatch     *DispatchOverrides `yaml:"dispatch,omitempty"`
	Murmur       *MurmurConfig      `yaml:"murmur,omitempty"`
}

// OrgChart is the declarative roster of teams and agents.
type OrgChart struct {
	Teams  []Team  `yaml:"teams,omitempty" validate:"dive"`
	Agents []Agent `yaml:"agents,omitempty" validate:"dive"`
}

// AgentByID returns the agent with the given id, or nil.
func (o *OrgChart) AgentByID(id string) *Agent {
	if o == nil {
		return nil
	}
	for i := range o.Agents {
		if o.Agents[i].ID == id {
			return &o.Agents[i]
		}
	}
	return nil
}

// TeamByID returns the team with the given id, or nil.
func (o *OrgChart) TeamByID(id string) *Team {
	if o == nil {
		return nil
	}
	for i := range o.Teams {
		if o.Teams[i].ID == id {
			return &o.Teams[i]
		}
	}
	return nil
}

// TeamOf returns the team the agent belongs to (member or orchestrator),
// or nil.
func (o *OrgChart) TeamOf(agentID string) *Team {
	if o == nil {
		return nil
	}
	for i := range o.Teams {
		t := &o.Teams[i]
		if t.Orchestrator == agentID {
			return t
		}
		for _, m := range t.Members {
			if m == agentID {
				return t
			}
		}
	}
	return nil
}

// FirstActiveByRole resolves a role to the first active agent carrying it,
// in roster order.
func (o *OrgChart) FirstActiveByRole(role string) *Agent {
	if o == nil {
		return nil
	}
	for i := range o.Agents {
		if o.Agents[i].Role == role && o.Agents[i].Active() {
			return &o.Agents[i]
		}
	}
	return nil
}

// FirstActiveMember resolves a team to its first active member, in roster
// order.
func (o *OrgChart) FirstActiveMember(teamID string) *Agent {
	t := o.TeamByID(teamID)
	if t == nil {
		return nil
	}
	for _, m := range t.Members {
		if a := o.AgentByID(m); a != nil && a.Active() {
			return a
		}
	}
	return nil
}

// LoadOrgChart reads and validates <root>/org/org-chart.yaml. A missing
// chart yields an empty roster.
func LoadOrgChart(root string) (*OrgChart, error) {
	path := filepath.Join(root, OrgChartFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OrgChart{}, nil
		}
		return nil, fmt.Errorf("failed to read org chart: %w", err)
	}
	var o OrgChart
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to parse org chart: %w", err)
	}
	if err := ValidateOrgChart(&o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ValidateOrgChart checks structural validity and rejects charts with
// error-severity lint findings.
func ValidateOrgChart(o *OrgChart) error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("org chart validation failed: %w", err)
	}
	for _, issue := range LintOrgChart(o) {
		if issue.Severity == SeverityError {
			return fmt.Errorf("org chart validation failed: %s: %s", issue.Rule, issue.Message)
		}
	}
	return nil
}

// SaveOrgChart validates and atomically writes the roster.
func SaveOrgChart(root string, o *OrgChart) error {
	if err := ValidateOrgChart(o); err != nil {
		return err
	}
	data, err := yaml.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal org chart: %w", err)
	}
	path := filepath.Join(root, OrgChartFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create org directory: %w", err)
	}
	return atomicWrite(path, data)
}
