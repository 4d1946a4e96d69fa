package config

import "fmt"

// Severity grades a lint finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// LintIssue is one finding from a lint pass.
type LintIssue struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Path     string   `json:"path"`
}

// LintOrgChart applies the roster lint rules:
//
//   - circular-reports-to: reportsTo chains must not loop
//   - dangling-routing-target: team members and orchestrators must exist
//   - inverted-context-budget: target < warn < critical must hold
func LintOrgChart(o *OrgChart) []LintIssue {
	if o == nil {
		return nil
	}
	var issues []LintIssue

	for i := range o.Agents {
		a := &o.Agents[i]
		if cycle := reportsToCycle(o, a.ID); cycle {
			issues = append(issues, LintIssue{
				Rule:     "circular-reports-to",
				Severity: SeverityError,
				Message:  fmt.Sprintf("agent %s is part of a circular reportsTo chain", a.ID),
				Path:     fmt.Sprintf("agents[%d].reportsTo", i),
			})
		}
		if a.ReportsTo != "" && o.AgentByID(a.ReportsTo) == nil {
			issues = append(issues, LintIssue{
				Rule:     "dangling-routing-target",
				Severity: SeverityError,
				Message:  fmt.Sprintf("agent %s reports to unknown agent %s", a.ID, a.ReportsTo),
				Path:     fmt.Sprintf("agents[%d].reportsTo", i),
			})
		}
		if a.Policies != nil && a.Policies.Context != nil {
			b := a.Policies.Context
			if !(b.Target < b.Warn && b.Warn < b.Critical) {
				issues = append(issues, LintIssue{
					Rule:     "inverted-context-budget",
					Severity: SeverityError,
					Message: fmt.Sprintf("agent %s context budget must satisfy target < warn < critical (got %d/%d/%d)",
						a.ID, b.Target, b.Warn, b.Critical),
					Path: fmt.Sprintf("agents[%d].policies.context", i),
				})
			}
		}
	}

	for i := range o.Teams {
		t := &o.Teams[i]
		if t.Orchestrator != "" && o.AgentByID(t.Orchestrator) == nil {
			issues = append(issues, LintIssue{
				Rule:     "dangling-routing-target",
				Severity: SeverityError,
				Message:  fmt.Sprintf("team %s orchestrator %s is not in the roster", t.ID, t.Orchestrator),
				Path:     fmt.Sprintf("teams[%d].orchestrator", i),
			})
		}
		for j, m := range t.Members {
			if o.AgentByID(m) == nil {
				issues = append(issues, LintIssue{
					Rule:     "dangling-routing-target",
					Severity: SeverityError,
					Message:  fmt.Sprintf("team %s member %s is not in the roster", t.ID, m),
					Path:     fmt.Sprintf("teams[%d].members[%d]", i, j),
				})
			}
		}
		if t.Murmur != nil && t.Orchestrator == "" {
			issues = append(issues, LintIssue{
				Rule:     "murmur-without-orchestrator",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("team %s configures murmur but has no orchestrator to assign reviews to", t.ID),
				Path:     fmt.Sprintf("teams[%d].murmur", i),
			})
		}
	}

	return issues
}

// reportsToCycle walks the reportsTo chain from the given agent and reports
// whether it revisits the agent. Chains through unknown agents terminate.
func reportsToCycle(o *OrgChart, start string) bool {
	seen := map[string]bool{start: true}
	cur := o.AgentByID(start)
	for cur != nil && cur.ReportsTo != "" {
		if seen[cur.ReportsTo] {
			return true
		}
		seen[cur.ReportsTo] = true
		cur = o.AgentByID(cur.ReportsTo)
	}
	return false
}
