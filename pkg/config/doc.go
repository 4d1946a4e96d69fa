/*
Package config loads and validates the two manifests that describe an AOF
project: the project manifest (project.yaml) and the org chart
(org/org-chart.yaml).

# Project Manifest

project.yaml names the project and optionally defines a gated workflow plus
SLA defaults:

	id: payments
	owner: platform-team
	sla:
	  defaultMaxInProgressMs: 3600000
	workflow:
	  rejectionStrategy: origin
	  gates:
	    - id: dev
	      role: developer
	    - id: qa
	      role: reviewer
	      canReject: true

Workflow rules enforced at load time:
  - the first gate never has canReject (a rejection must loop back somewhere)
  - gate ids are unique
  - rejectionStrategy is "origin" or empty; anything else is a configuration
    error rather than guessed-at semantics

# Org Chart

org/org-chart.yaml declares teams and agents, per-team dispatch overrides
(maxConcurrent, minIntervalMs), murmur trigger configuration, and per-agent
context character budgets.

LintOrgChart applies the roster rules: circular reportsTo chains, dangling
routing targets, and inverted context budgets (target < warn < critical),
returning findings as {rule, severity, message, path}. Error-severity
findings fail validation; saves go through validation before the atomic
rename, so a bad edit never lands on disk.

Struct shape is validated with go-playground/validator tags; the lint rules
cover what tag validation cannot express.

AOF_ROOT selects the data directory; no other environment variable
participates in the core.
*/
package config
