package types

import (
	"time"

	"github.com/mitchellh/mapstructure"
)

// Status represents the lifecycle state of a task. A task lives in exactly
// one status bucket on disk at any instant.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusBlocked    Status = "blocked"
	StatusDone       Status = "done"
	StatusDeadletter Status = "deadletter"
	StatusCancelled  Status = "cancelled"
)

// AllStatuses lists every status bucket in scan order.
func AllStatuses() []Status {
	return []Status{
		StatusBacklog, StatusReady, StatusInProgress, StatusReview,
		StatusBlocked, StatusDone, StatusDeadletter, StatusCancelled,
	}
}

// IsTerminal reports whether the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDone, StatusCancelled, StatusDeadletter:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, st := range AllStatuses() {
		if s == st {
			return true
		}
	}
	return false
}

// Priority orders tasks within the dispatch queue.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Rank returns the sort rank of a priority (lower dispatches first).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

// Routing directs a task to an agent, role, or team.
type Routing struct {
	Agent    string   `yaml:"agent,omitempty" json:"agent,omitempty"`
	Role     string   `yaml:"role,omitempty" json:"role,omitempty"`
	Team     string   `yaml:"team,omitempty" json:"team,omitempty"`
	Tags     []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	Workflow string   `yaml:"workflow,omitempty" json:"workflow,omitempty"`
}

// HasTag reports whether the routing carries the given tag.
func (r *Routing) HasTag(tag string) bool {
	if r == nil {
		return false
	}
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Lease is a time-bounded single-agent claim on an in-progress task.
type Lease struct {
	Agent      string    `yaml:"agent" json:"agent"`
	AcquiredAt time.Time `yaml:"acquiredAt" json:"acquiredAt"`
	ExpiresAt  time.Time `yaml:"expiresAt" json:"expiresAt"`
	RenewCount int       `yaml:"renewCount" json:"renewCount"`
}

// Expired reports whether the lease has passed its expiry at the given time.
func (l *Lease) Expired(now time.Time) bool {
	return l != nil && now.After(l.ExpiresAt)
}

// GateRef tracks the task's position inside a multi-stage workflow.
type GateRef struct {
	Current string    `yaml:"current" json:"current"`
	Entered time.Time `yaml:"entered" json:"entered"`
}

// GateHistoryEntry records one visit to a gate. The history is append-only
// across the task's lifetime.
type GateHistoryEntry struct {
	Gate        string    `yaml:"gate" json:"gate"`
	Role        string    `yaml:"role,omitempty" json:"role,omitempty"`
	Agent       string    `yaml:"agent,omitempty" json:"agent,omitempty"`
	Entered     time.Time `yaml:"entered" json:"entered"`
	Exited      time.Time `yaml:"exited" json:"exited"`
	Outcome     string    `yaml:"outcome" json:"outcome"`
	Summary     string    `yaml:"summary,omitempty" json:"summary,omitempty"`
	Blockers    []string  `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	DurationSec int64     `yaml:"duration" json:"duration"`
}

// ReviewContext is set when a gate rejects a task back to an earlier stage,
// so the receiving agent sees why the work came back.
type ReviewContext struct {
	FromGate  string    `yaml:"fromGate" json:"fromGate"`
	FromAgent string    `yaml:"fromAgent,omitempty" json:"fromAgent,omitempty"`
	FromRole  string    `yaml:"fromRole,omitempty" json:"fromRole,omitempty"`
	Timestamp time.Time `yaml:"timestamp" json:"timestamp"`
	Blockers  []string  `yaml:"blockers,omitempty" json:"blockers,omitempty"`
	Notes     string    `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// Metadata is the task's open key/value bag. Reserved keys are decoded via
// ReservedMeta; everything else passes through untouched.
type Metadata map[string]any

// Reserved metadata keys.
const (
	MetaDispatchFailures = "dispatchFailures"
	MetaRetryCount       = "retryCount"
	MetaLastBlockedAt    = "lastBlockedAt"
	MetaBlockReason      = "blockReason"
	MetaErrorClass       = "errorClass"
	MetaCorrelationID    = "correlationId"
	MetaSessionID        = "sessionId"
	MetaKind             = "kind"
	MetaDelegationDepth  = "delegationDepth"
)

// ReservedMeta is the typed view over the reserved metadata keys.
type ReservedMeta struct {
	DispatchFailures int    `mapstructure:"dispatchFailures"`
	RetryCount       int    `mapstructure:"retryCount"`
	LastBlockedAt    string `mapstructure:"lastBlockedAt"`
	BlockReason      string `mapstructure:"blockReason"`
	ErrorClass       string `mapstructure:"errorClass"`
	CorrelationID    string `mapstructure:"correlationId"`
	SessionID        string `mapstructure:"sessionId"`
	Kind             string `mapstructure:"kind"`
	DelegationDepth  int    `mapstructure:"delegationDepth"`
}

// Reserved decodes the reserved keys out of the bag. Unknown keys are
// ignored; malformed reserved values decode to zero values.
func (m Metadata) Reserved() ReservedMeta {
	var r ReservedMeta
	if m == nil {
		return r
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &r,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return r
	}
	_ = dec.Decode(map[string]any(m))
	return r
}

// Int reads a metadata key as an int, tolerating float64 and string forms
// left behind by JSON and YAML round-trips.
func (m Metadata) Int(key string) int {
	var out struct {
		V int `mapstructure:"v"`
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return 0
	}
	_ = dec.Decode(map[string]any{"v": m[key]})
	return out.V
}

// String reads a metadata key as a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Time reads a metadata key holding an RFC-3339 timestamp. Returns the zero
// time when the key is absent or malformed.
func (m Metadata) Time(key string) time.Time {
	s := m.String(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SLAOverride carries per-task SLA limits.
type SLAOverride struct {
	MaxInProgressMs int64 `yaml:"maxInProgressMs,omitempty" json:"maxInProgressMs,omitempty"`
}

// Task is the primary entity tracked by the engine. It is persisted as a
// frontmatter record under tasks/<status>/ and moves between status buckets
// by atomic rename.
type Task struct {
	ID               string             `yaml:"id" json:"id"`
	Title            string             `yaml:"title" json:"title"`
	Status           Status             `yaml:"status" json:"status"`
	Priority         Priority           `yaml:"priority,omitempty" json:"priority,omitempty"`
	Routing          *Routing           `yaml:"routing,omitempty" json:"routing,omitempty"`
	DependsOn        []string           `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	Lease            *Lease             `yaml:"lease,omitempty" json:"lease,omitempty"`
	Gate             *GateRef           `yaml:"gate,omitempty" json:"gate,omitempty"`
	GateHistory      []GateHistoryEntry `yaml:"gateHistory,omitempty" json:"gateHistory,omitempty"`
	ReviewContext    *ReviewContext     `yaml:"reviewContext,omitempty" json:"reviewContext,omitempty"`
	SLA              *SLAOverride       `yaml:"sla,omitempty" json:"sla,omitempty"`
	Metadata         Metadata           `yaml:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt        time.Time          `yaml:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time          `yaml:"updatedAt" json:"updatedAt"`
	LastTransitionAt time.Time          `yaml:"lastTransitionAt,omitempty" json:"lastTransitionAt,omitempty"`
	CreatedBy        string             `yaml:"createdBy,omitempty" json:"createdBy,omitempty"`

	// Extra preserves unknown frontmatter keys across round-trips.
	Extra map[string]any `yaml:",inline" json:"-"`

	// Body is the free-form task brief below the frontmatter. Not part of
	// the frontmatter itself.
	Body string `yaml:"-" json:"body,omitempty"`
}

// Meta returns the metadata bag, allocating it on first use.
func (t *Task) Meta() Metadata {
	if t.Metadata == nil {
		t.Metadata = make(Metadata)
	}
	return t.Metadata
}

// SetMeta writes one metadata key.
func (t *Task) SetMeta(key string, value any) {
	t.Meta()[key] = value
}

// AgentHint returns the explicitly routed agent, if any.
func (t *Task) AgentHint() string {
	if t.Routing == nil {
		return ""
	}
	return t.Routing.Agent
}

// Team returns the routing team, if any.
func (t *Task) Team() string {
	if t.Routing == nil {
		return ""
	}
	return t.Routing.Team
}

// InWorkflow reports whether the task is currently inside a gated workflow.
func (t *Task) InWorkflow() bool {
	return t.Gate != nil && t.Gate.Current != ""
}

// transitionTable encodes the allowed status edges.
var transitionTable = map[Status][]Status{
	StatusBacklog:    {StatusReady, StatusCancelled},
	StatusReady:      {StatusInProgress, StatusBlocked, StatusCancelled},
	StatusInProgress: {StatusReview, StatusDone, StatusBlocked, StatusReady, StatusDeadletter},
	StatusBlocked:    {StatusReady, StatusCancelled, StatusDeadletter},
	StatusReview:     {StatusDone, StatusReady, StatusBlocked},
}

// CanTransition reports whether the edge from → to is allowed. Terminal
// statuses have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, t := range transitionTable[from] {
		if t == to {
			return true
		}
	}
	return false
}
