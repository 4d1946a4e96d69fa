package types

import "time"

// Protocol constants for agent-engine envelopes.
const (
	ProtocolName    = "aof"
	ProtocolVersion = 1

	// ProtocolPrefix is the string-carrier envelope prefix.
	ProtocolPrefix = "AOF/1 "

	// MaxEnvelopeBytes is the hard limit on a decoded envelope.
	MaxEnvelopeBytes = 256 * 1024
)

// MessageType identifies an envelope's handler.
type MessageType string

const (
	MsgStatusUpdate     MessageType = "status.update"
	MsgCompletionReport MessageType = "completion.report"
	MsgHandoffRequest   MessageType = "handoff.request"
	MsgHandoffAccepted  MessageType = "handoff.accepted"
	MsgHandoffRejected  MessageType = "handoff.rejected"
)

// Envelope is the wire record exchanged between the engine and agents.
type Envelope struct {
	Protocol  string         `json:"protocol"`
	Version   int            `json:"version"`
	ProjectID string         `json:"projectId"`
	Type      MessageType    `json:"type"`
	TaskID    string         `json:"taskId"`
	FromAgent string         `json:"fromAgent"`
	ToAgent   string         `json:"toAgent,omitempty"`
	SentAt    time.Time      `json:"sentAt"`
	Payload   map[string]any `json:"payload"`
}

// Outcome is a completion report's terminal disposition.
type Outcome string

const (
	OutcomeDone        Outcome = "done"
	OutcomeNeedsReview Outcome = "needs_review"
	OutcomeBlocked     Outcome = "blocked"
	OutcomePartial     Outcome = "partial"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeDone, OutcomeNeedsReview, OutcomeBlocked, OutcomePartial:
		return true
	default:
		return false
	}
}

// TestTotals summarizes test results attached to a completion report.
type TestTotals struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// RunResult is the durable completion artifact written when an agent reports
// completion. Recovery consults it when a session goes stale.
type RunResult struct {
	TaskID       string     `json:"taskId"`
	Outcome      Outcome    `json:"outcome"`
	SummaryRef   string     `json:"summaryRef,omitempty"`
	Deliverables []string   `json:"deliverables,omitempty"`
	Tests        TestTotals `json:"tests"`
	Blockers     []string   `json:"blockers,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	ReportedBy   string     `json:"reportedBy,omitempty"`
	ReportedAt   time.Time  `json:"reportedAt"`

	// Expired marks an artifact already consumed (or invalidated) by a
	// recovery pass.
	Expired bool `json:"expired,omitempty"`
}
