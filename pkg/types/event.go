package types

import "time"

// EventType identifies the kind of an event record.
type EventType string

const (
	EventTaskCreated          EventType = "task.created"
	EventTaskTransitioned     EventType = "task.transitioned"
	EventTaskValidationFailed EventType = "task.validation.failed"
	EventTaskDeadletter       EventType = "task.deadletter"
	EventLeaseExpired         EventType = "lease.expired"
	EventDispatchMatched      EventType = "dispatch.matched"
	EventDispatchUnassigned   EventType = "dispatch.unassigned"
	EventDispatchFailed       EventType = "dispatch.failed"
	EventActionStarted        EventType = "action.started"
	EventActionCompleted      EventType = "action.completed"
	EventSchedulerPoll        EventType = "scheduler.poll"
	EventSLAViolation         EventType = "sla.violation"
	EventSessionForced        EventType = "session.force_completed"

	// Protocol-layer kinds.
	EventProtocolReceived  EventType = "protocol.message.received"
	EventProtocolRejected  EventType = "protocol.message.rejected"
	EventProtocolUnknown   EventType = "protocol.message.unknown"
	EventStatusUpdated     EventType = "task.status.updated"
	EventCompletionApplied EventType = "task.completion.applied"
	EventDelegationReq     EventType = "delegation.requested"
	EventDelegationAccept  EventType = "delegation.accepted"
	EventDelegationReject  EventType = "delegation.rejected"

	// Murmur kinds.
	EventMurmurTriggered EventType = "murmur.triggered"
	EventMurmurEnded     EventType = "murmur.review_ended"
	EventMurmurCleaned   EventType = "murmur.review_cleaned"
)

// Event is one record in the append-only daily event stream.
// EventID is monotonic within a day's file.
type Event struct {
	EventID   int64          `json:"eventId"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	TaskID    string         `json:"taskId,omitempty"`
	Payload   map[string]any `json:"payload"`
}
