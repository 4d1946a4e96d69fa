/*
Package types defines the core data structures used throughout AOF.

This package contains the fundamental types that represent AOF's domain model:
tasks and their lifecycle, leases, workflow gates, events, protocol envelopes,
run results, and scheduler actions. These types are used by all other packages
for state management, persistence, and orchestration logic.

# Core Types

Task Lifecycle:
  - Task: Unit of work tracked by the engine, persisted as a frontmatter record
  - Status: backlog, ready, in-progress, review, blocked, done, deadletter, cancelled
  - Priority: critical, high, normal, low (dispatch ordering)
  - CanTransition: the allowed status-edge table

Ownership and Workflow:
  - Lease: Time-bounded single-agent claim on an in-progress task
  - GateRef / GateHistoryEntry: Position and append-only visit record inside
    a multi-stage workflow
  - ReviewContext: Why a gate rejected the task back to an earlier stage

Observability:
  - Event: One record in the append-only daily event stream, with a
    day-monotonic EventID
  - SchedulerAction / PollStats: Tagged planned mutations and the per-poll
    summary payload

Wire Surface:
  - Envelope: Agent-to-engine protocol message (three carriers, see pkg/protocol)
  - RunResult: Durable completion artifact consulted during recovery

The Metadata bag models the record's open key/value section. Reserved keys
(retryCount, blockReason, sessionId, ...) decode through mapstructure into a
typed ReservedMeta view; unknown keys pass through unchanged on round-trip.
*/
package types
