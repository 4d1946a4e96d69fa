// Package scheduler implements the poll cycle that drives the engine.
//
// A poll is a single-shot function over one snapshot of the task store. Its
// pass order is strict: lease expiry, stale-heartbeat recovery, backlog
// promotion, blocked-task recovery, dispatch, dependency cascade, SLA check,
// and murmur triggers, followed by execution of the planned actions and one
// scheduler.poll summary event. Callers decide cadence; the package holds no
// internal loop and at most one poll may run per process.
//
// Dispatch is throttled by a global concurrency cap, an optional minimum
// interval, a per-poll cap, and per-team overrides from the org chart. The
// interval clocks are process-local and never advanced in dry-run mode.
//
// Spawn failures are classified and either blocked with exponential backoff
// or deadlettered. Stale sessions are force-completed; a durable run-result
// artifact, when present, decides the recovered task's status.
package scheduler
