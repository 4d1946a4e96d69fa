/*
Package events provides AOF's append-only event log and notifier fan-out.

Every state change in the engine is recorded as one JSON line in a
daily-rolled stream under <root>/events/YYYY-MM-DD.jsonl:

	{"eventId":17,"type":"task.transitioned","timestamp":"2026-01-15T10:31:02Z",
	 "actor":"scheduler","taskId":"TASK-2026-01-15-003","payload":{...}}

Event ids are monotonic within a day's file; the logger recovers the counter
by scanning the existing file on the first emit of each day, so restarts
never reuse ids. The day boundary rotates to a new file automatically.

Emitting never fails the caller: write errors are reported through pkg/log
and dropped, because an event record must never take down the mutation it
describes.

# Fan-out

Registered Notifiers see every event inline. Broker is a channel-based
notifier with per-subscriber buffers (slow subscribers drop rather than
stall), and ConsoleNotifier writes operator-visible log lines for
degraded-state events (deadletter, SLA violation, stale review cleanup,
forced session completion) naming the recommended next action.
*/
package events
