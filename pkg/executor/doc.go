// Package executor defines the session executor contract and the helpers
// the scheduler needs around it: spawn error classification and the retry
// backoff schedule.
//
// An Executor spawns an agent session for a task, reports session liveness,
// and can force-complete a session that stopped heartbeating. Implementations
// wrap whatever platform actually runs agents; the engine only depends on
// this interface so tests can substitute fakes.
//
// Spawn failures are classified by message into permanent, rate-limited, and
// transient classes. Permanent failures deadletter the task immediately;
// rate-limited and transient failures block it with an exponential backoff
// before the scheduler retries.
package executor
