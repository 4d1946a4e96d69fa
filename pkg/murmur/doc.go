// Package murmur drives periodic team review cycles.
//
// Each team in the org chart may declare murmur triggers, evaluated in order
// on every scheduler pass: queueEmpty fires when the team has no ready or
// in-progress work, completionBatch and failureBatch fire when the counters
// since the last review cross their thresholds. The first match creates a
// review task for the team's orchestrator and arms an idempotency guard; no
// further trigger fires until that review completes or a cleanup pass clears
// a stale guard (review task gone, already done, or timed out).
//
// State lives in .murmur/<team-id>.json and every read-modify-write runs
// under a per-team lock file, so interleaved managers cannot corrupt it.
package murmur
