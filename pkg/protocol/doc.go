// Package protocol is the engine's inbound wire surface: it decodes agent
// messages and applies them to task state.
//
// Messages arrive as JSON envelopes over any transport. Three carriers are
// accepted: the raw envelope, a transport wrapper whose payload holds the
// envelope, and the "AOF/1 " string prefix. Envelopes over the byte limit,
// malformed JSON, and missing required fields are rejected with distinct
// reasons, each recorded on a protocol.message.rejected event.
//
// The router serializes handling per task id, so concurrent completion
// reports against the same task apply one at a time. Completion reports
// first write the durable run-result artifact, then transition the task:
// gated tasks go through the gate evaluator, ungated ones map the outcome
// straight to a status. Handoff requests create a delegated child task one
// level deep and write the handoff brief into its inputs.
package protocol
