/*
Package gate implements the workflow state machine as a pure function.

A workflow is an ordered list of gates on the project manifest; a gated task
carries its current gate and an append-only visit history. Evaluate computes
the transition for one reported outcome without touching the task; the
caller applies the result through the store, so evaluation is trivially
testable and replayable.

Outcomes:

  - complete: advance past any conditional gates whose when predicate is
    false (they are recorded as skipped, never visited); with no active gate
    left, the task is done and the gate ref is cleared
  - needs_review: origin strategy: loop back to the first gate, setting
    the review context (fromGate, blockers, notes) for whoever picks the
    task up next; only gates with canReject may do this
  - blocked: stay in place, block the task, record the blockers

On a complete advance the prior review context is cleared; a rejection
overwrites it. Visit durations are measured from the gate's entered
timestamp. A current gate missing from the workflow is a hard
ErrGateNotInWorkflow.

BuildContext renders the stage brief (role, position, allowed outcomes,
rejection context) that rides along on SpawnSession as gateContext.
*/
package gate
