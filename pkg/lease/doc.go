/*
Package lease implements single-owner, time-bounded claims on tasks.

A lease marks one agent as the active worker on an in-progress task. The
invariant both ways: a task has a lease exactly when it is in-progress. The
lease lives inside the task record, so acquiring (lease set + transition to
in-progress) is one atomic write through the store.

Operations:

  - Acquire: only from ready, or by takeover of an expired lease
  - Renew: holder-only, bounded by the renewal cap
  - Release: holder-only, returns the task to ready
  - Reclaim: scheduler-driven expiry, emits lease.expired

At most one agent holds a non-expired lease at any instant. The guarantee is
best-effort on shared filesystems: two racing acquires may both see their
rename succeed, but the surviving record names exactly one holder and the
loser's next operation fails with ErrWrongHolder.
*/
package lease
