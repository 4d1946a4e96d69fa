/*
Package store implements AOF's durable task store on the filesystem.

Tasks live under <root>/tasks/<status>/, one entry per task:

	tasks/
	  backlog/
	    TASK-2026-01-15-001/
	      task.md          # frontmatter record
	      inputs/          # context files handed to the agent
	      work/            # agent scratch space
	      outputs/         # deliverables
	      subtasks/
	  ready/
	    TASK-2026-01-14-007.md   # plain file form (hand-authored) also works
	  in-progress/ review/ blocked/ done/ deadletter/ cancelled/

Status is encoded in the path. A transition rewrites the record with the new
status and renames the entry into the target bucket, so the move is atomic
and the side-channel folders travel with it. Every record write goes through
write-temp-then-rename on the same filesystem: a crash mid-update leaves
either the old or the new record visible, never both and never empty. If a
crash lands between the rewrite and the bucket rename, the path's status is
authoritative on the next read and Lint flags the disagreement.

# Records

A record is a YAML frontmatter header between --- fences followed by the
free-form task brief. Unknown frontmatter keys are preserved across
round-trips. Ids are dated and sequential: TASK-<yyyy>-<mm>-<dd>-<nnn>,
allocated by scanning every bucket for the day's highest sequence.

# Operations

Create, Get, List, CountByStatus, Transition (validated against the allowed
status-edge table), Update/UpdateBody/Touch, ComputeReadyTasks (backlog tasks
whose dependsOn are all done), AddDependency/RemoveDependency (cycle-checked),
TaskInputs/TaskOutputs, and Lint, which emits a task.validation.failed event
for every malformed record instead of silently skipping it.

Error kinds: ErrTaskNotFound, ErrInvalidTransition, ErrValidation, matched
with errors.Is.
*/
package store
