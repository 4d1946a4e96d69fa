/*
Package views renders read-only human-facing projections of the task store.

Two projections exist. The kanban board groups every non-terminal task (plus
deadletter) into status columns in dispatch order. The mailbox shows a single
agent what it holds, what is queued for it, what a gate returned to it, and
what is blocked on it.

Projections render to three formats: cli (aligned text), json (one document),
and jsonl (one card per line). WriteFile places the rendered projection under
views/ in the data root with an atomic rename.

Watcher keeps a projection live: it watches the status buckets with fsnotify,
debounces the record-write plus bucket-rename pair a transition produces, and
calls the rebuild callback once per settled change.
*/
package views
