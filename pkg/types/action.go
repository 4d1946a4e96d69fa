package types

// ActionType tags a planned scheduler action.
type ActionType string

const (
	ActionExpireLease      ActionType = "expire_lease"
	ActionStaleHeartbeat   ActionType = "stale_heartbeat"
	ActionPromote          ActionType = "promote"
	ActionAssign           ActionType = "assign"
	ActionRequeue          ActionType = "requeue"
	ActionDeadletter       ActionType = "deadletter"
	ActionAlert            ActionType = "alert"
	ActionBlock            ActionType = "block"
	ActionSLAViolation     ActionType = "sla_violation"
	ActionMurmurCreateTask ActionType = "murmur_create_task"
)

// SchedulerAction is one planned mutation from a poll cycle. Only assign
// actions count toward the executed-actions stat; the rest are internal
// bookkeeping.
type SchedulerAction struct {
	Type      ActionType `json:"type"`
	TaskID    string     `json:"taskId,omitempty"`
	TaskTitle string     `json:"taskTitle,omitempty"`
	Reason    string     `json:"reason,omitempty"`
	Agent     string     `json:"agent,omitempty"`
	Team      string     `json:"team,omitempty"`
	Blockers  []string   `json:"blockers,omitempty"`
	Duration  int64      `json:"duration,omitempty"`
	Limit     int        `json:"limit,omitempty"`
}

// PollStats is the summary emitted as the scheduler.poll event payload.
type PollStats struct {
	ActionsPlanned  int    `json:"actionsPlanned"`
	ActionsExecuted int    `json:"actionsExecuted"`
	ActionsFailed   int    `json:"actionsFailed"`
	LeasesExpired   int    `json:"leasesExpired"`
	TasksRequeued   int    `json:"tasksRequeued"`
	TasksPromoted   int    `json:"tasksPromoted"`
	ReviewsSkipped  int    `json:"reviewsSkipped,omitempty"`
	Reason          string `json:"reason,omitempty"`
}
