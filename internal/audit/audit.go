// Package audit maintains the append-only activity log. Every state-changing
// operation in the service terminates by writing exactly one entry here, in
// the same transaction as the mutation it describes. Entries are never
// updated or deleted through any code path.
package audit

import (
	"time"

	"taskdesk.org/internal/ids"
)

// Action tags form a closed vocabulary shared with the seeded reports.
const (
	ActionCreateTask  = "create_task"
	ActionUpdateTask  = "update_task"
	ActionDeleteTask  = "delete_task"
	ActionTaskOverdue = "task_overdue"
	ActionCreateUser  = "create_user"
	ActionUpdateUser  = "update_user"
	ActionDeleteUser  = "delete_user"
	ActionCreateRole  = "create_role"
	ActionUpdateRole  = "update_role"
	ActionDeleteRole  = "delete_role"
)

// Entry is one immutable activity log record. ActorID is empty for
// system-initiated entries (the overdue sweep on an unassigned task).
type Entry struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actor_id,omitempty"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	LoggedAt    time.Time `json:"logged_at"`
}

// NewEntry mints an entry with a random UUID key. Random identifiers let the
// scheduled sweep create entries without coordinating against interactive
// writers.
func NewEntry(actorID, action, description string, at time.Time) *Entry {
	return &Entry{
		ID:          ids.NewRandom(),
		ActorID:     actorID,
		Action:      action,
		Description: description,
		LoggedAt:    at.UTC(),
	}
}
