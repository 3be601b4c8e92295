// Package task owns the task entity and its authorized, audited lifecycle.
package task

import (
	"context"
	"errors"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/validate"
)

// Status is the closed enumeration for a task's lifecycle state. This is
// the single canonical set; legacy strings such as "completed" or
// "cancelled" are rejected at validation.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// DueDateLayout is the calendar-date wire format for due dates.
const DueDateLayout = "2006-01-02"

var ErrNotFound = errors.New("task: not found")

// Task is a unit of work. AssignedTo is a non-owning reference to a user;
// it becomes empty if that user is deleted, the task itself persists. A
// task with status done is never considered overdue regardless of due date.
type Task struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Detail     string    `json:"detail"`
	AssignedTo string    `json:"assigned_to,omitempty"`
	DueDate    time.Time `json:"due_date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// IsOverdue reports whether the task counts as overdue at the given instant:
// due strictly before now and not in the terminal done state.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status != StatusDone && t.DueDate.Before(now)
}

// ValidStatus reports whether s belongs to the canonical enumeration.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Input is the full field set required by create and update. Partial
// updates are not supported; every missing field is reported, not just the
// first.
type Input struct {
	Name       string `json:"name"`
	Detail     string `json:"detail"`
	AssignedTo string `json:"assigned_to"`
	Status     string `json:"status"`
	DueDate    string `json:"due_date"`
}

// Validate checks the full field set and parses the due date. It returns
// the parsed date alongside a per-field error naming every failure.
func (in Input) Validate() (time.Time, error) {
	verr := validate.NewError()
	if in.Name == "" {
		verr.Add("name", "name is required")
	}
	if in.Detail == "" {
		verr.Add("detail", "detail is required")
	}
	if in.AssignedTo == "" {
		verr.Add("assigned_to", "assigned_to is required")
	}
	if in.Status == "" {
		verr.Add("status", "status is required")
	} else if !ValidStatus(in.Status) {
		verr.Add("status", "status must be one of pending, in_progress, done")
	}
	var due time.Time
	if in.DueDate == "" {
		verr.Add("due_date", "due_date is required")
	} else {
		parsed, err := time.Parse(DueDateLayout, in.DueDate)
		if err != nil {
			verr.Add("due_date", "due_date must be a calendar date (YYYY-MM-DD)")
		} else {
			due = parsed
		}
	}
	if err := verr.OrNil(); err != nil {
		return time.Time{}, err
	}
	return due, nil
}

// Store persists tasks. As with the auth store, every mutation carries its
// audit entry and the pair commits or rolls back as one unit.
type Store interface {
	CreateTask(ctx context.Context, t *Task, entry *audit.Entry) error
	GetTask(ctx context.Context, id string) (*Task, error)
	// ListTasksAssignedTo returns tasks assigned to the user, newest first.
	ListTasksAssignedTo(ctx context.Context, userID string, limit, offset int) ([]*Task, error)
	// ListTasks returns all tasks, newest first.
	ListTasks(ctx context.Context, limit, offset int) ([]*Task, error)
	UpdateTask(ctx context.Context, t *Task, entry *audit.Entry) error
	DeleteTask(ctx context.Context, id string, entry *audit.Entry) error
	// OverdueTasks returns every task with due_date strictly before now
	// and status other than done.
	OverdueTasks(ctx context.Context, now time.Time) ([]*Task, error)
}
