package task

import (
	"context"
	"fmt"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/validate"
)

// Directory resolves user references for assignment checks and audit
// descriptions. The auth store satisfies it.
type Directory interface {
	GetUser(ctx context.Context, id string) (*auth.User, error)
}

// Service performs task CRUD with authorization and audit composition.
type Service struct {
	store Store
	users Directory
	now   func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, users Directory, opts ...ServiceOption) *Service {
	s := &Service{store: store, users: users, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns a page of the actor's assigned tasks, newest first. With
// all set, it returns every task instead; both forms share the view
// permission disjunction.
func (s *Service) List(ctx context.Context, all bool, limit, offset int) ([]*Task, error) {
	if err := auth.Authorize(ctx, auth.TaskViewPermissions...); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if all {
		return s.store.ListTasks(ctx, limit, offset)
	}
	return s.store.ListTasksAssignedTo(ctx, auth.ActorID(ctx), limit, offset)
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if err := auth.Authorize(ctx, auth.TaskViewPermissions...); err != nil {
		return nil, err
	}
	return s.store.GetTask(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (*Task, error) {
	if err := auth.Authorize(ctx, auth.PermTaskCreate); err != nil {
		return nil, err
	}
	due, err := in.Validate()
	if err != nil {
		return nil, err
	}
	assignee, err := s.users.GetUser(ctx, in.AssignedTo)
	if err != nil {
		verr := validate.NewError()
		verr.Add("assigned_to", "assigned user does not exist")
		return nil, verr
	}

	now := s.now().UTC()
	t := &Task{
		ID:         ids.New(),
		Name:       in.Name,
		Detail:     in.Detail,
		AssignedTo: assignee.ID,
		DueDate:    due,
		Status:     in.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	entry := audit.NewEntry(auth.ActorID(ctx), audit.ActionCreateTask,
		fmt.Sprintf("Created a task: %s assigned to %s", t.Name, assignee.Name), now)
	if err := s.store.CreateTask(ctx, t, entry); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Update(ctx context.Context, id string, in Input) (*Task, error) {
	if err := auth.Authorize(ctx, auth.PermTaskEdit); err != nil {
		return nil, err
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	due, err := in.Validate()
	if err != nil {
		return nil, err
	}
	assignee, err := s.users.GetUser(ctx, in.AssignedTo)
	if err != nil {
		verr := validate.NewError()
		verr.Add("assigned_to", "assigned user does not exist")
		return nil, verr
	}

	t.Name = in.Name
	t.Detail = in.Detail
	t.AssignedTo = assignee.ID
	t.DueDate = due
	t.Status = in.Status
	now := s.now().UTC()
	t.UpdatedAt = now
	entry := audit.NewEntry(auth.ActorID(ctx), audit.ActionUpdateTask,
		fmt.Sprintf("Updated task: %s assigned to %s", t.Name, assignee.Name), now)
	if err := s.store.UpdateTask(ctx, t, entry); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := auth.Authorize(ctx, auth.PermTaskDelete); err != nil {
		return err
	}
	t, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	entry := audit.NewEntry(auth.ActorID(ctx), audit.ActionDeleteTask,
		fmt.Sprintf("Deleted task: %s assigned to %s", t.Name, s.assigneeName(ctx, t)), now)
	return s.store.DeleteTask(ctx, id, entry)
}

// assigneeName resolves the assigned user's display name for audit text.
// Deleted users leave the reference dangling, so the description degrades
// to "nobody" rather than failing the mutation.
func (s *Service) assigneeName(ctx context.Context, t *Task) string {
	if t.AssignedTo == "" {
		return "nobody"
	}
	user, err := s.users.GetUser(ctx, t.AssignedTo)
	if err != nil {
		return "nobody"
	}
	return user.Name
}
