package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/task"
)

var _ task.Store = (*Store)(nil)

const taskColumns = `id, name, detail, assigned_to, due_date, status, created_at, updated_at`

func (s *Store) CreateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into tasks (id, name, detail, assigned_to, due_date, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.Name, t.Detail, nullIfEmpty(t.AssignedTo), t.DueDate, t.Status, t.CreatedAt, t.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return task.ErrNotFound
		}
		return err
	}
	if err := appendEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return scanTaskRow(s.db.QueryRowContext(ctx, `
		select `+taskColumns+` from tasks where id = $1
	`, id))
}

func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+` from tasks
		order by created_at desc, id desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) ListTasksAssignedTo(ctx context.Context, userID string, limit, offset int) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+` from tasks
		where assigned_to = $1
		order by created_at desc, id desc
		limit $2 offset $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		update tasks
		set name = $2, detail = $3, assigned_to = $4, due_date = $5, status = $6, updated_at = $7
		where id = $1
	`, t.ID, t.Name, t.Detail, nullIfEmpty(t.AssignedTo), t.DueDate, t.Status, t.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return task.ErrNotFound
		}
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff == 0 {
		return task.ErrNotFound
	}
	if err := appendEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) DeleteTask(ctx context.Context, id string, entry *audit.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `delete from tasks where id = $1`, id)
	if err != nil {
		return err
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff == 0 {
		return task.ErrNotFound
	}
	if err := appendEntry(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

// OverdueTasks selects tasks past due and not done. A task due strictly
// before now counts; one due exactly at now does not.
func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]*task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+taskColumns+` from tasks
		where due_date < $1 and status != $2
		order by due_date, id
	`, now, task.StatusDone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func scanTaskRow(row *sql.Row) (*task.Task, error) {
	var (
		t        task.Task
		assignee sql.NullString
	)
	err := row.Scan(&t.ID, &t.Name, &t.Detail, &assignee, &t.DueDate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, task.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.AssignedTo = assignee.String
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*task.Task, error) {
	var result []*task.Task
	for rows.Next() {
		var (
			t        task.Task
			assignee sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.Detail, &assignee, &t.DueDate, &t.Status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.AssignedTo = assignee.String
		result = append(result, &t)
	}
	return result, rows.Err()
}
