package pg

import (
	"context"
	"database/sql"
	"time"

	"taskdesk.org/internal/audit"
)

var _ audit.Store = (*Store)(nil)

// Append writes a standalone activity log row. Mutations that pair a log
// entry with an entity write go through appendEntry inside their own
// transaction instead.
func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into activity_logs (id, user_id, action, description, logged_at)
		values ($1, nullif($2, ''), $3, $4, $5)
	`, entry.ID, entry.ActorID, entry.Action, entry.Description, entry.LoggedAt)
	return err
}

func (s *Store) ListEntries(ctx context.Context, limit, offset int) ([]*audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, coalesce(user_id, ''), action, description, logged_at
		from activity_logs
		order by logged_at desc, id desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Description, &e.LoggedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (s *Store) SeenSince(ctx context.Context, action, description string, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1 from activity_logs
			where action = $1 and description = $2 and logged_at >= $3
		)
	`, action, description, since).Scan(&exists)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	return exists, nil
}
