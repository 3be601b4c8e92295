package audit

import (
	"context"
	"time"
)

// Store persists activity log entries. Append is the only write; no
// implementation exposes update or delete.
type Store interface {
	// Append writes one entry. A failure here is fatal to the enclosing
	// operation, never swallowed.
	Append(ctx context.Context, entry *Entry) error
	// ListEntries returns entries ordered by logged_at descending.
	ListEntries(ctx context.Context, limit, offset int) ([]*Entry, error)
	// SeenSince reports whether an entry with the given action and exact
	// description was logged at or after the given instant. The sweep uses
	// it to suppress duplicate overdue entries when dedup is enabled.
	SeenSince(ctx context.Context, action, description string, since time.Time) (bool, error)
}
