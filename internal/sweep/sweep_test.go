package sweep_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/store/memory"
	"taskdesk.org/internal/sweep"
	"taskdesk.org/internal/task"
)

func seedTask(t *testing.T, store *memory.Store, name, status string, due time.Time) *task.Task {
	t.Helper()
	now := time.Now().UTC()
	tk := &task.Task{
		ID: ids.New(), Name: name, Detail: "detail",
		DueDate: due, Status: status,
		CreatedAt: now, UpdatedAt: now,
	}
	entry := audit.NewEntry("", audit.ActionCreateTask,
		fmt.Sprintf("Created a task: %s assigned to nobody", name), now)
	if err := store.CreateTask(context.Background(), tk, entry); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return tk
}

func overdueEntries(t *testing.T, store *memory.Store) []*audit.Entry {
	t.Helper()
	all, err := store.ListEntries(context.Background(), 1000, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var out []*audit.Entry
	for _, e := range all {
		if e.Action == audit.ActionTaskOverdue {
			out = append(out, e)
		}
	}
	return out
}

func TestRunSelectsOnlyOverdueTasks(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

	late := seedTask(t, store, "late", task.StatusPending, now.Add(-24*time.Hour))
	seedTask(t, store, "late but done", task.StatusDone, now.Add(-24*time.Hour))
	seedTask(t, store, "due exactly now", task.StatusPending, now)
	seedTask(t, store, "future", task.StatusInProgress, now.Add(24*time.Hour))

	s := sweep.New(store, store, sweep.WithNow(func() time.Time { return now }))
	logged, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if logged != 1 {
		t.Fatalf("expected 1 logged, got %d", logged)
	}

	entries := overdueEntries(t, store)
	if len(entries) != 1 {
		t.Fatalf("expected 1 overdue entry, got %d", len(entries))
	}
	if want := fmt.Sprintf("Task overdue: %s via scheduler", late.ID); entries[0].Description != want {
		t.Fatalf("description %q, want %q", entries[0].Description, want)
	}
}

func TestRunDoesNotMutateTasks(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	late := seedTask(t, store, "late", task.StatusInProgress, now.Add(-time.Hour))

	s := sweep.New(store, store, sweep.WithNow(func() time.Time { return now }))
	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	after, err := store.GetTask(context.Background(), late.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if after.Status != task.StatusInProgress || !after.UpdatedAt.Equal(late.UpdatedAt) {
		t.Fatalf("sweep must not mutate the task, got %+v", after)
	}
}

func TestRunRelogsEveryRunByDefault(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	seedTask(t, store, "late", task.StatusPending, now.Add(-time.Hour))

	s := sweep.New(store, store, sweep.WithNow(func() time.Time { return now }))
	for i := 0; i < 3; i++ {
		if _, err := s.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if got := len(overdueEntries(t, store)); got != 3 {
		t.Fatalf("expected 3 entries without dedup, got %d", got)
	}
}

func TestRunDedupSkipsAlreadyJournaled(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	seedTask(t, store, "late", task.StatusPending, now.Add(-time.Hour))

	s := sweep.New(store, store,
		sweep.WithDedup(true),
		sweep.WithNow(func() time.Time { return now }),
	)
	logged, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if logged != 1 {
		t.Fatalf("expected 1 logged on first run, got %d", logged)
	}
	logged, err = s.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if logged != 0 {
		t.Fatalf("expected 0 logged on second run, got %d", logged)
	}
	if got := len(overdueEntries(t, store)); got != 1 {
		t.Fatalf("expected 1 entry with dedup, got %d", got)
	}
}

// flakyLog fails Append for one configured task description.
type flakyLog struct {
	*memory.Store
	failFor string
}

func (f *flakyLog) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.Description == f.failFor {
		return errors.New("append failed")
	}
	return f.Store.Append(ctx, entry)
}

func TestRunContinuesPastAppendFailures(t *testing.T) {
	store := memory.New()
	now := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	bad := seedTask(t, store, "bad", task.StatusPending, now.Add(-2*time.Hour))
	seedTask(t, store, "good one", task.StatusPending, now.Add(-time.Hour))
	seedTask(t, store, "good two", task.StatusPending, now.Add(-30*time.Minute))

	log := &flakyLog{Store: store, failFor: fmt.Sprintf("Task overdue: %s via scheduler", bad.ID)}
	s := sweep.New(store, log, sweep.WithNow(func() time.Time { return now }))

	logged, err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected joined error")
	}
	if logged != 2 {
		t.Fatalf("expected the other 2 tasks journaled, got %d", logged)
	}
}

func TestStartStopsOnContextCancel(t *testing.T) {
	store := memory.New()
	s := sweep.New(store, store, sweep.WithInterval(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
