// Package memory is an in-memory implementation of the persistence
// contracts, used by tests and by the API in development mode when no
// database DSN is configured. A single mutex stands in for transaction
// isolation: each mutation and its audit entry are applied under one
// critical section, so observers never see one without the other.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/task"
)

type Store struct {
	mu sync.RWMutex

	users       map[string]*auth.User
	roles       map[string]*auth.Role
	permissions map[string]*auth.Permission // keyed by ID
	userRoles   map[string][]string         // user ID -> role IDs
	rolePerms   map[string][]string         // role ID -> permission IDs
	tasks       map[string]*task.Task
	logs        []*audit.Entry
}

var (
	_ auth.Store  = (*Store)(nil)
	_ task.Store  = (*Store)(nil)
	_ audit.Store = (*Store)(nil)
)

// New returns an empty store with the builtin permission catalog seeded.
func New() *Store {
	s := &Store{
		users:       map[string]*auth.User{},
		roles:       map[string]*auth.Role{},
		permissions: map[string]*auth.Permission{},
		userRoles:   map[string][]string{},
		rolePerms:   map[string][]string{},
		tasks:       map[string]*task.Task{},
	}
	for _, p := range auth.BuiltinPermissions {
		perm := &auth.Permission{ID: ids.New(), Name: p.Name}
		s.permissions[perm.ID] = perm
	}
	return s
}

// --- users ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User, roleIDs []string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	for _, roleID := range roleIDs {
		if _, ok := s.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	s.userRoles[u.ID] = append([]string(nil), roleIDs...)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*auth.User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return page(all, limit, offset), nil
}

func (s *Store) UpdateUser(ctx context.Context, u *auth.User, roleIDs []string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range s.users {
		if id != u.ID && existing.Email == u.Email {
			return auth.ErrConflict
		}
	}
	for _, roleID := range roleIDs {
		if _, ok := s.roles[roleID]; !ok {
			return auth.ErrNotFound
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	s.userRoles[u.ID] = append([]string(nil), roleIDs...)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	delete(s.userRoles, id)
	// Tasks keep their rows; only the reference is unset.
	for _, t := range s.tasks {
		if t.AssignedTo == id {
			t.AssignedTo = ""
		}
	}
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) UserRoles(ctx context.Context, userID string) ([]*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[userID]; !ok {
		return nil, auth.ErrNotFound
	}
	var roles []*auth.Role
	for _, roleID := range s.userRoles[userID] {
		if r, ok := s.roles[roleID]; ok {
			cp := *r
			roles = append(roles, &cp)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].Name < roles[j].Name })
	return roles, nil
}

func (s *Store) UserPermissions(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	var perms []string
	for _, roleID := range s.userRoles[userID] {
		for _, permID := range s.rolePerms[roleID] {
			p, ok := s.permissions[permID]
			if !ok {
				continue
			}
			if _, dup := seen[p.Name]; dup {
				continue
			}
			seen[p.Name] = struct{}{}
			perms = append(perms, p.Name)
		}
	}
	sort.Strings(perms)
	return perms, nil
}

// --- roles ---

func (s *Store) CreateRole(ctx context.Context, r *auth.Role, permissionIDs []string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == r.Name {
			return auth.ErrConflict
		}
	}
	for _, permID := range permissionIDs {
		if _, ok := s.permissions[permID]; !ok {
			return auth.ErrNotFound
		}
	}
	cp := *r
	s.roles[r.ID] = &cp
	s.rolePerms[r.ID] = append([]string(nil), permissionIDs...)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) GetRole(ctx context.Context, id string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			cp := *r
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *Store) ListRoles(ctx context.Context) ([]*auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cp := *r
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (s *Store) UpdateRole(ctx context.Context, r *auth.Role, permissionIDs []string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range s.roles {
		if id != r.ID && existing.Name == r.Name {
			return auth.ErrConflict
		}
	}
	for _, permID := range permissionIDs {
		if _, ok := s.permissions[permID]; !ok {
			return auth.ErrNotFound
		}
	}
	cp := *r
	s.roles[r.ID] = &cp
	s.rolePerms[r.ID] = append([]string(nil), permissionIDs...)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, id string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	// Edges first: no dangling grants or assignments survive the role.
	delete(s.rolePerms, id)
	for userID, roleIDs := range s.userRoles {
		kept := roleIDs[:0]
		for _, roleID := range roleIDs {
			if roleID != id {
				kept = append(kept, roleID)
			}
		}
		s.userRoles[userID] = kept
	}
	delete(s.roles, id)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) RolePermissions(ctx context.Context, roleID string) ([]*auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.roles[roleID]; !ok {
		return nil, auth.ErrNotFound
	}
	var perms []*auth.Permission
	for _, permID := range s.rolePerms[roleID] {
		if p, ok := s.permissions[permID]; ok {
			cp := *p
			perms = append(perms, &cp)
		}
	}
	sort.Slice(perms, func(i, j int) bool { return perms[i].Name < perms[j].Name })
	return perms, nil
}

// --- permissions ---

func (s *Store) ListPermissions(ctx context.Context) ([]*auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*auth.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		cp := *p
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*auth.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

// --- tasks ---

func (s *Store) CreateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	s.tasks[t.ID] = &cp
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTasksAssignedTo(ctx context.Context, userID string, limit, offset int) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*task.Task
	for _, t := range s.tasks {
		if t.AssignedTo == userID {
			cp := *t
			all = append(all, &cp)
		}
	}
	sortTasks(all)
	return page(all, limit, offset), nil
}

func (s *Store) ListTasks(ctx context.Context, limit, offset int) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		cp := *t
		all = append(all, &cp)
	}
	sortTasks(all)
	return page(all, limit, offset), nil
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return task.ErrNotFound
	}
	cp := *t
	s.tasks[t.ID] = &cp
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id string, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return task.ErrNotFound
	}
	delete(s.tasks, id)
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) OverdueTasks(ctx context.Context, now time.Time) ([]*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var overdue []*task.Task
	for _, t := range s.tasks {
		if t.IsOverdue(now) {
			cp := *t
			overdue = append(overdue, &cp)
		}
	}
	sortTasks(overdue)
	return overdue, nil
}

// --- activity log ---

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	return nil
}

func (s *Store) ListEntries(ctx context.Context, limit, offset int) ([]*audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*audit.Entry, 0, len(s.logs))
	for _, e := range s.logs {
		cp := *e
		all = append(all, &cp)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].LoggedAt.After(all[j].LoggedAt) })
	return page(all, limit, offset), nil
}

func (s *Store) SeenSince(ctx context.Context, action, description string, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.logs {
		if e.Action == action && e.Description == description && !e.LoggedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

// --- helpers ---

func sortTasks(tasks []*task.Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if !tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
		}
		return tasks[i].ID > tasks[j].ID
	})
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}
