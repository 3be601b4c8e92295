package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/validate"
)

const defaultTokenTTL = 8 * time.Hour

// Service provides sign-in plus authorized, audited management of users and
// roles. Every mutation resolves the actor from the context, passes the
// permission check, and hands the store an audit entry to persist atomically
// with the change.
type Service struct {
	store    Store
	now      func() time.Time
	tokenTTL time.Duration
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

// WithTokenTTL configures issued token lifetime.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		now:      time.Now,
		tokenTTL: defaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login authenticates by email and password and issues a bearer token. A
// user whose status is anything but active is rejected before the
// credential is checked.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, "", ErrInvalidCredentials
	}
	if user.Status != UserStatusActive {
		return nil, "", ErrInactiveAccount
	}
	if !VerifyPassword(user.PasswordHash, password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := GenerateToken(user.ID, s.tokenTTL)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// PrincipalByID loads the user and the union of permissions across their
// roles. The authn middleware calls it once per request; a user flipped to
// inactive stops authenticating immediately, token or not.
func (s *Service) PrincipalByID(ctx context.Context, userID string) (Principal, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	if user.Status != UserStatusActive {
		return Principal{}, ErrInactiveAccount
	}
	perms, err := s.store.UserPermissions(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	return NewPrincipal(user, perms), nil
}

// CreateUserInput is the full field set required to create a user.
type CreateUserInput struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirm_password"`
	Roles           []string `json:"roles"`
}

// UpdateUserInput mirrors CreateUserInput except that a blank password
// keeps the stored credential unchanged.
type UpdateUserInput struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Password        string   `json:"password"`
	ConfirmPassword string   `json:"confirm_password"`
	Roles           []string `json:"roles"`
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, error) {
	if err := Authorize(ctx, UserViewPermissions...); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	return s.store.ListUsers(ctx, limit, offset)
}

func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	if err := Authorize(ctx, UserViewPermissions...); err != nil {
		return nil, err
	}
	return s.store.GetUser(ctx, id)
}

// UserRoles returns the roles currently assigned to a user.
func (s *Service) UserRoles(ctx context.Context, id string) ([]*Role, error) {
	if err := Authorize(ctx, UserViewPermissions...); err != nil {
		return nil, err
	}
	return s.store.UserRoles(ctx, id)
}

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	if err := Authorize(ctx, PermUserCreate); err != nil {
		return nil, err
	}
	verr := validate.NewError()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("name", "name is required")
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		verr.Add("email", "a valid email is required")
	}
	if in.Password == "" {
		verr.Add("password", "password is required")
	} else if in.Password != in.ConfirmPassword {
		verr.Add("password", "password confirmation does not match")
	}
	roleIDs, rerr := s.resolveRoleNames(ctx, in.Roles)
	if rerr != "" {
		verr.Add("roles", rerr)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := audit.NewEntry(ActorID(ctx), audit.ActionCreateUser,
		fmt.Sprintf("Created a new user: %s (%s)", user.Name, user.Email), now)
	if err := s.store.CreateUser(ctx, user, roleIDs, entry); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*User, error) {
	if err := Authorize(ctx, PermUserEdit); err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := validate.NewError()
	name := strings.TrimSpace(in.Name)
	if name == "" {
		verr.Add("name", "name is required")
	}
	email := strings.TrimSpace(strings.ToLower(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		verr.Add("email", "a valid email is required")
	}
	if in.Password != "" && in.Password != in.ConfirmPassword {
		verr.Add("password", "password confirmation does not match")
	}
	roleIDs, rerr := s.resolveRoleNames(ctx, in.Roles)
	if rerr != "" {
		verr.Add("roles", rerr)
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	user.Name = name
	user.Email = email
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return nil, err
		}
		user.PasswordHash = hash
	}
	now := s.now().UTC()
	user.UpdatedAt = now
	entry := audit.NewEntry(ActorID(ctx), audit.ActionUpdateUser,
		fmt.Sprintf("Updated a new user: %s (%s)", user.Name, user.Email), now)
	if err := s.store.UpdateUser(ctx, user, roleIDs, entry); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := Authorize(ctx, PermUserDelete); err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, id); err != nil {
		return err
	}
	now := s.now().UTC()
	entry := audit.NewEntry(ActorID(ctx), audit.ActionDeleteUser,
		fmt.Sprintf("Deleted a user with ID: %s", id), now)
	return s.store.DeleteUser(ctx, id, entry)
}

func (s *Service) ListRoles(ctx context.Context) ([]*Role, error) {
	if err := Authorize(ctx, RoleViewPermissions...); err != nil {
		return nil, err
	}
	return s.store.ListRoles(ctx)
}

func (s *Service) GetRole(ctx context.Context, id string) (*Role, []*Permission, error) {
	if err := Authorize(ctx, RoleViewPermissions...); err != nil {
		return nil, nil, err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	perms, err := s.store.RolePermissions(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return role, perms, nil
}

// ListPermissions returns the catalog, for role forms.
func (s *Service) ListPermissions(ctx context.Context) ([]*Permission, error) {
	if err := Authorize(ctx, RoleViewPermissions...); err != nil {
		return nil, err
	}
	return s.store.ListPermissions(ctx)
}

func (s *Service) CreateRole(ctx context.Context, name string, permissionIDs []string) (*Role, error) {
	if err := Authorize(ctx, PermRoleCreate); err != nil {
		return nil, err
	}
	verr := validate.NewError()
	name = strings.TrimSpace(name)
	if name == "" {
		verr.Add("name", "name is required")
	}
	permissionIDs = dedupeStrings(permissionIDs)
	if len(permissionIDs) == 0 {
		verr.Add("permissions", "at least one permission is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := &Role{ID: ids.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	entry := audit.NewEntry(ActorID(ctx), audit.ActionCreateRole,
		fmt.Sprintf("Created a role: %s", role.Name), now)
	if err := s.store.CreateRole(ctx, role, permissionIDs, entry); err != nil {
		return nil, err
	}
	return role, nil
}

// UpdateRole renames the role and replaces its permission set with exactly
// the submitted one (sync semantics, not additive).
func (s *Service) UpdateRole(ctx context.Context, id, name string, permissionIDs []string) (*Role, error) {
	if err := Authorize(ctx, PermRoleEdit); err != nil {
		return nil, err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}

	verr := validate.NewError()
	name = strings.TrimSpace(name)
	if name == "" {
		verr.Add("name", "name is required")
	}
	permissionIDs = dedupeStrings(permissionIDs)
	if len(permissionIDs) == 0 {
		verr.Add("permissions", "at least one permission is required")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	role.Name = name
	now := s.now().UTC()
	role.UpdatedAt = now
	entry := audit.NewEntry(ActorID(ctx), audit.ActionUpdateRole,
		fmt.Sprintf("Updated role: %s", role.Name), now)
	if err := s.store.UpdateRole(ctx, role, permissionIDs, entry); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, id string) error {
	if err := Authorize(ctx, PermRoleDelete); err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, id)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	entry := audit.NewEntry(ActorID(ctx), audit.ActionDeleteRole,
		fmt.Sprintf("Deleted role: %s", role.Name), now)
	return s.store.DeleteRole(ctx, id, entry)
}

// resolveRoleNames maps submitted role names to IDs. It reports a
// validation message rather than an error so the caller can fold it into
// the field map.
func (s *Service) resolveRoleNames(ctx context.Context, names []string) ([]string, string) {
	names = dedupeStrings(names)
	if len(names) == 0 {
		return nil, "at least one role is required"
	}
	roleIDs := make([]string, 0, len(names))
	for _, name := range names {
		role, err := s.store.GetRoleByName(ctx, name)
		if err != nil {
			return nil, fmt.Sprintf("unknown role %q", name)
		}
		roleIDs = append(roleIDs, role.ID)
	}
	return roleIDs, ""
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := set[v]; ok {
			continue
		}
		set[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
