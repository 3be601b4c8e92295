package auth_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskdesk.org/internal/audit"
	"taskdesk.org/internal/auth"
	"taskdesk.org/internal/ids"
	"taskdesk.org/internal/store/memory"
	"taskdesk.org/internal/validate"
)

type fixture struct {
	store *memory.Store
	svc   *auth.Service
}

// newFixture seeds a Manager role holding every permission plus a Staff
// role limited to task work, mirroring the shipped seed data.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	now := time.Now().UTC()

	perms, err := store.ListPermissions(context.Background())
	if err != nil {
		t.Fatalf("list permissions: %v", err)
	}
	allIDs := make([]string, 0, len(perms))
	taskIDs := make([]string, 0, 3)
	for _, p := range perms {
		allIDs = append(allIDs, p.ID)
		switch p.Name {
		case auth.PermTaskList, auth.PermTaskCreate, auth.PermTaskEdit:
			taskIDs = append(taskIDs, p.ID)
		}
	}

	for _, r := range []struct {
		name  string
		perms []string
	}{
		{"Manager", allIDs},
		{"Staff", taskIDs},
	} {
		role := &auth.Role{ID: ids.New(), Name: r.name, CreatedAt: now, UpdatedAt: now}
		entry := audit.NewEntry("", audit.ActionCreateRole, fmt.Sprintf("Created a role: %s", r.name), now)
		if err := store.CreateRole(context.Background(), role, r.perms, entry); err != nil {
			t.Fatalf("seed role %s: %v", r.name, err)
		}
	}

	return &fixture{store: store, svc: auth.NewService(store)}
}

// seedUser writes a user directly to the store, bypassing authorization.
func (f *fixture) seedUser(t *testing.T, name, email, password, status string, roleNames ...string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	var roleIDs []string
	for _, rn := range roleNames {
		role, err := f.store.GetRoleByName(context.Background(), rn)
		if err != nil {
			t.Fatalf("role %s: %v", rn, err)
		}
		roleIDs = append(roleIDs, role.ID)
	}
	now := time.Now().UTC()
	user := &auth.User{
		ID:           ids.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entry := audit.NewEntry("", audit.ActionCreateUser,
		fmt.Sprintf("Created a new user: %s (%s)", name, email), now)
	if err := f.store.CreateUser(context.Background(), user, roleIDs, entry); err != nil {
		t.Fatalf("seed user %s: %v", email, err)
	}
	return user
}

// actorCtx builds a context for the given user with permissions resolved
// from their roles.
func (f *fixture) actorCtx(t *testing.T, user *auth.User) context.Context {
	t.Helper()
	perms, err := f.store.UserPermissions(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("user permissions: %v", err)
	}
	return auth.ContextWithPrincipal(context.Background(), auth.NewPrincipal(user, perms))
}

func (f *fixture) logCount(t *testing.T) int {
	t.Helper()
	entries, err := f.store.ListEntries(context.Background(), 1000, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return len(entries)
}

func (f *fixture) lastEntry(t *testing.T) *audit.Entry {
	t.Helper()
	entries, err := f.store.ListEntries(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected at least one log entry")
	}
	return entries[0]
}

func TestLoginSuccess(t *testing.T) {
	t.Setenv("TASKDESK_AUTH_SECRET", "service-test-secret")
	auth.ResetSecretCache()
	t.Cleanup(auth.ResetSecretCache)

	f := newFixture(t)
	f.seedUser(t, "Alice", "alice@example.com", "correct horse", auth.UserStatusActive, "Manager")

	user, token, err := f.svc.Login(context.Background(), "Alice@Example.com", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if token == "" {
		t.Fatal("expected a token")
	}
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("parse issued token: %v", err)
	}
	if claims.Subject != user.ID {
		t.Fatalf("token subject %q, want %q", claims.Subject, user.ID)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Alice", "alice@example.com", "correct horse", auth.UserStatusActive, "Manager")

	if _, _, err := f.svc.Login(context.Background(), "alice@example.com", "battery staple"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	f := newFixture(t)
	if _, _, err := f.svc.Login(context.Background(), "nobody@example.com", "whatever"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginInactiveRejectedRegardlessOfPassword(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Bob", "bob@example.com", "correct horse", auth.UserStatusInactive, "Manager")

	// Correct and wrong credentials both fail the same way: status is
	// checked first.
	if _, _, err := f.svc.Login(context.Background(), "bob@example.com", "correct horse"); !errors.Is(err, auth.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
	if _, _, err := f.svc.Login(context.Background(), "bob@example.com", "wrong"); !errors.Is(err, auth.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestPrincipalByIDInactive(t *testing.T) {
	f := newFixture(t)
	u := f.seedUser(t, "Bob", "bob@example.com", "pw", auth.UserStatusInactive, "Manager")

	if _, err := f.svc.PrincipalByID(context.Background(), u.ID); !errors.Is(err, auth.ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}
}

func TestCreateUserRequiresPermission(t *testing.T) {
	f := newFixture(t)
	staff := f.seedUser(t, "Sam", "sam@example.com", "pw", auth.UserStatusActive, "Staff")
	ctx := f.actorCtx(t, staff)
	before := f.logCount(t)

	_, err := f.svc.CreateUser(ctx, auth.CreateUserInput{
		Name: "Eve", Email: "eve@example.com",
		Password: "pw", ConfirmPassword: "pw",
		Roles: []string{"Staff"},
	})
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// Denied mutation leaves no trace: no user, no log entry.
	if _, err := f.store.GetUserByEmail(context.Background(), "eve@example.com"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected no user row, got %v", err)
	}
	if got := f.logCount(t); got != before {
		t.Fatalf("expected log count unchanged (%d), got %d", before, got)
	}
}

func TestCreateUserUnauthenticated(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateUser(context.Background(), auth.CreateUserInput{})
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCreateUserValidationReportsEveryField(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)

	_, err := f.svc.CreateUser(ctx, auth.CreateUserInput{})
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"name", "email", "password", "roles"} {
		if _, ok := verr.Fields[field]; !ok {
			t.Fatalf("expected field %q in %v", field, verr.Fields)
		}
	}
}

func TestCreateUserPasswordConfirmationMismatch(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)

	_, err := f.svc.CreateUser(ctx, auth.CreateUserInput{
		Name: "Eve", Email: "eve@example.com",
		Password: "one", ConfirmPassword: "two",
		Roles: []string{"Staff"},
	})
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["password"]; !ok {
		t.Fatalf("expected password field in %v", verr.Fields)
	}
}

func TestCreateUserUnknownRole(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)

	_, err := f.svc.CreateUser(ctx, auth.CreateUserInput{
		Name: "Eve", Email: "eve@example.com",
		Password: "pw", ConfirmPassword: "pw",
		Roles: []string{"Wizard"},
	})
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["roles"]; !ok {
		t.Fatalf("expected roles field in %v", verr.Fields)
	}
}

func TestCreateUserWritesAuditEntry(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)
	before := f.logCount(t)

	user, err := f.svc.CreateUser(ctx, auth.CreateUserInput{
		Name: "Eve", Email: "Eve@Example.com",
		Password: "pw", ConfirmPassword: "pw",
		Roles: []string{"Staff"},
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Email != "eve@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if got := f.logCount(t); got != before+1 {
		t.Fatalf("expected exactly one new log entry, got %d", got-before)
	}
	entry := f.lastEntry(t)
	if entry.Action != audit.ActionCreateUser {
		t.Fatalf("unexpected action %q", entry.Action)
	}
	if entry.ActorID != admin.ID {
		t.Fatalf("expected actor %q, got %q", admin.ID, entry.ActorID)
	}
	if want := "Created a new user: Eve (eve@example.com)"; entry.Description != want {
		t.Fatalf("description %q, want %q", entry.Description, want)
	}
}

func TestUpdateUserBlankPasswordKeepsHash(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	target := f.seedUser(t, "Eve", "eve@example.com", "original", auth.UserStatusActive, "Staff")
	ctx := f.actorCtx(t, admin)

	updated, err := f.svc.UpdateUser(ctx, target.ID, auth.UpdateUserInput{
		Name: "Eve Renamed", Email: "eve@example.com",
		Roles: []string{"Staff"},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PasswordHash != target.PasswordHash {
		t.Fatal("blank password must keep the stored hash")
	}

	// A non-blank password with a matching confirmation rehashes.
	updated, err = f.svc.UpdateUser(ctx, target.ID, auth.UpdateUserInput{
		Name: "Eve Renamed", Email: "eve@example.com",
		Password: "fresh", ConfirmPassword: "fresh",
		Roles: []string{"Staff"},
	})
	if err != nil {
		t.Fatalf("update with password: %v", err)
	}
	if updated.PasswordHash == target.PasswordHash {
		t.Fatal("expected a new hash")
	}
	if !auth.VerifyPassword(updated.PasswordHash, "fresh") {
		t.Fatal("new hash must verify the new password")
	}
}

func TestUpdateUserReplacesRoles(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	target := f.seedUser(t, "Eve", "eve@example.com", "pw", auth.UserStatusActive, "Staff")
	ctx := f.actorCtx(t, admin)

	if _, err := f.svc.UpdateUser(ctx, target.ID, auth.UpdateUserInput{
		Name: "Eve", Email: "eve@example.com",
		Roles: []string{"Manager"},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	roles, err := f.store.UserRoles(context.Background(), target.ID)
	if err != nil {
		t.Fatalf("user roles: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "Manager" {
		t.Fatalf("expected exactly [Manager], got %v", roles)
	}

	entry := f.lastEntry(t)
	if want := "Updated a new user: Eve (eve@example.com)"; entry.Description != want {
		t.Fatalf("description %q, want %q", entry.Description, want)
	}
}

func TestDeleteUser(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	target := f.seedUser(t, "Eve", "eve@example.com", "pw", auth.UserStatusActive, "Staff")
	ctx := f.actorCtx(t, admin)

	if err := f.svc.DeleteUser(ctx, target.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.store.GetUser(context.Background(), target.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected user gone, got %v", err)
	}
	entry := f.lastEntry(t)
	if want := fmt.Sprintf("Deleted a user with ID: %s", target.ID); entry.Description != want {
		t.Fatalf("description %q, want %q", entry.Description, want)
	}

	if err := f.svc.DeleteUser(ctx, target.ID); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on repeat delete, got %v", err)
	}
}

func TestRoleLifecycle(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)

	taskList, err := f.store.GetPermissionByName(context.Background(), auth.PermTaskList)
	if err != nil {
		t.Fatalf("permission: %v", err)
	}
	logList, err := f.store.GetPermissionByName(context.Background(), auth.PermLogList)
	if err != nil {
		t.Fatalf("permission: %v", err)
	}

	role, err := f.svc.CreateRole(ctx, "Auditor", []string{taskList.ID})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	// Update replaces the permission set outright.
	if _, err := f.svc.UpdateRole(ctx, role.ID, "Auditor", []string{logList.ID}); err != nil {
		t.Fatalf("update role: %v", err)
	}
	perms, err := f.store.RolePermissions(context.Background(), role.ID)
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(perms) != 1 || perms[0].Name != auth.PermLogList {
		t.Fatalf("expected exactly [log-list], got %v", perms)
	}

	if err := f.svc.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	entry := f.lastEntry(t)
	if want := "Deleted role: Auditor"; entry.Description != want {
		t.Fatalf("description %q, want %q", entry.Description, want)
	}
}

func TestCreateRoleRequiresPermissions(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	ctx := f.actorCtx(t, admin)

	_, err := f.svc.CreateRole(ctx, "Empty", nil)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, ok := verr.Fields["permissions"]; !ok {
		t.Fatalf("expected permissions field in %v", verr.Fields)
	}
}

func TestDeleteRoleRevokesAccess(t *testing.T) {
	f := newFixture(t)
	admin := f.seedUser(t, "Admin", "admin@example.com", "pw", auth.UserStatusActive, "Manager")
	staff := f.seedUser(t, "Sam", "sam@example.com", "pw", auth.UserStatusActive, "Staff")
	ctx := f.actorCtx(t, admin)

	role, err := f.store.GetRoleByName(context.Background(), "Staff")
	if err != nil {
		t.Fatalf("role: %v", err)
	}
	if err := f.svc.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}

	// The user remains but now resolves to zero permissions.
	perms, err := f.store.UserPermissions(context.Background(), staff.ID)
	if err != nil {
		t.Fatalf("user permissions: %v", err)
	}
	if len(perms) != 0 {
		t.Fatalf("expected no permissions, got %v", perms)
	}
}
