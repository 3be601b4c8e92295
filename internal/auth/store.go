package auth

import (
	"context"

	"taskdesk.org/internal/audit"
)

// Store describes persistence for users, roles and permissions. Every
// mutating method takes the audit entry describing it and must persist both
// in one atomic unit: an entry is never written without its mutation and a
// mutation is never written without its entry.
type Store interface {
	CreateUser(ctx context.Context, u *User, roleIDs []string, entry *audit.Entry) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*User, error)
	// UpdateUser replaces the user's fields and their role assignments
	// wholesale with roleIDs.
	UpdateUser(ctx context.Context, u *User, roleIDs []string, entry *audit.Entry) error
	// DeleteUser removes the user and their role assignments. Tasks
	// assigned to them lose the reference (set null); audit entries they
	// produced keep an unresolvable actor reference.
	DeleteUser(ctx context.Context, id string, entry *audit.Entry) error
	UserRoles(ctx context.Context, userID string) ([]*Role, error)
	// UserPermissions returns the distinct union of permission names across
	// the user's roles.
	UserPermissions(ctx context.Context, userID string) ([]string, error)

	CreateRole(ctx context.Context, r *Role, permissionIDs []string, entry *audit.Entry) error
	GetRole(ctx context.Context, id string) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]*Role, error)
	// UpdateRole renames the role and replaces its permission set wholesale.
	UpdateRole(ctx context.Context, r *Role, permissionIDs []string, entry *audit.Entry) error
	// DeleteRole removes the role, its permission associations and its
	// assignments to users, all in the same transaction.
	DeleteRole(ctx context.Context, id string, entry *audit.Entry) error
	RolePermissions(ctx context.Context, roleID string) ([]*Permission, error)

	ListPermissions(ctx context.Context) ([]*Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
}
