package auth

import "context"

// Principal is an authenticated user with the union of permissions across
// every role assigned to them, resolved once per request.
type Principal struct {
	User        *User
	Permissions map[string]struct{}
}

// NewPrincipal constructs a principal with preloaded permissions.
func NewPrincipal(user *User, perms []string) Principal {
	set := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return Principal{User: user, Permissions: set}
}

// HasPermission reports whether the principal holds the named permission.
func (p Principal) HasPermission(name string) bool {
	_, ok := p.Permissions[name]
	return ok
}

// HasAny reports whether the principal holds at least one of the named
// permissions. An empty permission set denies everything.
func (p Principal) HasAny(names ...string) bool {
	for _, n := range names {
		if p.HasPermission(n) {
			return true
		}
	}
	return false
}

// Authorize resolves the actor from the context and requires any one of the
// listed permissions. An absent actor fails with ErrUnauthenticated before
// any permission is consulted; an actor holding none of the permissions
// fails with ErrForbidden.
func Authorize(ctx context.Context, required ...string) error {
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		return ErrUnauthenticated
	}
	if !principal.HasAny(required...) {
		return ErrForbidden
	}
	return nil
}
