package auth

import "errors"

var (
	// ErrUnauthenticated means no actor was resolved for the request. The
	// transport maps it to 401; it is checked strictly before any
	// permission lookup.
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	// ErrForbidden means the actor's roles grant none of the required
	// permissions. The operation is never attempted.
	ErrForbidden = errors.New("auth: forbidden")

	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: resource conflict")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrInactiveAccount is returned at sign-in for any non-active user,
	// regardless of credential correctness.
	ErrInactiveAccount = errors.New("auth: account is inactive")
)
