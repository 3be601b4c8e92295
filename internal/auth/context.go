package auth

import "context"

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
// Core operations read the actor from here; nothing relies on ambient
// global identity.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// ActorID returns the acting user's ID, or empty when the call is
// unauthenticated or system-initiated.
func ActorID(ctx context.Context) string {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal.User == nil {
		return ""
	}
	return principal.User.ID
}
