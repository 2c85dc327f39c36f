package auth

import "context"

// Principal is the authenticated caller attached to request contexts.
type Principal struct {
	UserID   string
	Username string
	IsAdmin  bool
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
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
