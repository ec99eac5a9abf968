package membership

import (
	"context"
)

var principalCtxKey = &contextKey{"principal"}

type contextKey struct {
	name string
}

// WithPrincipalContext sets the Principal in the given context
func WithPrincipalContext(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal in the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok && raw != nil
}

// IdentityFromContext returns the live identity of the authenticated caller.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.Identity == nil {
		return nil, false
	}
	return p.Identity, true
}

// CanFromContext checks a permission for the caller stored in ctx.
func CanFromContext(ctx context.Context, permission Permission) bool {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		return false
	}
	return Can(identity, permission)
}
