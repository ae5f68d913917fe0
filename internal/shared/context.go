package shared

import "context"

// Scope identifies the caller of every core operation: the boutique (tenant)
// the request is bound to and the acting user. The authentication layer sits in
// front of this service and forwards both; tenant id is never ambient state
// inside the core, it travels explicitly on every call.
type Scope struct {
	BoutiqueID int64
	UserID     int64
}

type scopeContextKey struct{}

// ContextWithScope stores the request scope in context.
func ContextWithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the request scope from context.
func ScopeFromContext(ctx context.Context) (Scope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(Scope)
	return scope, ok && scope.BoutiqueID != 0
}
