package scope

import "context"

// ctxKey is an unexported type to avoid collisions with other
// packages' context keys.
type ctxKey string

const (
	scopeKey       ctxKey = "tenant_scope"
	permissionsKey ctxKey = "granted_permissions"
)

// WithContext attaches scope to ctx. The resolved scope is cached here
// exactly once, at resolution time; downstream code must read it back
// with FromContext rather than re-resolving it.
func WithContext(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey, s)
}

// FromContext retrieves the scope attached by WithContext. ok is false
// if no scope has been resolved for this request.
func FromContext(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Empty, false
	}
	s, ok := ctx.Value(scopeKey).(Scope)
	return s, ok
}

// WithPermissions attaches the principal's granted permission set.
// Transports that authenticate (HTTP bearer) attach the token's grants;
// the stdio transport, whose caller owns the process, attaches none —
// an absent set means the principal is unrestricted.
func WithPermissions(ctx context.Context, permissions []string) context.Context {
	return context.WithValue(ctx, permissionsKey, permissions)
}

// Permissions retrieves the granted permission set. ok is false when no
// set was attached (unrestricted principal).
func Permissions(ctx context.Context) ([]string, bool) {
	p, ok := ctx.Value(permissionsKey).([]string)
	return p, ok
}

// MustFromContext retrieves the scope, panicking if absent. Only safe to
// call from code paths downstream of scope resolution (tool handlers),
// which refuse to execute when scope resolution failed.
func MustFromContext(ctx context.Context) Scope {
	s, ok := FromContext(ctx)
	if !ok {
		panic("scope: no tenant scope in context")
	}
	return s
}
