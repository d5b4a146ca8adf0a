package common

import (
	"context"
	"sync"
)

type ctxKey string

const (
	userIDKey    ctxKey = "auth/user-id"
	userRoleKey  ctxKey = "auth/user-role"
	principalKey ctxKey = "auth/principal"
)

// Principal is a request-scoped slot filled in once the caller is authenticated.
// Outer middleware such as the request logger install it before authentication
// runs, since context values set further down the chain are not visible to them.
type Principal struct {
	mu   sync.Mutex
	id   string
	role string
}

// Get returns the recorded user id and role.
func (p *Principal) Get() (id, role string) {
	if p == nil {
		return "", ""
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.role
}

// WithPrincipal installs an empty Principal slot on the context.
func WithPrincipal(ctx context.Context) (context.Context, *Principal) {
	p := &Principal{}
	return context.WithValue(ctx, principalKey, p), p
}

// WithUser stores the authenticated user on the context and fills the
// Principal slot when one is present.
func WithUser(ctx context.Context, id, role string) context.Context {
	if p, ok := ctx.Value(principalKey).(*Principal); ok {
		p.mu.Lock()
		p.id, p.role = id, role
		p.mu.Unlock()
	}
	ctx = context.WithValue(ctx, userIDKey, id)
	return context.WithValue(ctx, userRoleKey, role)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// UserRole returns the authenticated user's role, or "".
func UserRole(ctx context.Context) string {
	role, _ := ctx.Value(userRoleKey).(string)
	return role
}
