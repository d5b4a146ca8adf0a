package auth

import (
	"context"
	"strings"

	"github.com/noah-isme/menumaster-admin/internal/common"
)

// Role is the portal role of an authenticated user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleMaker   Role = "maker"
	RoleChecker Role = "checker"
)

// ParseRole normalises a role claim, reporting false for unknown roles.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleMaker:
		return RoleMaker, true
	case RoleChecker:
		return RoleChecker, true
	default:
		return "", false
	}
}

// Actor is the authenticated user performing an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// HasRole reports whether the actor holds one of roles.
func (a Actor) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

// WithActor stores the actor on the context. The id and role are mirrored into
// common so request logs can pick them up.
func WithActor(ctx context.Context, actor Actor) context.Context {
	ctx = common.WithUser(ctx, actor.ID, string(actor.Role))
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor attached by RequireAuth.
func ActorFrom(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	if !ok || actor.ID == "" {
		return Actor{}, false
	}
	return actor, true
}
