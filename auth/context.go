package auth

import (
	"context"
	"flash-feed/domain"
)

type contextKey string

const (
	identityKey contextKey = "identity"
	rolesKey    contextKey = "roles"
)

// WithIdentity returns a context carrying the authenticated caller.
func WithIdentity(ctx context.Context, identity domain.Identity, roles []string) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	return context.WithValue(ctx, rolesKey, roles)
}

func FromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(rolesKey).([]string)
	return roles
}
