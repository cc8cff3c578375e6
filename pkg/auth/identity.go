package auth

import (
	"context"

	"github.com/kidega/apartments/pkg/model"
)

// Identity is the canonical representation of the authenticated caller.
// Every ownership check reads UserID from here; nothing else carries the
// caller's id.
type Identity struct {
	UserID string
	Role   model.Role
}

// IsAdmin reports whether the caller is an admin.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }

// IsManager reports whether the caller is a manager.
func (i Identity) IsManager() bool { return i.Role == model.RoleManager }

// IsTenant reports whether the caller is a tenant.
func (i Identity) IsTenant() bool { return i.Role == model.RoleTenant }

type identityKey struct{}

// WithIdentity attaches the authenticated identity to the context.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the authenticated identity, or ok=false
// when the request was not authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
