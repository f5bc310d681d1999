package authz

import "context"

// Identity is the resolved caller for one request. Callers construct it once
// after authentication and treat it as read-only afterwards.
type Identity struct {
	Subject       string
	Username      string
	Role          Role
	Authenticated bool
}

// IsAuthenticated is nil-safe; a nil identity is unauthenticated.
func (i *Identity) IsAuthenticated() bool {
	return i != nil && i.Authenticated
}

type identityKey struct{}

// WithIdentity attaches an identity to the context.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the identity attached to ctx, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}
