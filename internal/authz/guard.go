package authz

import "context"

// Guard enforces policies against identities. It holds only an immutable
// RoleSet, so one Guard serves all requests concurrently.
type Guard struct {
	roles *RoleSet
}

// NewGuard creates a guard over roles. A nil RoleSet recognizes nothing, so
// every protected operation is denied.
func NewGuard(roles *RoleSet) *Guard {
	return &Guard{roles: roles}
}

// Roles returns the role set the guard evaluates against. A nil Guard has
// none, so it denies every protected operation.
func (g *Guard) Roles() *RoleSet {
	if g == nil {
		return nil
	}
	return g.roles
}

// RequireAdmin allows only identities with an admin-tier role.
func (g *Guard) RequireAdmin(id *Identity) Decision {
	if !id.IsAuthenticated() {
		return Deny(DenyUnauthenticated, ReasonUnauthenticated)
	}
	if !g.Roles().IsAdmin(id.Role) {
		return Deny(DenyInsufficientPrivilege, ReasonAdminRequired)
	}
	return Allow()
}

// RequireAnyRole allows identities with any recognized role, admin included.
func (g *Guard) RequireAnyRole(id *Identity) Decision {
	if !id.IsAuthenticated() {
		return Deny(DenyUnauthenticated, ReasonUnauthenticated)
	}
	if !g.Roles().IsRecognized(id.Role) {
		return Deny(DenyInsufficientPrivilege, ReasonNoRecognizedRole)
	}
	return Allow()
}

// Evaluate applies policy to id. Policies outside the declared set are denied.
func (g *Guard) Evaluate(id *Identity, policy Policy) Decision {
	switch policy {
	case PolicyPublic:
		return Allow()
	case PolicyAnyRole:
		return g.RequireAnyRole(id)
	case PolicyAdmin:
		return g.RequireAdmin(id)
	default:
		return Deny(DenyMisconfiguredPolicy, ReasonMisconfigured)
	}
}

// Do evaluates policy against the identity in ctx and runs op only when the
// decision allows it. A deny is returned as a *DenyError and op never runs.
func (g *Guard) Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	if err := g.Evaluate(IdentityFromContext(ctx), policy).Err(); err != nil {
		return err
	}
	return op(ctx)
}
