package authz

// Policy is the access requirement attached to an operation at registration.
// The zero value is not a valid policy and is always denied.
type Policy int

const (
	policyUnset Policy = iota
	// PolicyPublic marks an operation as explicitly unprotected
	PolicyPublic
	// PolicyAnyRole requires any recognized role; read-only is enough
	PolicyAnyRole
	// PolicyAdmin requires an admin-tier role
	PolicyAdmin
)

// String returns the label used in logs and metrics.
func (p Policy) String() string {
	switch p {
	case PolicyPublic:
		return "public"
	case PolicyAnyRole:
		return "any_role"
	case PolicyAdmin:
		return "admin"
	default:
		return "invalid"
	}
}

// Valid reports whether p is one of the declared policies.
func (p Policy) Valid() bool {
	return p == PolicyPublic || p == PolicyAnyRole || p == PolicyAdmin
}
