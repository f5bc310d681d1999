package authz

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Role is a named permission tier assigned to an identity.
type Role string

// Built-in role names. Deployments may configure more admin-tier or
// read-only-tier names; these are the defaults.
const (
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
	RoleEngineer   Role = "engineer"
	RoleNormalUser Role = "normal_user"
	RoleViewer     Role = "viewer"
)

var (
	// ErrEmptyAdminTier is returned when a role set has no admin-tier role
	ErrEmptyAdminTier = errors.New("at least one admin role is required")

	// ErrBlankRole is returned when a role name is empty or whitespace
	ErrBlankRole = errors.New("role name must not be blank")

	// ErrRoleInBothTiers is returned when a role is listed as admin and read-only
	ErrRoleInBothTiers = errors.New("role cannot be both admin and read-only")
)

// RoleSet is the recognized set of roles split in two flat tiers. It is built
// once and never mutated, so it is safe to share across goroutines.
type RoleSet struct {
	admin    map[Role]struct{}
	readOnly map[Role]struct{}
}

// NewRoleSet builds a RoleSet. Names are trimmed but otherwise matched
// exactly; duplicates within a tier are collapsed.
func NewRoleSet(adminRoles, readOnlyRoles []string) (*RoleSet, error) {
	admin, err := toSet(adminRoles)
	if err != nil {
		return nil, fmt.Errorf("admin roles: %w", err)
	}
	if len(admin) == 0 {
		return nil, ErrEmptyAdminTier
	}

	readOnly, err := toSet(readOnlyRoles)
	if err != nil {
		return nil, fmt.Errorf("read-only roles: %w", err)
	}

	for role := range readOnly {
		if _, ok := admin[role]; ok {
			return nil, fmt.Errorf("%w: %s", ErrRoleInBothTiers, role)
		}
	}

	return &RoleSet{admin: admin, readOnly: readOnly}, nil
}

// DefaultRoleSet returns the role set used when nothing is configured.
func DefaultRoleSet() *RoleSet {
	rs, _ := NewRoleSet(
		[]string{string(RoleAdmin), string(RoleSuperadmin), string(RoleEngineer)},
		[]string{string(RoleNormalUser), string(RoleViewer)},
	)
	return rs
}

func toSet(names []string) (map[Role]struct{}, error) {
	set := make(map[Role]struct{}, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, ErrBlankRole
		}
		set[Role(name)] = struct{}{}
	}
	return set, nil
}

// IsAdmin reports whether role belongs to the admin tier.
func (rs *RoleSet) IsAdmin(role Role) bool {
	if rs == nil {
		return false
	}
	_, ok := rs.admin[role]
	return ok
}

// IsReadOnly reports whether role belongs to the read-only tier.
func (rs *RoleSet) IsReadOnly(role Role) bool {
	if rs == nil {
		return false
	}
	_, ok := rs.readOnly[role]
	return ok
}

// IsRecognized reports whether role belongs to either tier.
func (rs *RoleSet) IsRecognized(role Role) bool {
	return rs.IsAdmin(role) || rs.IsReadOnly(role)
}

// AdminRoles returns the admin tier in sorted order.
func (rs *RoleSet) AdminRoles() []Role {
	if rs == nil {
		return nil
	}
	return sortedRoles(rs.admin)
}

// ReadOnlyRoles returns the read-only tier in sorted order.
func (rs *RoleSet) ReadOnlyRoles() []Role {
	if rs == nil {
		return nil
	}
	return sortedRoles(rs.readOnly)
}

func sortedRoles(set map[Role]struct{}) []Role {
	roles := make([]Role, 0, len(set))
	for role := range set {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
