package domain

import (
	"fmt"
	"slices"
)

// Role is a named capability bucket. The set of roles is closed; anything
// outside it is rejected at parse time.
type Role string

const (
	RoleOwner      Role = "Store Owner"
	RoleAdmin      Role = "Admin"
	RoleBaker      Role = "Baker"
	RoleCashier    Role = "Cashier"
	RoleSuperAdmin Role = "Super Admin"
)

var allRoles = []Role{RoleOwner, RoleAdmin, RoleBaker, RoleCashier, RoleSuperAdmin}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	for _, r := range allRoles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsGlobal reports whether the role's authority spans every tenant.
func (r Role) IsGlobal() bool { return r == RoleSuperAdmin }

// IsPrivileged reports whether only a global administrator may grant the role.
func (r Role) IsPrivileged() bool { return r == RoleOwner || r == RoleSuperAdmin }

// RoleSet is a duplicate-free list of roles.
type RoleSet []Role

// ParseRoles validates every name and drops duplicates.
func ParseRoles(names []string) (RoleSet, error) {
	set := make(RoleSet, 0, len(names))
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return nil, err
		}
		if !set.Has(r) {
			set = append(set, r)
		}
	}
	return set, nil
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool { return slices.Contains(s, r) }

// HasAny reports whether the set intersects roles.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if s.Has(r) {
			return true
		}
	}
	return false
}

// IsGlobal reports whether any role in the set is global.
func (s RoleSet) IsGlobal() bool {
	return slices.ContainsFunc(s, Role.IsGlobal)
}

// Strings returns the role names.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}

// Identity is the verified claim set of a request.
type Identity struct {
	UserID    int64
	Username  string
	TenantID  int64
	Namespace Namespace
	Roles     RoleSet
}

// IsGlobal reports whether the identity is not bound to a single tenant.
func (id Identity) IsGlobal() bool { return id.Roles.IsGlobal() }

// CanManageTenant reports whether the identity administers tenantID.
func (id Identity) CanManageTenant(tenantID int64) bool {
	if id.IsGlobal() {
		return true
	}
	return id.TenantID != 0 && id.TenantID == tenantID && id.Roles.HasAny(RoleOwner, RoleAdmin)
}
