// Package security holds the authorization gate. Authentication lives in
// auth, request plumbing in middleware.
package security

import (
	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
)

// Reason explains an authorization decision.
type Reason string

const (
	ReasonGlobalScope           Reason = "global_scope"
	ReasonRoleMatched           Reason = "role_matched"
	ReasonNoRoles               Reason = "no_roles"
	ReasonInsufficientPrivilege Reason = "insufficient_privilege"
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Authorize decides whether id may perform an operation that requires one
// of required. A global role always passes. An identity without roles is
// denied with its own reason so the two denials can be told apart in logs.
// An empty required list admits any identity holding a role.
func Authorize(id domain.Identity, required ...domain.Role) Decision {
	if id.IsGlobal() {
		return Decision{Allowed: true, Reason: ReasonGlobalScope}
	}
	if len(id.Roles) == 0 {
		return Decision{Reason: ReasonNoRoles}
	}
	if len(required) == 0 || id.Roles.HasAny(required...) {
		return Decision{Allowed: true, Reason: ReasonRoleMatched}
	}
	return Decision{Reason: ReasonInsufficientPrivilege}
}

// Err converts a denial into a Forbidden error. It returns nil when the
// decision allows.
func (d Decision) Err() error {
	switch {
	case d.Allowed:
		return nil
	case d.Reason == ReasonNoRoles:
		return apperr.Forbidden("no roles assigned")
	default:
		return apperr.Forbidden("insufficient privileges")
	}
}

// Role lists used by the routes.
var (
	Managers        = []domain.Role{domain.RoleOwner, domain.RoleAdmin}
	KitchenStaff    = []domain.Role{domain.RoleOwner, domain.RoleAdmin, domain.RoleBaker}
	SalesStaff      = []domain.Role{domain.RoleOwner, domain.RoleAdmin, domain.RoleCashier}
	OwnersOnly      = []domain.Role{domain.RoleOwner}
	GlobalOperators = []domain.Role{domain.RoleSuperAdmin}
)
