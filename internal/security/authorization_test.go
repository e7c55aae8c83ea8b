package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name     string
		roles    domain.RoleSet
		required []domain.Role
		allowed  bool
		reason   Reason
	}{
		{"global passes anything", domain.RoleSet{domain.RoleSuperAdmin}, OwnersOnly, true, ReasonGlobalScope},
		{"matching role", domain.RoleSet{domain.RoleBaker}, KitchenStaff, true, ReasonRoleMatched},
		{"one of several roles", domain.RoleSet{domain.RoleCashier, domain.RoleBaker}, SalesStaff, true, ReasonRoleMatched},
		{"no roles", nil, KitchenStaff, false, ReasonNoRoles},
		{"no roles with open requirement", domain.RoleSet{}, nil, false, ReasonNoRoles},
		{"cashier on kitchen route", domain.RoleSet{domain.RoleCashier}, KitchenStaff, false, ReasonInsufficientPrivilege},
		{"admin on owner route", domain.RoleSet{domain.RoleAdmin}, OwnersOnly, false, ReasonInsufficientPrivilege},
		{"any role on open route", domain.RoleSet{domain.RoleCashier}, nil, true, ReasonRoleMatched},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(domain.Identity{UserID: 1, Roles: tt.roles}, tt.required...)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecisionErr(t *testing.T) {
	assert.NoError(t, Decision{Allowed: true, Reason: ReasonRoleMatched}.Err())

	err := Decision{Reason: ReasonNoRoles}.Err()
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "no roles assigned", apperr.PublicMessage(err))

	err = Decision{Reason: ReasonInsufficientPrivilege}.Err()
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	assert.Equal(t, "insufficient privileges", apperr.PublicMessage(err))
}
