package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/security/audit"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
)

// PendingRegistrations lists and expires registrations awaiting approval.
type PendingRegistrations interface {
	List(ctx context.Context) ([]*domain.PendingRegistration, error)
	PurgeExpired(ctx context.Context) (int64, error)
}

// UserService manages the members of a tenant. Users live in the global
// tables, so authority is checked against the actor's tenant here rather
// than by namespace binding.
type UserService struct {
	users   domain.UserRepository
	tenants domain.TenantRepository
	pending PendingRegistrations
	hasher  *auth.PasswordHasher
	audit   *audit.Logger
	logger  *slog.Logger
}

func NewUserService(users domain.UserRepository, tenants domain.TenantRepository, pending PendingRegistrations, hasher *auth.PasswordHasher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		users:   users,
		tenants: tenants,
		pending: pending,
		hasher:  hasher,
		audit:   audit.NewLogger(logger),
		logger:  logger,
	}
}

// StaffInput describes a new member of the actor's tenant.
type StaffInput struct {
	Username  string   `json:"username"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Roles     []string `json:"roles"`
}

// UserPatch holds the fields a user update may change. Nil fields are kept.
type UserPatch struct {
	Email     *string  `json:"email"`
	FirstName *string  `json:"firstName"`
	LastName  *string  `json:"lastName"`
	Roles     []string `json:"roles"`
}

func parseStaffRoles(names []string) (domain.RoleSet, error) {
	if len(names) == 0 {
		return nil, apperr.BadRequest("at least one role is required")
	}
	roles, err := domain.ParseRoles(names)
	if err != nil {
		return nil, apperr.BadRequest("%v", err)
	}
	return roles, nil
}

func hasPrivileged(roles domain.RoleSet) bool {
	for _, r := range roles {
		if r.IsPrivileged() {
			return true
		}
	}
	return false
}

// AddStaff creates a user in the actor's tenant. Owners and Admins may not
// hand out the Store Owner or Super Admin roles.
func (s *UserService) AddStaff(ctx context.Context, actor domain.Identity, in StaffInput) (*domain.User, error) {
	if actor.TenantID == 0 {
		return nil, apperr.BadRequest("staff can only be added within a tenant")
	}
	if !actor.CanManageTenant(actor.TenantID) {
		return nil, apperr.Forbidden("insufficient privileges")
	}

	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if in.Username == "" || in.Email == "" {
		return nil, apperr.BadRequest("username and email are required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.BadRequest("email is invalid")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	roles, err := parseStaffRoles(in.Roles)
	if err != nil {
		return nil, err
	}
	if hasPrivileged(roles) && !actor.IsGlobal() {
		return nil, apperr.Forbidden("only a super admin may grant the Store Owner or Super Admin role")
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("username or email already registered")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("failed to add staff", err)
	}
	tenantID := actor.TenantID
	user := &domain.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		TenantID:     &tenantID,
		Namespace:    actor.Namespace,
		IsApproved:   true,
	}
	if err := s.users.CreateWithRoles(ctx, user, roles); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, audit.Entry{
		Actor: actor, Action: "add_staff", Resource: "user",
		ResourceID: fmt.Sprintf("%d", user.ID), Outcome: "success",
		Detail: strings.Join(roles.Strings(), ","),
	})
	return user, nil
}

// ListUsers returns the members of a tenant. Tenant actors always see their
// own tenant; a global actor names the tenant.
func (s *UserService) ListUsers(ctx context.Context, actor domain.Identity, tenantID int64) ([]*domain.User, error) {
	if !actor.IsGlobal() {
		tenantID = actor.TenantID
	}
	if tenantID == 0 {
		return nil, apperr.BadRequest("tenantId is required")
	}
	if !actor.CanManageTenant(tenantID) {
		return nil, apperr.Forbidden("insufficient privileges")
	}
	return s.users.ListByTenant(ctx, tenantID)
}

// load fetches a user the actor may see: itself, a member of a tenant the
// actor administers, or anyone for a global actor.
func (s *UserService) load(ctx context.Context, actor domain.Identity, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.UserID == id || actor.IsGlobal() {
		return user, nil
	}
	if user.TenantID == nil || !actor.CanManageTenant(*user.TenantID) {
		return nil, apperr.Forbidden("user belongs to another tenant")
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, actor domain.Identity, id int64) (*domain.User, error) {
	return s.load(ctx, actor, id)
}

// UpdateUser changes profile fields. Roles in a patch from a non-admin are
// ignored; a role change an admin may not make rejects the whole update.
func (s *UserService) UpdateUser(ctx context.Context, actor domain.Identity, id int64, patch UserPatch) (*domain.User, error) {
	user, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var roles domain.RoleSet
	if len(patch.Roles) > 0 {
		isAdmin := actor.IsGlobal() || (user.TenantID != nil && actor.CanManageTenant(*user.TenantID))
		if isAdmin {
			if roles, err = parseStaffRoles(patch.Roles); err != nil {
				return nil, err
			}
			if err := authorizeRoleChange(actor, user, roles); err != nil {
				return nil, err
			}
		} else {
			s.logger.Info("ignoring role change from non-admin",
				slog.Int64("actor_id", actor.UserID),
				slog.Int64("user_id", id),
			)
		}
	}

	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, apperr.BadRequest("email is invalid")
		}
		user.Email = email
	}
	if patch.FirstName != nil {
		user.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		user.LastName = strings.TrimSpace(*patch.LastName)
	}
	if err := s.users.UpdateProfile(ctx, user); err != nil {
		return nil, err
	}
	if roles != nil {
		return s.applyRoles(ctx, actor, user, roles)
	}
	return user, nil
}

// UpdateRoles replaces a user's roles. A tenant's Store Owner may manage
// its members; only a Super Admin may grant, or change the roles of
// someone holding, Store Owner or Super Admin.
func (s *UserService) UpdateRoles(ctx context.Context, actor domain.Identity, id int64, names []string) (*domain.User, error) {
	roles, err := parseStaffRoles(names)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeRoleChange(actor, user, roles); err != nil {
		return nil, err
	}
	return s.applyRoles(ctx, actor, user, roles)
}

func authorizeRoleChange(actor domain.Identity, user *domain.User, roles domain.RoleSet) error {
	if actor.IsGlobal() {
		return nil
	}
	sameTenant := user.TenantID != nil && actor.TenantID == *user.TenantID
	if !sameTenant || !actor.Roles.Has(domain.RoleOwner) {
		return apperr.Forbidden("only the store owner may change roles")
	}
	if hasPrivileged(roles) || hasPrivileged(user.Roles) {
		return apperr.Forbidden("only a super admin may grant or modify the Store Owner or Super Admin role")
	}
	return nil
}

func (s *UserService) applyRoles(ctx context.Context, actor domain.Identity, user *domain.User, roles domain.RoleSet) (*domain.User, error) {
	if err := s.users.ReplaceRoles(ctx, user.ID, roles); err != nil {
		return nil, err
	}
	user.Roles = roles

	s.audit.Record(ctx, audit.Entry{
		Actor: actor, Action: "update_roles", Resource: "user",
		ResourceID: fmt.Sprintf("%d", user.ID), Outcome: "success",
		Detail: strings.Join(roles.Strings(), ","),
	})
	return user, nil
}

// DeleteUser removes a user. Nobody may delete themselves, and Store
// Owners and Super Admins can only be deleted by a Super Admin.
func (s *UserService) DeleteUser(ctx context.Context, actor domain.Identity, id int64) error {
	if actor.UserID == id {
		return apperr.Forbidden("you cannot delete your own account")
	}
	user, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if hasPrivileged(user.Roles) && !actor.IsGlobal() {
		return apperr.Forbidden("only a super admin may delete a store owner or super admin")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.audit.Record(ctx, audit.Entry{
		Actor: actor, Action: "delete_user", Resource: "user",
		ResourceID: fmt.Sprintf("%d", id), Outcome: "success",
	})
	return nil
}

func (s *UserService) ListTenants(ctx context.Context, actor domain.Identity) ([]*domain.Tenant, error) {
	if !actor.IsGlobal() {
		return nil, apperr.Forbidden("insufficient privileges")
	}
	return s.tenants.List(ctx)
}

func (s *UserService) ListPendingRegistrations(ctx context.Context, actor domain.Identity) ([]*domain.PendingRegistration, error) {
	if !actor.IsGlobal() {
		return nil, apperr.Forbidden("insufficient privileges")
	}
	return s.pending.List(ctx)
}
