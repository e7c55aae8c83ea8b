package service

import (
	"context"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/infrastructure/logger"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
)

type memTenantRepo struct{ tenants []*domain.Tenant }

func (m *memTenantRepo) GetByID(_ context.Context, id int64) (*domain.Tenant, error) {
	for _, t := range m.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, apperr.NotFound("tenant not found")
}
func (m *memTenantRepo) List(context.Context) ([]*domain.Tenant, error) { return m.tenants, nil }

type memPending struct{ regs []*domain.PendingRegistration }

func (m *memPending) List(context.Context) ([]*domain.PendingRegistration, error) { return m.regs, nil }
func (m *memPending) PurgeExpired(context.Context) (int64, error)               { return 0, nil }

type userFixture struct {
	svc   *UserService
	repo  *memUserRepo
	owner domain.Identity
	admin domain.Identity
	baker *domain.User
}

func newUserFixture(t *testing.T) *userFixture {
	t.Helper()
	repo := newMemUserRepo()
	ns, _ := domain.ParseNamespace("bakery_acme_1")
	tenantID := int64(7)

	add := func(name string, roles ...domain.Role) *domain.User {
		u := &domain.User{Username: name, Email: name + "@example.com", TenantID: &tenantID, Namespace: ns, IsApproved: true}
		if err := repo.CreateWithRoles(context.Background(), u, roles); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
		return u
	}
	owner := add("alice", domain.RoleOwner)
	admin := add("bob", domain.RoleAdmin)
	baker := add("carol", domain.RoleBaker)

	svc := NewUserService(repo, &memTenantRepo{}, &memPending{}, auth.NewPasswordHasher(bcrypt.MinCost), logger.Discard())
	return &userFixture{svc: svc, repo: repo, owner: owner.Identity(), admin: admin.Identity(), baker: baker}
}

func TestAddStaffJoinsActorTenant(t *testing.T) {
	f := newUserFixture(t)

	u, err := f.svc.AddStaff(context.Background(), f.admin, StaffInput{
		Username: "dave", Email: "dave@example.com", Password: "secret1",
		FirstName: "Dave", LastName: "Till", Roles: []string{"Cashier"},
	})
	if err != nil {
		t.Fatalf("add staff: %v", err)
	}
	if u.TenantID == nil || *u.TenantID != 7 || u.Namespace != f.owner.Namespace {
		t.Fatalf("staff must join the actor's tenant, got %+v", u)
	}
	if !u.Roles.Has(domain.RoleCashier) {
		t.Fatalf("unexpected roles %v", u.Roles)
	}
}

func TestAddStaffCannotGrantPrivilegedRoles(t *testing.T) {
	f := newUserFixture(t)

	for _, role := range []string{"Store Owner", "Super Admin"} {
		_, err := f.svc.AddStaff(context.Background(), f.owner, StaffInput{
			Username: "eve", Email: "eve@example.com", Password: "secret1", Roles: []string{role},
		})
		if apperr.KindOf(err) != apperr.KindForbidden {
			t.Fatalf("granting %s: expected forbidden, got %v", role, err)
		}
	}
}

func TestAddStaffRejectsDuplicatesAndUnknownRoles(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddStaff(ctx, f.owner, StaffInput{Username: "carol", Email: "new@example.com", Password: "secret1", Roles: []string{"Baker"}})
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	_, err = f.svc.AddStaff(ctx, f.owner, StaffInput{Username: "frank", Email: "frank@example.com", Password: "secret1", Roles: []string{"Janitor"}})
	if apperr.KindOf(err) != apperr.KindBadRequest {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestUpdateRolesOnlyByOwner(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	if _, err := f.svc.UpdateRoles(ctx, f.admin, f.baker.ID, []string{"Cashier"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("admin must not change roles, got %v", err)
	}
	u, err := f.svc.UpdateRoles(ctx, f.owner, f.baker.ID, []string{"Baker", "Cashier"})
	if err != nil {
		t.Fatalf("owner update roles: %v", err)
	}
	if len(u.Roles) != 2 {
		t.Fatalf("unexpected roles %v", u.Roles)
	}
	if _, err := f.svc.UpdateRoles(ctx, f.owner, f.baker.ID, []string{"Store Owner"}); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("owner must not grant store owner, got %v", err)
	}
}

func TestUpdateUserIgnoresRolesFromNonAdmin(t *testing.T) {
	f := newUserFixture(t)
	name := "Caroline"

	u, err := f.svc.UpdateUser(context.Background(), f.baker.Identity(), f.baker.ID, UserPatch{
		FirstName: &name,
		Roles:     []string{"Admin"},
	})
	if err != nil {
		t.Fatalf("self update: %v", err)
	}
	if u.FirstName != "Caroline" || u.Roles.Has(domain.RoleAdmin) {
		t.Fatalf("roles must be ignored for a non-admin, got %+v", u)
	}
}

func TestDeleteUserRules(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	if err := f.svc.DeleteUser(ctx, f.admin, f.admin.UserID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("self delete must be forbidden, got %v", err)
	}
	if err := f.svc.DeleteUser(ctx, f.admin, f.owner.UserID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("deleting the owner must be forbidden, got %v", err)
	}
	if err := f.svc.DeleteUser(ctx, f.baker.Identity(), f.admin.UserID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("a baker must not delete users, got %v", err)
	}
	if err := f.svc.DeleteUser(ctx, f.owner, f.baker.ID); err != nil {
		t.Fatalf("owner delete baker: %v", err)
	}
}

func TestOtherTenantIsInvisible(t *testing.T) {
	f := newUserFixture(t)
	ns, _ := domain.ParseNamespace("bakery_other_2")
	outsider := domain.Identity{UserID: 99, TenantID: 8, Namespace: ns, Roles: domain.RoleSet{domain.RoleOwner}}

	if _, err := f.svc.GetUser(context.Background(), outsider, f.baker.ID); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden across tenants, got %v", err)
	}
	users, err := f.svc.ListUsers(context.Background(), outsider, 7)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("a tenant actor must only see its own tenant, got %d users", len(users))
	}
}

func TestOperatorViewsRequireGlobalRole(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ListTenants(ctx, f.owner); apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	root := domain.Identity{UserID: 100, Roles: domain.RoleSet{domain.RoleSuperAdmin}}
	if _, err := f.svc.ListPendingRegistrations(ctx, root); err != nil {
		t.Fatalf("operator list pending: %v", err)
	}
}

func TestUpdateUserRejectedRoleChangeSavesNothing(t *testing.T) {
	f := newUserFixture(t)
	ctx := context.Background()
	email := "carol.new@example.com"

	_, err := f.svc.UpdateUser(ctx, f.admin, f.baker.ID, UserPatch{
		Email: &email,
		Roles: []string{"Cashier"},
	})
	if apperr.KindOf(err) != apperr.KindForbidden {
		t.Fatalf("an admin must not change roles, got %v", err)
	}
	stored, err := f.repo.GetByID(ctx, f.baker.ID)
	if err != nil {
		t.Fatalf("get baker: %v", err)
	}
	if stored.Email != "carol@example.com" {
		t.Fatalf("profile must be unchanged after a rejected update, got %q", stored.Email)
	}
	if !stored.Roles.Has(domain.RoleBaker) || stored.Roles.Has(domain.RoleCashier) {
		t.Fatalf("roles must be unchanged, got %v", stored.Roles)
	}

	u, err := f.svc.UpdateUser(ctx, f.owner, f.baker.ID, UserPatch{
		Email: &email,
		Roles: []string{"Cashier"},
	})
	if err != nil {
		t.Fatalf("owner update: %v", err)
	}
	if u.Email != email || !u.Roles.Has(domain.RoleCashier) {
		t.Fatalf("owner update must apply both, got %+v", u)
	}
}
