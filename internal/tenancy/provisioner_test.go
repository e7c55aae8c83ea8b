package tenancy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
)

var owner = OwnerCandidate{
	Username:     "alice",
	Email:        "alice@example.com",
	PasswordHash: "$2a$10$hash",
	FirstName:    "Alice",
	LastName:     "Baker",
}

func newTestProvisioner(t *testing.T) (*Provisioner, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	p := NewProvisioner(db, nil)
	fixed := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }
	return p, mock
}

func expectAvailable(mock sqlmock.Sqlmock) {
	mock.ExpectQuery("FROM public.tenants WHERE lower").
		WithArgs("Acme Bakery").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("FROM public.users WHERE username").
		WithArgs("alice", "alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
}

func expectTenantCreation(mock sqlmock.Sqlmock, userID int64, failAtDDL int) {
	now := time.Now()
	mock.ExpectQuery("INSERT INTO public.tenants").
		WithArgs("Acme Bakery", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(7, now))
	mock.ExpectExec("UPDATE public.users SET tenant_id").
		WithArgs(int64(7), userID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO public.user_roles").
		WithArgs(userID, "Store Owner").
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectExec(`CREATE SCHEMA "bakery_acme_bakery_\d+_[0-9a-f]{6}"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	for i := 1; i < len(namespaceSchema); i++ {
		e := mock.ExpectExec("CREATE")
		if i == failAtDDL {
			e.WillReturnError(errors.New("permission denied for database"))
			return
		}
		e.WillReturnResult(sqlmock.NewResult(0, 0))
	}
}

func TestProvisionCreatesOwnerTenantAndNamespace(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	expectAvailable(mock)
	mock.ExpectQuery("INSERT INTO public.users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, time.Now(), time.Now()))
	expectTenantCreation(mock, 1, -1)
	mock.ExpectCommit()

	res, err := p.Provision(context.Background(), "Acme Bakery", owner)
	require.NoError(t, err)

	assert.Equal(t, int64(7), res.TenantID)
	assert.Equal(t, "Acme Bakery", res.TenantName)
	assert.Regexp(t, `^bakery_acme_bakery_\d+_[0-9a-f]{6}$`, res.Namespace.String())
	assert.Equal(t, int64(1), res.Owner.ID)
	require.NotNil(t, res.Owner.TenantID)
	assert.Equal(t, int64(7), *res.Owner.TenantID)
	assert.True(t, res.Owner.Roles.Has(domain.RoleOwner))
	assert.True(t, res.Owner.IsApproved)
	assert.Equal(t, res.Namespace, res.Owner.Namespace)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionDuplicateNameConflicts(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM public.tenants WHERE lower").
		WithArgs("Acme Bakery").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := p.Provision(context.Background(), "Acme Bakery", owner)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionDuplicateUserConflicts(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM public.tenants WHERE lower").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("FROM public.users WHERE username").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := p.Provision(context.Background(), "Acme Bakery", owner)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProvisionDDLFailureRollsBackEverything(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	expectAvailable(mock)
	mock.ExpectQuery("INSERT INTO public.users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(1, time.Now(), time.Now()))
	expectTenantCreation(mock, 1, 5)
	mock.ExpectRollback()

	res, err := p.Provision(context.Background(), "Acme Bakery", owner)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, "failed to provision tenant namespace", apperr.PublicMessage(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeferStoresPendingRegistration(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	expectAvailable(mock)
	mock.ExpectQuery("INSERT INTO public.users").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(4, time.Now(), time.Now()))
	mock.ExpectExec("INSERT INTO public.pending_registrations").
		WithArgs("deadbeef", int64(4), "Acme Bakery", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	pending, err := p.Defer(context.Background(), "Acme Bakery", owner, "deadbeef", 72*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pending.UserID)
	assert.Equal(t, "Acme Bakery", pending.BusinessName)
	assert.Equal(t, p.now().Add(72*time.Hour), pending.ExpiresAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveUnknownTokenIsNotFound(t *testing.T) {
	p, mock := newTestProvisioner(t)

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM public.pending_registrations").
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "business_name", "expires_at", "created_at"}))
	mock.ExpectRollback()

	_, err := p.Approve(context.Background(), "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApproveProvisionsPendingTenant(t *testing.T) {
	p, mock := newTestProvisioner(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("DELETE FROM public.pending_registrations").
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "business_name", "expires_at", "created_at"}).
			AddRow(4, "Acme Bakery", now.Add(time.Hour), now))
	mock.ExpectQuery("FROM public.users u").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "username", "email", "password_hash", "first_name", "last_name",
			"tenant_id", "namespace", "is_approved", "created_at", "updated_at", "roles",
		}).AddRow(4, "alice", "alice@example.com", "hash", "Alice", "Baker", nil, nil, false, now, now, "{}"))
	expectTenantCreation(mock, 4, -1)
	mock.ExpectCommit()

	res, err := p.Approve(context.Background(), "deadbeef")
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.TenantID)
	assert.Equal(t, int64(4), res.Owner.ID)
	assert.True(t, res.Owner.IsApproved)
	assert.Equal(t, domain.RoleSet{domain.RoleOwner}, res.Owner.Roles)

	require.NoError(t, mock.ExpectationsWereMet())
}
