package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

// mockScope is a bound namespace backed by sqlmock.
type mockScope struct {
	db *sql.DB
	ns domain.Namespace
	id domain.Identity
}

func (s *mockScope) Namespace() domain.Namespace { return s.ns }
func (s *mockScope) Identity() domain.Identity { return s.id }
func (s *mockScope) Querier() database.DBTX { return s.db }
func (s *mockScope) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, s.db, fn)
}

func newScope(t *testing.T, roles ...domain.Role) (*mockScope, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ns, err := domain.ParseNamespace("bakery_acme_1")
	require.NoError(t, err)
	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleOwner}
	}
	return &mockScope{
		db: db,
		ns: ns,
		id: domain.Identity{UserID: 1, Username: "alice", TenantID: 7, Namespace: ns, Roles: roles},
	}, mock
}
