package tenancy

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
)

func mustNamespace(t *testing.T, s string) domain.Namespace {
	t.Helper()
	ns, err := domain.ParseNamespace(s)
	require.NoError(t, err)
	return ns
}

func tenantIdentity(t *testing.T, ns string) domain.Identity {
	return domain.Identity{
		UserID:    1,
		Username:  "alice",
		TenantID:  7,
		Namespace: mustNamespace(t, ns),
		Roles:     domain.RoleSet{domain.RoleOwner},
	}
}

func TestBindSelectsTenantNamespaceAndResetsOnRelease(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "bakery_acme_1"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_schema()`)).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("bakery_acme_1"))
	mock.ExpectQuery("SELECT id, name FROM products").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "Bread"))
	mock.ExpectExec(regexp.QuoteMeta(resetStatement)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := NewRouter(db, nil)
	sess, err := router.Bind(context.Background(), tenantIdentity(t, "bakery_acme_1"))
	require.NoError(t, err)
	assert.Equal(t, "bakery_acme_1", sess.Namespace().String())
	assert.Equal(t, int64(7), sess.Identity().TenantID)

	var (
		id   int64
		name string
	)
	require.NoError(t, sess.Querier().QueryRowContext(context.Background(), "SELECT id, name FROM products").Scan(&id, &name))
	assert.Equal(t, "Bread", name)

	sess.Release()
	sess.Release()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindGlobalIdentityUsesNeutralNamespace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "public"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_schema()`)).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("public"))
	mock.ExpectExec(regexp.QuoteMeta(resetStatement)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	router := NewRouter(db, nil)
	sess, err := router.Bind(context.Background(), domain.Identity{
		UserID: 99,
		Roles:  domain.RoleSet{domain.RoleSuperAdmin},
	})
	require.NoError(t, err)
	assert.True(t, sess.Namespace().IsPublic())
	sess.Release()

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindWithoutNamespaceIsForbidden(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	router := NewRouter(db, nil)
	_, err = router.Bind(context.Background(), domain.Identity{
		UserID: 3,
		Roles:  domain.RoleSet{domain.RoleBaker},
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindDroppedNamespaceIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`SET search_path TO "bakery_gone_1"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT current_schema()`)).
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow(nil))

	router := NewRouter(db, nil)
	sess, err := router.Bind(context.Background(), tenantIdentity(t, "bakery_gone_1"))
	require.Error(t, err)
	assert.Nil(t, sess)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
	assert.Equal(t, "tenant namespace unavailable", apperr.PublicMessage(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBindSetFailureIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET search_path").WillReturnError(errors.New("server closed the connection"))

	router := NewRouter(db, nil)
	_, err = router.Bind(context.Background(), tenantIdentity(t, "bakery_acme_1"))
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))

	require.NoError(t, mock.ExpectationsWereMet())
}

func releaseCount(t *testing.T, outcome string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "kishkumen_namespace_releases_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestReleaseDiscardsConnectionWhenResetFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET search_path").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_schema").
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("bakery_acme_1"))
	mock.ExpectExec(regexp.QuoteMeta(resetStatement)).WillReturnError(errors.New("connection reset by peer"))
	mock.ExpectClose()

	router := NewRouter(db, nil)
	sess, err := router.Bind(context.Background(), tenantIdentity(t, "bakery_acme_1"))
	require.NoError(t, err)
	assert.Equal(t, 1, db.Stats().OpenConnections)

	discarded := releaseCount(t, "discarded")
	reset := releaseCount(t, "reset")
	sess.Release()
	sess.Release()

	assert.Equal(t, discarded+1, releaseCount(t, "discarded"))
	assert.Equal(t, reset, releaseCount(t, "reset"))
	assert.Equal(t, 0, db.Stats().OpenConnections)
	assert.Equal(t, 0, db.Stats().Idle)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionInTxRunsOnBoundConnection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SET search_path").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT current_schema").
		WillReturnRows(sqlmock.NewRows([]string{"current_schema"}).AddRow("bakery_acme_1"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE ingredients").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()
	mock.ExpectExec(regexp.QuoteMeta(resetStatement)).WillReturnResult(sqlmock.NewResult(0, 0))

	router := NewRouter(db, nil)
	sess, err := router.Bind(context.Background(), tenantIdentity(t, "bakery_acme_1"))
	require.NoError(t, err)
	defer sess.Release()

	boom := apperr.NotFound("ingredient not found")
	err = sess.InTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(context.Background(), "UPDATE ingredients SET refill_amount = 0"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sess.Release()
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScopeContext(t *testing.T) {
	_, ok := ScopeFrom(context.Background())
	assert.False(t, ok)

	s := &Session{ns: mustNamespace(t, "bakery_acme_1")}
	ctx := WithScope(context.Background(), s)
	got, ok := ScopeFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "bakery_acme_1", got.Namespace().String())
}

func TestNamespaceStatementsAreQualified(t *testing.T) {
	ns := mustNamespace(t, "bakery_acme_1")
	stmts := namespaceStatements(ns)
	require.Len(t, stmts, len(namespaceSchema))

	assert.Equal(t, `CREATE SCHEMA "bakery_acme_1"`, stmts[0])
	for _, stmt := range stmts[1:] {
		assert.NotContains(t, stmt, "{ns}")
		if strings.HasPrefix(stmt, "CREATE TABLE") {
			assert.True(t, strings.HasPrefix(stmt, `CREATE TABLE "bakery_acme_1".`), stmt)
		}
		for _, line := range strings.Split(stmt, "\n") {
			if i := strings.Index(line, "REFERENCES "); i >= 0 {
				assert.Contains(t, line[i:], `"bakery_acme_1".`, line)
			}
		}
	}
}

func TestMaterializeRefusesNeutralNamespace(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	assert.Error(t, materialize(context.Background(), db, domain.PublicNamespace))
	assert.Error(t, materialize(context.Background(), db, domain.Namespace{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
