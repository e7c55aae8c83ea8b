// Package tenancy binds requests to tenant namespaces and provisions new
// ones.
//
// A namespace is selected with SET search_path, which is a property of the
// physical connection. Every bound request therefore checks out its own
// connection from the pool, keeps it for the whole request, and resets it to
// the neutral namespace before handing it back. A connection that cannot be
// reset is discarded instead of being returned.
package tenancy

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/observability/tracing"
	"github.com/nephi-asha/kishkumen/pkg/database"
)

const (
	resetStatement = `SET search_path TO public`
	releaseTimeout = 5 * time.Second
)

// Scope is a request's handle on its bound namespace. Everything a workflow
// reads or writes goes through a Scope.
type Scope interface {
	Namespace() domain.Namespace
	Identity() domain.Identity
	Querier() database.DBTX
	InTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// Router checks out connections and binds them to namespaces.
type Router struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRouter creates a router over the shared pool.
func NewRouter(db *sql.DB, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{db: db, logger: logger}
}

// Bind checks out a connection and selects the namespace for id. Global
// identities get the neutral namespace. The caller must Release the
// returned session.
//
// An identity with no namespace and no global role is Forbidden. Failing to
// select the namespace, for instance because it was dropped, is
// Unavailable; the router never falls back to the neutral namespace.
func (r *Router) Bind(ctx context.Context, id domain.Identity) (*Session, error) {
	ctx, span := tracing.Tracer().Start(ctx, "tenancy.Bind")
	defer span.End()

	scope := "tenant"
	ns := id.Namespace
	if id.IsGlobal() {
		scope = "global"
		ns = domain.PublicNamespace
	} else if ns.IsZero() {
		metrics.ObserveNamespaceBind(scope, "forbidden")
		span.SetStatus(codes.Error, "no namespace")
		return nil, apperr.Forbidden("no tenant is associated with this account")
	}
	span.SetAttributes(
		attribute.String("tenancy.namespace", ns.String()),
		attribute.Int64("tenancy.tenant_id", id.TenantID),
	)

	conn, err := r.db.Conn(ctx)
	if err != nil {
		metrics.ObserveNamespaceBind(scope, "unavailable")
		span.RecordError(err)
		return nil, apperr.Unavailable("database unavailable", err)
	}

	if err := selectNamespace(ctx, conn, ns); err != nil {
		discard(conn)
		metrics.ObserveNamespaceBind(scope, "unavailable")
		span.RecordError(err)
		span.SetStatus(codes.Error, "namespace selection failed")
		r.logger.Error("failed to bind namespace",
			slog.String("namespace", ns.String()),
			slog.Int64("tenant_id", id.TenantID),
			slog.Int64("user_id", id.UserID),
			slog.String("error", err.Error()),
		)
		return nil, apperr.Unavailable("tenant namespace unavailable", err)
	}

	metrics.ObserveNamespaceBind(scope, "bound")
	metrics.SessionOpened()
	return &Session{conn: conn, ns: ns, identity: id, logger: r.logger}, nil
}

// selectNamespace points the connection at ns and verifies the server
// resolved it. SET search_path accepts names of missing schemas silently,
// so current_schema() is the only reliable check.
func selectNamespace(ctx context.Context, conn *sql.Conn, ns domain.Namespace) error {
	if _, err := conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(ns.String())); err != nil {
		return fmt.Errorf("set search_path: %w", err)
	}
	var current sql.NullString
	if err := conn.QueryRowContext(ctx, "SELECT current_schema()").Scan(&current); err != nil {
		return fmt.Errorf("verify search_path: %w", err)
	}
	if !current.Valid || current.String != ns.String() {
		return fmt.Errorf("namespace %q does not exist", ns)
	}
	return nil
}

// discard closes the physical connection instead of returning it to the
// pool.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}

// Session owns one pooled connection bound to a namespace for the duration
// of a request. It is not safe for concurrent use.
type Session struct {
	conn     *sql.Conn
	ns       domain.Namespace
	identity domain.Identity
	logger   *slog.Logger
	once     sync.Once
}

func (s *Session) Namespace() domain.Namespace { return s.ns }

func (s *Session) Identity() domain.Identity { return s.identity }

// Querier runs statements on the bound connection.
func (s *Session) Querier() database.DBTX { return s.conn }

// InTx runs fn in a transaction on the bound connection.
func (s *Session) InTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return database.WithTx(ctx, s.conn, fn)
}

// Release resets the connection to the neutral namespace and returns it to
// the pool, or discards it when the reset fails. It is idempotent and uses
// its own timeout so a cancelled request still gets its connection reset.
func (s *Session) Release() {
	s.once.Do(func() {
		defer metrics.SessionClosed()

		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := s.conn.ExecContext(ctx, resetStatement); err != nil {
			s.logger.Warn("discarding connection after failed namespace reset",
				slog.String("namespace", s.ns.String()),
				slog.String("error", err.Error()),
			)
			discard(s.conn)
			metrics.ObserveRelease("discarded")
			return
		}
		if err := s.conn.Close(); err != nil {
			s.logger.Warn("failed to return connection to pool", slog.String("error", err.Error()))
		}
		metrics.ObserveRelease("reset")
	})
}
