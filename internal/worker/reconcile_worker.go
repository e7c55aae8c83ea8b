// Package worker runs periodic maintenance across every tenant.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/reliability/retry"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

// Binder binds a namespace for an identity.
type Binder interface {
	Bind(ctx context.Context, id domain.Identity) (*tenancy.Session, error)
}

// Reconciler completes purchase requests whose refills have landed.
type Reconciler interface {
	Reconcile(ctx context.Context, sc tenancy.Scope) (int64, error)
}

// Purger removes expired registrations.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// ReconcileWorker periodically reconciles purchase requests in every tenant
// namespace and purges registrations that were never approved.
type ReconcileWorker struct {
	tenants   domain.TenantRepository
	router    Binder
	purchases Reconciler
	pending   Purger
	logger    *slog.Logger
	interval  time.Duration
	retry     *retry.Config
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(
	tenants domain.TenantRepository,
	router Binder,
	purchases Reconciler,
	pending Purger,
	logger *slog.Logger,
	interval time.Duration,
) *ReconcileWorker {
	cfg := retry.DefaultConfig()
	cfg.Retryable = func(err error) bool { return apperr.KindOf(err) == apperr.KindUnavailable }
	return &ReconcileWorker{
		tenants:   tenants,
		router:    router,
		purchases: purchases,
		pending:   pending,
		logger:    logger,
		interval:  interval,
		retry:     cfg,
	}
}

// Start runs a pass every interval until ctx is done.
func (w *ReconcileWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("reconcile worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("reconcile worker stopped")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles every tenant and purges expired registrations. A
// tenant that fails is logged and skipped; the others still run.
func (w *ReconcileWorker) RunOnce(ctx context.Context) {
	tenants, err := w.tenants.List(ctx)
	if err != nil {
		w.logger.Error("failed to list tenants", slog.String("error", err.Error()))
		metrics.ObserveReconcile("error")
		return
	}

	var completed int64
	for _, t := range tenants {
		n, err := retry.Do(ctx, w.retry, w.logger, "reconcile "+t.Namespace.String(), func(ctx context.Context) (int64, error) {
			return w.reconcileTenant(ctx, t)
		})
		if err != nil {
			w.logger.Error("reconciliation failed",
				slog.Int64("tenant_id", t.ID),
				slog.String("namespace", t.Namespace.String()),
				slog.String("error", err.Error()),
			)
			metrics.ObserveReconcile("error")
			continue
		}
		metrics.ObserveReconcile("success")
		completed += n
	}

	purged, err := w.pending.PurgeExpired(ctx)
	if err != nil {
		w.logger.Error("failed to purge expired registrations", slog.String("error", err.Error()))
	}

	w.logger.Debug("reconcile pass finished",
		slog.Int("tenants", len(tenants)),
		slog.Int64("completed", completed),
		slog.Int64("purged", purged),
	)
}

func (w *ReconcileWorker) reconcileTenant(ctx context.Context, t *domain.Tenant) (int64, error) {
	sess, err := w.router.Bind(ctx, domain.Identity{
		TenantID:  t.ID,
		Namespace: t.Namespace,
		Roles:     domain.RoleSet{domain.RoleOwner},
	})
	if err != nil {
		return 0, err
	}
	defer sess.Release()

	return w.purchases.Reconcile(ctx, sess)
}
