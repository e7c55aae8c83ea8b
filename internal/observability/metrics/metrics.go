package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kishkumen_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	provisionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kishkumen_provision_duration_seconds",
		Help:    "Duration of tenant provisioning attempts",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode", "result"})

	namespaceBinds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_namespace_binds_total",
		Help: "Namespace bind attempts by scope and result",
	}, []string{"scope", "result"})

	namespaceReleases = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_namespace_releases_total",
		Help: "Connection releases by outcome (reset or discarded)",
	}, []string{"outcome"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kishkumen_active_namespace_sessions",
		Help: "Connections currently checked out and bound to a namespace",
	})

	workflowOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_workflow_outcomes_total",
		Help: "Business workflow executions by workflow and result",
	}, []string{"workflow", "result"})

	reconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_reconcile_runs_total",
		Help: "Background reconciliation passes per tenant by result",
	}, []string{"result"})

	authDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kishkumen_auth_denials_total",
		Help: "Rejected requests by reason",
	}, []string{"reason"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveProvision records the duration of a provisioning attempt.
// mode is "immediate" or "approval".
func ObserveProvision(mode, result string, duration time.Duration) {
	provisionDuration.WithLabelValues(mode, result).Observe(duration.Seconds())
}

// ObserveNamespaceBind counts a bind attempt. scope is "tenant" or "global".
func ObserveNamespaceBind(scope, result string) {
	namespaceBinds.WithLabelValues(scope, result).Inc()
}

// ObserveRelease counts a connection release.
func ObserveRelease(outcome string) {
	namespaceReleases.WithLabelValues(outcome).Inc()
}

// SessionOpened increments the bound session gauge.
func SessionOpened() {
	activeSessions.Inc()
}

// SessionClosed decrements the bound session gauge. A gauge that keeps
// growing points at a handler that never releases its session.
func SessionClosed() {
	activeSessions.Dec()
}

// ObserveWorkflow counts one workflow execution.
func ObserveWorkflow(workflow string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	workflowOutcomes.WithLabelValues(workflow, result).Inc()
}

// ObserveReconcile counts a per-tenant reconciliation pass.
func ObserveReconcile(result string) {
	reconcileRuns.WithLabelValues(result).Inc()
}

// ObserveAuthDenial counts a rejected request.
func ObserveAuthDenial(reason string) {
	authDenials.WithLabelValues(reason).Inc()
}
