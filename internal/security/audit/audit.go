package audit

import (
	"context"
	"log/slog"

	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/httpx"
)

// Entry is one security-relevant action.
type Entry struct {
	Actor      domain.Identity
	Action     string
	Resource   string
	ResourceID string
	Outcome    string
	Detail     string
}

// Logger writes audit entries to a dedicated slog logger.
type Logger struct {
	logger *slog.Logger
}

func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger.With(slog.String("log_type", "audit"))}
}

func (al *Logger) Record(ctx context.Context, e Entry) {
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", e.Action),
		slog.String("resource", e.Resource),
		slog.String("resource_id", e.ResourceID),
		slog.Int64("tenant_id", e.Actor.TenantID),
		slog.Int64("user_id", e.Actor.UserID),
		slog.String("username", e.Actor.Username),
		slog.String("outcome", e.Outcome),
		slog.String("detail", e.Detail),
		slog.String("request_id", httpx.RequestIDFrom(ctx)),
	)
}

// Denied records a refused request. reason tells a caller without roles
// apart from one with the wrong roles.
func (al *Logger) Denied(ctx context.Context, actor domain.Identity, route, reason string) {
	al.Record(ctx, Entry{Actor: actor, Action: "access_denied", Resource: route, Outcome: "denied", Detail: reason})
}

// Provisioned records a tenant provisioning attempt.
func (al *Logger) Provisioned(ctx context.Context, actor domain.Identity, namespace, outcome, detail string) {
	al.Record(ctx, Entry{Actor: actor, Action: "provision", Resource: "tenant", ResourceID: namespace, Outcome: outcome, Detail: detail})
}
