package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/observability/metrics"
	"github.com/nephi-asha/kishkumen/internal/security"
	"github.com/nephi-asha/kishkumen/internal/security/audit"
	"github.com/nephi-asha/kishkumen/internal/security/auth"
	"github.com/nephi-asha/kishkumen/internal/security/ratelimit"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

type identityKey struct{}

// WithIdentity stores the verified identity in ctx.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(domain.Identity)
	return id, ok
}

// RequestID stamps every request with an id and logs its completion.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := uuid.NewString()
			w.Header().Set("X-Request-ID", reqID)

			ctx := httpx.WithRequestID(r.Context(), reqID)
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Authenticate verifies the bearer token. A missing or malformed header is
// 401; a token that fails verification is 403.
func Authenticate(tm *auth.TokenManager, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpx.Error(w, r, log, apperr.Unauthorized("access token required"))
				return
			}
			token, err := auth.ExtractToken(header)
			if err != nil {
				httpx.Error(w, r, log, apperr.Unauthorized("malformed authorization header"))
				return
			}
			claims, err := tm.Verify(token)
			if err != nil {
				log.Debug("token rejected", slog.String("error", err.Error()))
				httpx.Error(w, r, log, apperr.Forbidden("invalid or expired token"))
				return
			}
			id, err := claims.Identity()
			if err != nil {
				log.Warn("token carries invalid claims",
					slog.Int64("user_id", claims.UserID),
					slog.String("error", err.Error()),
				)
				httpx.Error(w, r, log, apperr.Forbidden("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// BindNamespace binds the request to the caller's namespace for its whole
// lifetime and releases the connection when the handler returns.
func BindNamespace(router *tenancy.Router, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				httpx.Error(w, r, log, apperr.Unauthorized("access token required"))
				return
			}
			sess, err := router.Bind(r.Context(), id)
			if err != nil {
				httpx.Error(w, r, log, err)
				return
			}
			defer sess.Release()

			next.ServeHTTP(w, r.WithContext(tenancy.WithScope(r.Context(), sess)))
		})
	}
}

// RequireRoles admits identities holding one of roles. Denials are logged,
// audited and counted by reason.
func RequireRoles(al *audit.Logger, log *slog.Logger, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				httpx.Error(w, r, log, apperr.Unauthorized("access token required"))
				return
			}
			decision := security.Authorize(id, roles...)
			if !decision.Allowed {
				route := r.Method + " " + routePattern(r)
				log.Warn("authorization denied",
					slog.String("reason", string(decision.Reason)),
					slog.Int64("user_id", id.UserID),
					slog.Int64("tenant_id", id.TenantID),
					slog.String("route", route),
				)
				metrics.ObserveAuthDenial(string(decision.Reason))
				al.Denied(r.Context(), id, route, string(decision.Reason))
				httpx.Error(w, r, log, decision.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit throttles per tenant; global identities are throttled per
// user.
func RateLimit(l ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if ok {
				key := "tenant:" + strconv.FormatInt(id.TenantID, 10)
				if id.TenantID == 0 {
					key = "user:" + strconv.FormatInt(id.UserID, 10)
				}
				if !l.Allow(r.Context(), key) {
					log.Warn("rate limit exceeded", slog.String("key", key))
					w.Header().Set("Retry-After", "60")
					httpx.JSON(w, http.StatusTooManyRequests, httpx.ErrorResponse{Error: "rate limit exceeded"})
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Audit records every mutating request with its outcome.
func Audit(al *audit.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			id, _ := IdentityFrom(r.Context())
			outcome := "success"
			if sw.status >= 400 {
				outcome = "failure"
			}
			al.Record(r.Context(), audit.Entry{
				Actor:      id,
				Action:     r.Method,
				Resource:   routePattern(r),
				ResourceID: chi.URLParam(r, "id"),
				Outcome:    outcome,
				Detail:     strconv.Itoa(sw.status),
			})
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
