package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/nephi-asha/kishkumen/internal/httpx"
)

// RequireJSON rejects POST, PUT and PATCH requests whose body is not JSON.
func RequireJSON(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost && r.Method != http.MethodPut && r.Method != http.MethodPatch {
				next.ServeHTTP(w, r)
				return
			}

			// Bodiless actions such as approve and rollover are fine.
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if !strings.Contains(contentType, "application/json") {
				log.Warn("invalid content type",
					slog.String("path", r.URL.Path),
					slog.String("content_type", contentType),
					slog.String("method", r.Method),
				)
				httpx.JSON(w, http.StatusUnsupportedMediaType, httpx.ErrorResponse{Error: "Content-Type must be application/json"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
