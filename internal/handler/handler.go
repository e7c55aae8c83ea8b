// Package handler exposes the services over HTTP. Handlers decode input,
// call one service method and answer through httpx; authorization and
// namespace binding happen in middleware before a handler runs.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/domain"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/security/middleware"
	"github.com/nephi-asha/kishkumen/internal/tenancy"
)

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	httpx.Error(w, r, log, err)
}

// idParam parses the positive integer route parameter name.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.BadRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// scope returns the namespace the request is bound to.
func scope(r *http.Request) (tenancy.Scope, error) {
	sc, ok := tenancy.ScopeFrom(r.Context())
	if !ok {
		return nil, apperr.Internal("request is not bound to a namespace", nil)
	}
	return sc, nil
}

func identity(r *http.Request) (domain.Identity, error) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		return domain.Identity{}, apperr.Unauthorized("access token required")
	}
	return id, nil
}

type messageResponse struct {
	Message string `json:"message"`
}

type countResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// reply writes v with status, or err when it is set.
func reply(w http.ResponseWriter, r *http.Request, log *slog.Logger, status int, v any, err error) {
	if err != nil {
		writeError(w, r, log, err)
		return
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	httpx.JSON(w, status, v)
}
