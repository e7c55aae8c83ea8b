package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// UserHandler serves tenant membership and the operator views.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserHandler{users: users, logger: logger}
}

type rolesRequest struct {
	Roles []string `json:"roles"`
}

// List handles GET /api/users. A global caller passes ?tenantId=.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var tenantID int64
	if raw := r.URL.Query().Get("tenantId"); raw != "" {
		if tenantID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, r, h.logger, apperr.BadRequest("invalid tenantId %q", raw))
			return
		}
	}
	users, err := h.users.ListUsers(r.Context(), actor, tenantID)
	reply(w, r, h.logger, http.StatusOK, users, err)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.users.GetUser(r.Context(), actor, id)
	reply(w, r, h.logger, http.StatusOK, u, err)
}

// AddStaff handles POST /api/users/staff
func (h *UserHandler) AddStaff(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var in service.StaffInput
	if err := httpx.Decode(r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.users.AddStaff(r.Context(), actor, in)
	reply(w, r, h.logger, http.StatusCreated, u, err)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var patch service.UserPatch
	if err := httpx.Decode(r, &patch); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.users.UpdateUser(r.Context(), actor, id, patch)
	reply(w, r, h.logger, http.StatusOK, u, err)
}

// UpdateRoles handles PUT /api/users/{id}/roles
func (h *UserHandler) UpdateRoles(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	var req rolesRequest
	if err := httpx.Decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	u, err := h.users.UpdateRoles(r.Context(), actor, id, req.Roles)
	reply(w, r, h.logger, http.StatusOK, u, err)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	reply(w, r, h.logger, http.StatusNoContent, nil, h.users.DeleteUser(r.Context(), actor, id))
}

// Tenants handles GET /api/admin/tenants
func (h *UserHandler) Tenants(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	tenants, err := h.users.ListTenants(r.Context(), actor)
	reply(w, r, h.logger, http.StatusOK, tenants, err)
}

// Registrations handles GET /api/admin/registrations
func (h *UserHandler) Registrations(w http.ResponseWriter, r *http.Request) {
	actor, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	pending, err := h.users.ListPendingRegistrations(r.Context(), actor)
	reply(w, r, h.logger, http.StatusOK, pending, err)
}
