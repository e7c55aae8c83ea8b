package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nephi-asha/kishkumen/internal/apperr"
	"github.com/nephi-asha/kishkumen/internal/httpx"
	"github.com/nephi-asha/kishkumen/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// LoginRequest represents login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents change password request
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// Register handles POST /api/auth/register. A provisioned tenant answers
// 201 with a token; a registration awaiting approval answers 202.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if err := httpx.Decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Register(r.Context(), req)
	if err != nil {
		h.logger.Info("registration failed",
			slog.String("username", req.Username),
			slog.String("business_name", req.BusinessName),
			slog.String("error", err.Error()),
		)
		writeError(w, r, h.logger, err)
		return
	}

	if result.Pending {
		httpx.JSON(w, http.StatusAccepted, result)
		return
	}
	h.logger.Info("tenant registered",
		slog.Int64("user_id", result.User.ID),
		slog.Int64("tenant_id", result.User.TenantID),
	)
	httpx.JSON(w, http.StatusCreated, result)
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.Decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// Approve handles POST /api/auth/approve/{token}. Any token that cannot be
// spent is 404.
func (h *AuthHandler) Approve(w http.ResponseWriter, r *http.Request) {
	result, err := h.authService.Approve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

// ChangePassword handles POST /api/auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	id, err := identity(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req ChangePasswordRequest
	if err := httpx.Decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		writeError(w, r, h.logger, apperr.BadRequest("oldPassword and newPassword are required"))
		return
	}

	if err := h.authService.ChangePassword(r.Context(), id.UserID, req.OldPassword, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, messageResponse{Message: "password changed successfully"})
}
