package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Dareto-Dream/robotics.backend/internal/http/middleware"
	"github.com/Dareto-Dream/robotics.backend/internal/http/response"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
	"github.com/Dareto-Dream/robotics.backend/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	pair, err := h.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			response.Error(w, http.StatusBadRequest, "VALIDATION", trimSentinel(err))
		case errors.Is(err, service.ErrEmailTaken):
			response.Error(w, http.StatusConflict, "CONFLICT", "Email already registered")
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		}
		return
	}
	observability.Audit(r, "auth.register")
	response.JSON(w, http.StatusCreated, pair)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	pair, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			response.Error(w, http.StatusBadRequest, "VALIDATION", trimSentinel(err))
		case errors.Is(err, service.ErrInvalidCredentials):
			// One generic message whether the email exists or not.
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password")
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		}
		return
	}
	observability.Audit(r, "auth.login")
	response.JSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrValidation):
			response.Error(w, http.StatusBadRequest, "VALIDATION", trimSentinel(err))
		case errors.Is(err, service.ErrRefreshExpired):
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token expired, please log in again")
		case errors.Is(err, service.ErrRefreshInvalid):
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token")
		case errors.Is(err, service.ErrSessionExpired):
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Session expired, please log in again")
		case errors.Is(err, service.ErrReuseDetected):
			observability.Audit(r, "auth.refresh.reuse_detected")
			response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token reuse detected, session invalidated")
		default:
			response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		}
		return
	}
	response.JSON(w, http.StatusOK, pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}
	if err := h.auth.Logout(r.Context(), identity.ID); err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}
	observability.Audit(r, "auth.logout", "user_id", identity.ID)
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// trimSentinel strips the sentinel prefix ("validation failed: ") so the
// client sees only the field-level message.
func trimSentinel(err error) string {
	msg := err.Error()
	const prefix = "validation failed: "
	if len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
		return msg[len(prefix):]
	}
	return msg
}
