package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Dareto-Dream/robotics.backend/internal/http/middleware"
	"github.com/Dareto-Dream/robotics.backend/internal/http/response"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
	"github.com/Dareto-Dream/robotics.backend/internal/service"
)

type DeviceHandler struct {
	devices *service.DeviceService
}

func NewDeviceHandler(devices *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

type deviceRegisterRequest struct {
	PublicKey  string `json:"device_public_key"`
	Name       string `json:"device_name"`
	Platform   string `json:"device_type"`
	AppVersion string `json:"app_version"`
}

type deviceRenewRequest struct {
	DeviceID   string `json:"device_id"`
	AppVersion string `json:"app_version"`
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}
	var req deviceRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	reg, err := h.devices.Register(r.Context(), identity.ID, req.PublicKey, req.Name, req.Platform, req.AppVersion)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	observability.Audit(r, "device.register", "user_id", identity.ID, "device_id", reg.DeviceID)
	response.JSON(w, http.StatusCreated, reg)
}

func (h *DeviceHandler) Renew(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}
	var req deviceRenewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid JSON body")
		return
	}
	renewal, err := h.devices.Renew(r.Context(), identity.ID, req.DeviceID, req.AppVersion)
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	observability.Audit(r, "device.renew", "user_id", identity.ID, "device_id", renewal.DeviceID)
	response.JSON(w, http.StatusOK, renewal)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}
	views, err := h.devices.List(r.Context(), identity.ID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"devices": views,
		"count":   len(views),
	})
}

func (h *DeviceHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authenticated")
		return
	}
	deviceID := chi.URLParam(r, "deviceID")
	if err := h.devices.Revoke(r.Context(), identity.ID, deviceID); err != nil {
		h.writeDeviceError(w, err)
		return
	}
	observability.Audit(r, "device.revoke", "user_id", identity.ID, "device_id", deviceID)
	response.JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// PublicKey serves the OAC verification key. Unauthenticated on purpose:
// verifiers are offline clients that may hold no access token.
func (h *DeviceHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	pem, err := h.devices.PublicKey()
	if err != nil {
		h.writeDeviceError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"public_key": pem})
}

func (h *DeviceHandler) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.Error(w, http.StatusBadRequest, "VALIDATION", trimSentinel(err))
	case errors.Is(err, service.ErrDeviceNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Device not found")
	case errors.Is(err, service.ErrDeviceRevoked):
		response.Error(w, http.StatusForbidden, "FORBIDDEN", "Device has been revoked")
	case errors.Is(err, service.ErrOACUnavailable):
		response.Error(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Offline authorization is not configured")
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
	}
}
