package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dareto-Dream/robotics.backend/internal/domain"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
)

type DeviceRegistration struct {
	DeviceID     string `json:"device_id"`
	OAC          string `json:"oac"`
	OACPublicKey string `json:"oac_public_key"`
}

type DeviceRenewal struct {
	DeviceID string `json:"device_id"`
	OAC      string `json:"oac"`
}

type DeviceView struct {
	DeviceID     string `json:"device_id"`
	Name         string `json:"device_name"`
	Platform     string `json:"device_type"`
	AppVersion   string `json:"app_version"`
	Revoked      bool   `json:"is_revoked"`
	RegisteredAt string `json:"registered_at"`
	LastRenewed  string `json:"last_renewed"`
}

// DeviceService manages the device-trust registry and OAC issuance.
// Revocation is delayed by design: an OAC already in a client's hands
// stays verifiable until its own expiry; revoking only guarantees no new
// certificate is ever issued for the device.
type DeviceService struct {
	devices repository.DeviceRepository
	oac     *security.OACManager
	logger  *slog.Logger
}

func NewDeviceService(devices repository.DeviceRepository, oac *security.OACManager, logger *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, oac: oac, logger: logger}
}

func (s *DeviceService) Register(ctx context.Context, userID, publicKey, name, platform, appVersion string) (*DeviceRegistration, error) {
	publicKey = strings.TrimSpace(publicKey)
	name = strings.TrimSpace(name)
	platform = strings.TrimSpace(platform)
	appVersion = strings.TrimSpace(appVersion)
	if publicKey == "" {
		return nil, fmt.Errorf("%w: device_public_key is required", ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: device_name is required", ErrValidation)
	}
	if platform == "" {
		return nil, fmt.Errorf("%w: device_type is required", ErrValidation)
	}

	fingerprint := security.FingerprintPublicKey(publicKey)
	device := &domain.Device{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Name:                 name,
		Platform:             platform,
		PublicKeyFingerprint: fingerprint,
		AppVersion:           appVersion,
		RegisteredAt:         time.Now().UTC(),
	}
	if err := s.devices.Create(ctx, device); err != nil {
		observability.RecordDeviceOperation(ctx, "register", "error")
		return nil, err
	}

	token, err := s.oac.MintOAC(userID, device.ID, fingerprint, appVersion)
	if err != nil {
		observability.RecordDeviceOperation(ctx, "register", "error")
		return nil, s.mapOACError(err)
	}
	publicPEM, err := s.oac.PublicKeyPEM()
	if err != nil {
		return nil, s.mapOACError(err)
	}

	observability.RecordDeviceOperation(ctx, "register", "success")
	s.logger.InfoContext(ctx, "device registered",
		"user_id", userID, "device_id", device.ID, "platform", platform)
	return &DeviceRegistration{
		DeviceID:     device.ID,
		OAC:          token,
		OACPublicKey: publicPEM,
	}, nil
}

// Renew re-issues the OAC for a device the caller owns. This is the only
// point where revocation is enforced server-side.
func (s *DeviceService) Renew(ctx context.Context, userID, deviceID, appVersion string) (*DeviceRenewal, error) {
	deviceID = strings.TrimSpace(deviceID)
	appVersion = strings.TrimSpace(appVersion)
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrValidation)
	}

	device, err := s.devices.FindByIDForUser(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			observability.RecordDeviceOperation(ctx, "renew", "not_found")
			return nil, ErrDeviceNotFound
		}
		return nil, err
	}
	if device.Revoked {
		observability.RecordDeviceOperation(ctx, "renew", "revoked")
		return nil, ErrDeviceRevoked
	}

	if err := s.devices.Renew(ctx, deviceID, appVersion); err != nil {
		observability.RecordDeviceOperation(ctx, "renew", "error")
		return nil, err
	}
	token, err := s.oac.MintOAC(userID, deviceID, device.PublicKeyFingerprint, appVersion)
	if err != nil {
		observability.RecordDeviceOperation(ctx, "renew", "error")
		return nil, s.mapOACError(err)
	}

	observability.RecordDeviceOperation(ctx, "renew", "success")
	return &DeviceRenewal{DeviceID: deviceID, OAC: token}, nil
}

func (s *DeviceService) Revoke(ctx context.Context, userID, deviceID string) error {
	if _, err := s.devices.FindByIDForUser(ctx, userID, deviceID); err != nil {
		if errors.Is(err, repository.ErrDeviceNotFound) {
			observability.RecordDeviceOperation(ctx, "revoke", "not_found")
			return ErrDeviceNotFound
		}
		return err
	}
	if err := s.devices.Revoke(ctx, deviceID); err != nil {
		observability.RecordDeviceOperation(ctx, "revoke", "error")
		return err
	}
	observability.RecordDeviceOperation(ctx, "revoke", "success")
	s.logger.InfoContext(ctx, "device revoked", "user_id", userID, "device_id", deviceID)
	return nil
}

func (s *DeviceService) List(ctx context.Context, userID string) ([]DeviceView, error) {
	devices, err := s.devices.ListByUserID(ctx, userID)
	if err != nil {
		observability.RecordDeviceOperation(ctx, "list", "error")
		return nil, err
	}
	views := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		view := DeviceView{
			DeviceID:     d.ID,
			Name:         d.Name,
			Platform:     d.Platform,
			AppVersion:   d.AppVersion,
			Revoked:      d.Revoked,
			RegisteredAt: d.RegisteredAt.UTC().Format(time.RFC3339),
		}
		if d.LastRenewedAt != nil {
			view.LastRenewed = d.LastRenewedAt.UTC().Format(time.RFC3339)
		}
		views = append(views, view)
	}
	observability.RecordDeviceOperation(ctx, "list", "success")
	return views, nil
}

// PublicKey returns the published OAC verification key.
func (s *DeviceService) PublicKey() (string, error) {
	pem, err := s.oac.PublicKeyPEM()
	if err != nil {
		return "", s.mapOACError(err)
	}
	return pem, nil
}

func (s *DeviceService) mapOACError(err error) error {
	if errors.Is(err, security.ErrOACUnconfigured) {
		return ErrOACUnavailable
	}
	return err
}
