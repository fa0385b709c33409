package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Dareto-Dream/robotics.backend/internal/domain"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
)

var ErrDeviceNotFound = errors.New("device not found")

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	FindByIDForUser(ctx context.Context, userID, deviceID string) (*domain.Device, error)
	ListByUserID(ctx context.Context, userID string) ([]domain.Device, error)
	Renew(ctx context.Context, deviceID, appVersion string) error
	Revoke(ctx context.Context, deviceID string) error
}

type GormDeviceRepository struct{ db *gorm.DB }

func NewDeviceRepository(db *gorm.DB) DeviceRepository { return &GormDeviceRepository{db: db} }

func (r *GormDeviceRepository) Create(ctx context.Context, device *domain.Device) error {
	err := r.db.WithContext(ctx).Create(device).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "device", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "device", "create", "success")
	return nil
}

func (r *GormDeviceRepository) FindByIDForUser(ctx context.Context, userID, deviceID string) (*domain.Device, error) {
	var d domain.Device
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", deviceID, userID).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "device", "find_by_id_for_user", "not_found")
			return nil, ErrDeviceNotFound
		}
		observability.RecordRepositoryOperation(ctx, "device", "find_by_id_for_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "device", "find_by_id_for_user", "success")
	return &d, nil
}

func (r *GormDeviceRepository) ListByUserID(ctx context.Context, userID string) ([]domain.Device, error) {
	var devices []domain.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("registered_at DESC").
		Find(&devices).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "device", "list_by_user_id", "error")
		return devices, err
	}
	observability.RecordRepositoryOperation(ctx, "device", "list_by_user_id", "success")
	return devices, nil
}

// Renew records a successful OAC re-issuance. An empty appVersion keeps
// the previously reported version.
func (r *GormDeviceRepository) Renew(ctx context.Context, deviceID, appVersion string) error {
	updates := map[string]any{"last_renewed_at": time.Now().UTC()}
	if appVersion != "" {
		updates["app_version"] = appVersion
	}
	res := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Updates(updates)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "device", "renew", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "device", "renew", "not_found")
		return ErrDeviceNotFound
	}
	observability.RecordRepositoryOperation(ctx, "device", "renew", "success")
	return nil
}

// Revoke flips the one-way revocation flag. There is intentionally no
// inverse operation.
func (r *GormDeviceRepository) Revoke(ctx context.Context, deviceID string) error {
	res := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("revoked", true)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "device", "revoke", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "device", "revoke", "not_found")
		return ErrDeviceNotFound
	}
	observability.RecordRepositoryOperation(ctx, "device", "revoke", "success")
	return nil
}
