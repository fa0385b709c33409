package domain

import "time"

// Device is one client installation bound to one user. The raw device
// public key is never stored, only its SHA-256 fingerprint. Revocation is
// one-way: a revoked device can still hold a previously issued OAC until
// that OAC expires, but the server will never renew it.
type Device struct {
	ID                   string     `gorm:"primaryKey;size:36" json:"device_id"`
	UserID               string     `gorm:"size:36;index;not null" json:"-"`
	Name                 string     `gorm:"size:255;not null" json:"device_name"`
	Platform             string     `gorm:"size:64;not null" json:"device_type"`
	PublicKeyFingerprint string     `gorm:"size:128;not null" json:"-"`
	AppVersion           string     `gorm:"size:64" json:"app_version"`
	Revoked              bool       `gorm:"not null;default:false" json:"is_revoked"`
	RegisteredAt         time.Time  `gorm:"index;not null" json:"registered_at"`
	LastRenewedAt        *time.Time `json:"last_renewed,omitempty"`
}
