package service

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRefreshExpired     = errors.New("refresh token expired")
	ErrRefreshInvalid     = errors.New("invalid refresh token")
	ErrSessionExpired     = errors.New("session expired")
	ErrReuseDetected      = errors.New("refresh token reuse detected")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceRevoked      = errors.New("device has been revoked")
	ErrOACUnavailable     = errors.New("oac keys not configured")
)
