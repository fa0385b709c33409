package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Dareto-Dream/robotics.backend/internal/domain"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
)

type inMemoryUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*domain.User
	byEmail map[string]*domain.User
}

func newInMemoryUserRepo() *inMemoryUserRepo {
	return &inMemoryUserRepo{
		byID:    map[string]*domain.User{},
		byEmail: map[string]*domain.User{},
	}
}

func (r *inMemoryUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *user
	r.byID[cp.ID] = &cp
	r.byEmail[cp.Email] = &cp
	return nil
}

func (r *inMemoryUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *inMemoryUserRepo) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type inMemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newInMemoryRefreshStore() *inMemoryRefreshStore {
	return &inMemoryRefreshStore{tokens: map[string]string{}}
}

func (s *inMemoryRefreshStore) Set(_ context.Context, userID, token string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[userID] = token
	return nil
}

func (s *inMemoryRefreshStore) Get(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[userID]
	if !ok {
		return "", repository.ErrNoSession
	}
	return t, nil
}

func (s *inMemoryRefreshStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, userID)
	return nil
}

func (s *inMemoryRefreshStore) Rotate(_ context.Context, userID, presented, next string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.tokens[userID]
	if !ok {
		return repository.ErrNoSession
	}
	if stored != presented {
		delete(s.tokens, userID)
		return repository.ErrReuseDetected
	}
	s.tokens[userID] = next
	return nil
}

type inMemoryDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*domain.Device
}

func newInMemoryDeviceRepo() *inMemoryDeviceRepo {
	return &inMemoryDeviceRepo{devices: map[string]*domain.Device{}}
}

func (r *inMemoryDeviceRepo) Create(_ context.Context, device *domain.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *device
	r.devices[cp.ID] = &cp
	return nil
}

func (r *inMemoryDeviceRepo) FindByIDForUser(_ context.Context, userID, deviceID string) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok || d.UserID != userID {
		return nil, repository.ErrDeviceNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *inMemoryDeviceRepo) ListByUserID(_ context.Context, userID string) ([]domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Device
	for _, d := range r.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (r *inMemoryDeviceRepo) Renew(_ context.Context, deviceID, appVersion string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return repository.ErrDeviceNotFound
	}
	now := time.Now().UTC()
	d.LastRenewedAt = &now
	if appVersion != "" {
		d.AppVersion = appVersion
	}
	return nil
}

func (r *inMemoryDeviceRepo) Revoke(_ context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return repository.ErrDeviceNotFound
	}
	d.Revoked = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAuthService() (*AuthService, *inMemoryUserRepo, *inMemoryRefreshStore, *security.JWTManager) {
	users := newInMemoryUserRepo()
	sessions := newInMemoryRefreshStore()
	jwtMgr := security.NewJWTManager("test-issuer", "abcdefghijklmnopqrstuvwxyz123456", 15*time.Minute, time.Hour)
	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	svc := NewAuthService(users, sessions, hasher, jwtMgr, time.Hour, testLogger())
	return svc, users, sessions, jwtMgr
}

func newTestDeviceService(t *testing.T, keyPEM string) (*DeviceService, *inMemoryDeviceRepo) {
	t.Helper()
	devices := newInMemoryDeviceRepo()
	oac, err := security.NewOACManager("test-issuer", keyPEM, time.Hour)
	if err != nil {
		t.Fatalf("new oac manager: %v", err)
	}
	return NewDeviceService(devices, oac, testLogger()), devices
}
