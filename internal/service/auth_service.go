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

const minPasswordLength = 8

type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// AuthService owns the register/login/refresh/logout lifecycle. Refresh
// validity lives in the RefreshStore only; the JWT signature alone never
// makes a refresh token acceptable.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.RefreshStore
	hasher     *security.PasswordHasher
	jwt        *security.JWTManager
	refreshTTL time.Duration
	logger     *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	sessions repository.RefreshStore,
	hasher *security.PasswordHasher,
	jwt *security.JWTManager,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		jwt:        jwt,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	if _, err := s.users.FindByEmail(ctx, email); err == nil {
		observability.RecordAuthOperation(ctx, "register", "conflict")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		observability.RecordAuthOperation(ctx, "register", "error")
		return nil, err
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		observability.RecordAuthOperation(ctx, "register", "error")
		return nil, err
	}
	observability.RecordAuthOperation(ctx, "register", "success")
	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID)
	return pair, nil
}

// Login verifies credentials and primes a fresh refresh session. Failures
// are deliberately indistinguishable: the caller never learns whether the
// email exists.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrValidation)
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthOperation(ctx, "login", "failure")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		observability.RecordAuthOperation(ctx, "login", "failure")
		return nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		observability.RecordAuthOperation(ctx, "login", "error")
		return nil, err
	}
	observability.RecordAuthOperation(ctx, "login", "success")
	return pair, nil
}

// Refresh rotates the caller's session: the presented token must decode as
// a refresh token and match the stored value exactly, and the
// check-and-replace is one atomic step in the store. A mismatch revokes
// the session entirely; suspected theft fails closed.
func (s *AuthService) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	if strings.TrimSpace(presented) == "" {
		return nil, fmt.Errorf("%w: refresh token is required", ErrValidation)
	}

	claims, err := s.jwt.ParseRefresh(presented)
	if err != nil {
		observability.RecordAuthOperation(ctx, "refresh", "invalid")
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			return nil, ErrRefreshExpired
		default:
			return nil, ErrRefreshInvalid
		}
	}
	userID := claims.Subject
	if userID == "" {
		observability.RecordAuthOperation(ctx, "refresh", "invalid")
		return nil, ErrRefreshInvalid
	}

	newRefresh, err := s.jwt.MintRefresh(userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Rotate(ctx, userID, presented, newRefresh, s.refreshTTL); err != nil {
		switch {
		case errors.Is(err, repository.ErrNoSession):
			observability.RecordAuthOperation(ctx, "refresh", "session_expired")
			return nil, ErrSessionExpired
		case errors.Is(err, repository.ErrReuseDetected):
			observability.RecordAuthOperation(ctx, "refresh", "reuse_detected")
			s.logger.WarnContext(ctx, "refresh token reuse detected, session revoked", "user_id", userID)
			return nil, ErrReuseDetected
		default:
			observability.RecordAuthOperation(ctx, "refresh", "error")
			return nil, err
		}
	}

	access, err := s.jwt.MintAccess(userID)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthOperation(ctx, "refresh", "success")
	return &TokenPair{Access: access, Refresh: newRefresh}, nil
}

// Logout drops the refresh session. Calling it without one is a no-op.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.sessions.Delete(ctx, userID); err != nil {
		observability.RecordAuthOperation(ctx, "logout", "error")
		return err
	}
	observability.RecordAuthOperation(ctx, "logout", "success")
	return nil
}

func (s *AuthService) issuePair(ctx context.Context, userID string) (*TokenPair, error) {
	access, err := s.jwt.MintAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := s.jwt.MintRefresh(userID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Set(ctx, userID, refresh, s.refreshTTL); err != nil {
		return nil, err
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}
