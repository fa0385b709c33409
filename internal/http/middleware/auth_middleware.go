package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Dareto-Dream/robotics.backend/internal/http/response"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity is the authenticated caller resolved by the gate.
type Identity struct {
	ID    string
	Email string
}

// Authenticate is the single gate every protected route passes through:
// extract the bearer token, decode it in the symmetric domain, require an
// access-type claim with a subject, and resolve that subject to a user.
// Pure read; safe to run on every request.
func Authenticate(jwtMgr *security.JWTManager, users repository.UserRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid Authorization header")
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing")
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid Authorization header")
				return
			}

			claims, err := jwtMgr.ParseAccess(raw)
			if err != nil {
				switch {
				case errors.Is(err, security.ErrTokenExpired):
					observability.RecordAccessTokenValidation(r.Context(), "expired")
					response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Token expired")
				case errors.Is(err, security.ErrWrongTokenType):
					observability.RecordAccessTokenValidation(r.Context(), "wrong_type")
					response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Expected access token")
				default:
					observability.RecordAccessTokenValidation(r.Context(), "invalid")
					response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token")
				}
				return
			}
			if claims.Subject == "" {
				observability.RecordAccessTokenValidation(r.Context(), "invalid")
				response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Token missing subject")
				return
			}

			user, err := users.FindByID(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, repository.ErrUserNotFound) {
					observability.RecordAccessTokenValidation(r.Context(), "user_not_found")
					response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "User not found")
					return
				}
				observability.RecordAccessTokenValidation(r.Context(), "error")
				response.Error(w, http.StatusInternalServerError, "INTERNAL", "Internal server error")
				return
			}

			observability.RecordAccessTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), identityContextKey, &Identity{ID: user.ID, Email: user.Email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok
}
