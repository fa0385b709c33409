package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("token invalid")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims is the symmetric-domain claim set: {sub, type, exp, iat}. Access
// and refresh tokens share one signing secret and are told apart only by
// the type claim, which callers must check for their expected use.
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// JWTManager signs and verifies the symmetric (HS256) token family.
type JWTManager struct {
	issuer     string
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJWTManager(issuer, secret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		issuer:     issuer,
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

func (m *JWTManager) MintAccess(userID string) (string, error) {
	return m.mint(userID, TokenTypeAccess, m.accessTTL)
}

func (m *JWTManager) MintRefresh(userID string) (string, error) {
	return m.mint(userID, TokenTypeRefresh, m.refreshTTL)
}

func (m *JWTManager) mint(userID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// ParseAccess decodes raw and requires type=access.
func (m *JWTManager) ParseAccess(raw string) (*Claims, error) {
	return m.parse(raw, TokenTypeAccess)
}

// ParseRefresh decodes raw and requires type=refresh.
func (m *JWTManager) ParseRefresh(raw string) (*Claims, error) {
	return m.parse(raw, TokenTypeRefresh)
}

func (m *JWTManager) parse(raw, tokenType string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != tokenType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}
