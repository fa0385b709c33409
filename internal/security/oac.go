package security

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TokenTypeOAC = "oac"
	OACScope     = "offline_access"
)

var ErrOACUnconfigured = errors.New("oac signing key not configured")

// OACClaims is the Offline Authorization Certificate claim set. The
// certificate binds a user to a device via the fingerprint of the device's
// public key, and is verifiable offline with only the server's Ed25519
// public key.
type OACClaims struct {
	TokenType  string `json:"type"`
	DeviceID   string `json:"did"`
	DeviceKey  string `json:"dpk"`
	Scope      string `json:"scope"`
	AppVersion string `json:"app_version,omitempty"`
	jwt.RegisteredClaims
}

// OACManager signs and verifies the asymmetric (EdDSA) token domain.
type OACManager struct {
	issuer string
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	pubPEM string
	ttl    time.Duration
}

// NewOACManager parses operator-supplied Ed25519 private key text. The text
// is normalized first (see NormalizePEM); keys must be PKCS8. An empty
// keyText yields a manager that fails every operation with
// ErrOACUnconfigured rather than one that silently accepts or rejects.
func NewOACManager(issuer, keyText string, ttl time.Duration) (*OACManager, error) {
	if keyText == "" {
		return &OACManager{issuer: issuer, ttl: ttl}, nil
	}

	normalized, err := NormalizePEM(keyText)
	if err != nil {
		return nil, fmt.Errorf("oac private key: %w", err)
	}
	block, _ := pem.Decode([]byte(normalized))
	if block == nil {
		return nil, errors.New("oac private key: invalid PEM")
	}
	if block.Type != "PRIVATE KEY" {
		return nil, fmt.Errorf("oac private key: expected PRIVATE KEY, got %q (Ed25519 requires PKCS8)", block.Type)
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("oac private key: parse PKCS8: %w", err)
	}
	priv, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("oac private key: not an Ed25519 key")
	}
	pub := priv.Public().(ed25519.PublicKey)

	pubDER, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("oac public key: marshal: %w", err)
	}
	pubPEM := string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))

	return &OACManager{
		issuer: issuer,
		priv:   priv,
		pub:    pub,
		pubPEM: pubPEM,
		ttl:    ttl,
	}, nil
}

func (m *OACManager) Configured() bool { return m.priv != nil }

// PublicKeyPEM returns the verification key clients embed for offline
// checks.
func (m *OACManager) PublicKeyPEM() (string, error) {
	if !m.Configured() {
		return "", ErrOACUnconfigured
	}
	return m.pubPEM, nil
}

func (m *OACManager) MintOAC(userID, deviceID, deviceKeyFingerprint, appVersion string) (string, error) {
	if !m.Configured() {
		return "", ErrOACUnconfigured
	}
	now := time.Now()
	claims := OACClaims{
		TokenType:  TokenTypeOAC,
		DeviceID:   deviceID,
		DeviceKey:  deviceKeyFingerprint,
		Scope:      OACScope,
		AppVersion: appVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(m.priv)
}

func (m *OACManager) DecodeOAC(raw string) (*OACClaims, error) {
	if !m.Configured() {
		return nil, ErrOACUnconfigured
	}
	claims := &OACClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodEdDSA {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.pub, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tok.Valid || claims.TokenType != TokenTypeOAC {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// FingerprintPublicKey hashes a device's public key text. Only this
// fingerprint is ever stored or embedded in an OAC, never the raw key.
func FingerprintPublicKey(publicKey string) string {
	sum := sha256.Sum256([]byte(publicKey))
	return hex.EncodeToString(sum[:])
}
