package integration

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func registerDevice(t *testing.T, client *http.Client, baseURL, access string) (deviceID, oac, publicKey string) {
	t.Helper()
	resp, body := doJSON(t, client, http.MethodPost, baseURL+"/devices/register", map[string]string{
		"device_public_key": "-----BEGIN PUBLIC KEY-----\nMCowBQYDK2VwAyEAtest\n-----END PUBLIC KEY-----",
		"device_name":       "pit tablet",
		"device_type":       "android",
		"app_version":       "2.4.1",
	}, bearer(access))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("device register failed: status=%d body=%v", resp.StatusCode, body)
	}
	deviceID, _ = body["device_id"].(string)
	oac, _ = body["oac"].(string)
	publicKey, _ = body["oac_public_key"].(string)
	if deviceID == "" || oac == "" || publicKey == "" {
		t.Fatalf("incomplete registration response: %v", body)
	}
	return deviceID, oac, publicKey
}

func decodeOAC(t *testing.T, token, publicKeyPEM string) jwt.MapClaims {
	t.Helper()
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		t.Fatal("oac_public_key is not PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		t.Fatalf("parse public key: %v", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		t.Fatalf("expected ed25519 public key, got %T", pub)
	}
	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tk.Header["alg"])
		}
		return edPub, nil
	})
	if err != nil {
		t.Fatalf("verify oac: %v", err)
	}
	return claims
}

func TestDeviceRegisterIssuesVerifiableOAC(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	access, _ := register(t, client, baseURL, "scout@example.com", "password123")
	deviceID, oac, publicKey := registerDevice(t, client, baseURL, access)

	claims := decodeOAC(t, oac, publicKey)
	if claims["type"] != "oac" {
		t.Fatalf("expected oac type claim, got %v", claims["type"])
	}
	if claims["did"] != deviceID {
		t.Fatalf("expected did=%s, got %v", deviceID, claims["did"])
	}
	if claims["scope"] != "offline_access" {
		t.Fatalf("expected offline_access scope, got %v", claims["scope"])
	}
	if claims["app_version"] != "2.4.1" {
		t.Fatalf("expected app_version claim, got %v", claims["app_version"])
	}

	// The published verification key matches the one in the response.
	resp, body := doJSON(t, client, http.MethodGet, baseURL+"/devices/public-key", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public-key failed: status=%d", resp.StatusCode)
	}
	if body["public_key"] != publicKey {
		t.Fatal("published key differs from registration response")
	}
}

func TestDeviceRenewAndList(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	access, _ := register(t, client, baseURL, "renew@example.com", "password123")
	deviceID, _, publicKey := registerDevice(t, client, baseURL, access)

	resp, body := doJSON(t, client, http.MethodPost, baseURL+"/devices/renew", map[string]string{
		"device_id":   deviceID,
		"app_version": "2.5.0",
	}, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("renew failed: status=%d body=%v", resp.StatusCode, body)
	}
	renewed, _ := body["oac"].(string)
	claims := decodeOAC(t, renewed, publicKey)
	if claims["app_version"] != "2.5.0" {
		t.Fatalf("expected renewed app_version, got %v", claims["app_version"])
	}

	resp, body = doJSON(t, client, http.MethodGet, baseURL+"/devices", nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed: status=%d", resp.StatusCode)
	}
	if count, _ := body["count"].(float64); count != 1 {
		t.Fatalf("expected 1 device, got %v", body["count"])
	}
	devices, _ := body["devices"].([]any)
	if len(devices) != 1 {
		t.Fatalf("expected device entry, got %v", body)
	}
	view, _ := devices[0].(map[string]any)
	if view["app_version"] != "2.5.0" {
		t.Fatalf("expected stored app_version updated, got %v", view)
	}
	if view["last_renewed"] == "" || view["last_renewed"] == nil {
		t.Fatalf("expected last_renewed set, got %v", view)
	}
}

func TestDeviceRevokedRenewRejected(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	access, _ := register(t, client, baseURL, "revoke@example.com", "password123")
	deviceID, oac, publicKey := registerDevice(t, client, baseURL, access)

	resp, body := doJSON(t, client, http.MethodDelete, baseURL+"/devices/"+deviceID, nil, bearer(access))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke failed: status=%d body=%v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, client, http.MethodPost, baseURL+"/devices/renew", map[string]string{
		"device_id": deviceID,
	}, bearer(access))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for revoked device, got %d body=%v", resp.StatusCode, body)
	}

	// Revocation is delayed: the certificate already issued still verifies
	// against the published key until it expires on its own.
	decodeOAC(t, oac, publicKey)
}

func TestDeviceOwnershipScoping(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	accessA, _ := register(t, client, baseURL, "owner-a@example.com", "password123")
	accessB, _ := register(t, client, baseURL, "owner-b@example.com", "password123")
	deviceID, _, _ := registerDevice(t, client, baseURL, accessA)

	resp, _ := doJSON(t, client, http.MethodPost, baseURL+"/devices/renew", map[string]string{
		"device_id": deviceID,
	}, bearer(accessB))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign device renew, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, client, http.MethodDelete, baseURL+"/devices/"+deviceID, nil, bearer(accessB))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign device revoke, got %d", resp.StatusCode)
	}

	resp, body := doJSON(t, client, http.MethodGet, baseURL+"/devices", nil, bearer(accessB))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list failed: status=%d", resp.StatusCode)
	}
	if count, _ := body["count"].(float64); count != 0 {
		t.Fatalf("expected empty device list for other user, got %v", body)
	}
}

func TestDeviceValidation(t *testing.T) {
	baseURL, client, closeFn := newAuthTestServer(t)
	defer closeFn()

	access, _ := register(t, client, baseURL, "invalid-device@example.com", "password123")

	resp, body := doJSON(t, client, http.MethodPost, baseURL+"/devices/register", map[string]string{
		"device_name": "no key",
		"device_type": "ios",
	}, bearer(access))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, client, http.MethodPost, baseURL+"/devices/renew", map[string]string{
		"device_id": "does-not-exist",
	}, bearer(access))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown device, got %d", resp.StatusCode)
	}
}
