package integration

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Dareto-Dream/robotics.backend/internal/domain"
	"github.com/Dareto-Dream/robotics.backend/internal/health"
	"github.com/Dareto-Dream/robotics.backend/internal/http/handler"
	"github.com/Dareto-Dream/robotics.backend/internal/http/router"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
	"github.com/Dareto-Dream/robotics.backend/internal/service"
)

const testJWTSecret = "integration-secret-0123456789abcdef"

func signingKeyPEM(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

// newAuthTestServer stands up the full HTTP stack on sqlite and miniredis.
func newAuthTestServer(t *testing.T) (string, *http.Client, func()) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Device{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	users := repository.NewUserRepository(db)
	devices := repository.NewDeviceRepository(db)
	sessions := repository.NewRefreshStore(redisClient, "refresh")

	hasher := security.NewPasswordHasher(bcrypt.MinCost)
	jwtMgr := security.NewJWTManager("integration", testJWTSecret, 30*time.Minute, 720*time.Hour)
	oacMgr, err := security.NewOACManager("integration", signingKeyPEM(t), 168*time.Hour)
	if err != nil {
		t.Fatalf("new oac manager: %v", err)
	}

	authSvc := service.NewAuthService(users, sessions, hasher, jwtMgr, 720*time.Hour, logger)
	deviceSvc := service.NewDeviceService(devices, oacMgr, logger)

	readiness := health.NewProbeRunner(time.Second, 0,
		health.NewGormChecker("auth_db", db),
		health.NewRedisChecker("auth_redis", redisClient),
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc),
		DeviceHandler:    handler.NewDeviceHandler(deviceSvc),
		JWTManager:       jwtMgr,
		UserRepository:   users,
		AuthRateLimitRPM: 10000,
		BodyLimitBytes:   1 << 20,
		Readiness:        readiness,
	})

	server := httptest.NewServer(h)
	return server.URL, server.Client(), func() {
		server.Close()
		redisClient.Close()
	}
}

// doJSON sends body as JSON and decodes the response into a generic map.
func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func register(t *testing.T, client *http.Client, baseURL, email, password string) (access, refresh string) {
	t.Helper()
	resp, body := doJSON(t, client, http.MethodPost, baseURL+"/auth/register",
		map[string]string{"email": email, "password": password}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register failed: status=%d body=%v", resp.StatusCode, body)
	}
	access, _ = body["access"].(string)
	refresh, _ = body["refresh"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("register returned incomplete token pair: %v", body)
	}
	return access, refresh
}
