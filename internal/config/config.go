package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minJWTSecretLength = 32

type Config struct {
	Env       string
	Port      int
	LogLevel  string
	LogFormat string

	// DatabaseURL is a postgres DSN. When empty the server falls back to a
	// local sqlite file, which is only acceptable outside prod.
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// OACPrivateKeyPEM is the Ed25519 signing key as pasted by an operator.
	// It may arrive mangled (escaped newlines, stripped line breaks); the
	// security package normalizes it before parsing.
	OACPrivateKeyPEM string
	OACTTL           time.Duration

	AuthRateLimitRPM int
	BodyLimitBytes   int64

	ShutdownGracePeriod time.Duration
	StartupWaitAttempts int
	StartupWaitBackoff  time.Duration

	OTELMetricsEnabled        bool
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELServiceName           string
	OTELEnvironment           string
	OTELMetricsExportInterval time.Duration
	EnableOTelHTTP            bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Env:       getEnv("ENV", "dev"),
		Port:      getEnvInt("PORT", 8080),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: normalizeDatabaseURL(os.Getenv("AUTH_DATABASE_URL")),
		SQLitePath:  getEnv("AUTH_SQLITE_PATH", "auth.db"),
		RedisURL:    getEnv("AUTH_REDIS_URL", "redis://localhost:6379"),

		JWTSecret:  os.Getenv("AUTH_JWT_SECRET"),
		Issuer:     getEnv("AUTH_ISSUER", "robotics-backend"),
		AccessTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 30*time.Minute),
		RefreshTTL: getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),

		OACPrivateKeyPEM: os.Getenv("OAC_PRIVATE_KEY"),
		OACTTL:           getEnvDuration("OAC_TTL", 7*24*time.Hour),

		AuthRateLimitRPM: getEnvInt("AUTH_RATE_LIMIT_RPM", 30),
		BodyLimitBytes:   int64(getEnvInt("BODY_LIMIT_BYTES", 1<<20)),

		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		StartupWaitAttempts: getEnvInt("STARTUP_WAIT_ATTEMPTS", 60),
		StartupWaitBackoff:  getEnvDuration("STARTUP_WAIT_BACKOFF", 2*time.Second),

		OTELMetricsEnabled:        getEnvBool("OTEL_METRICS_ENABLED", false),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "robotics-backend-auth"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "dev"),
		OTELMetricsExportInterval: getEnvDuration("OTEL_METRICS_EXPORT_INTERVAL", 30*time.Second),
		EnableOTelHTTP:            getEnvBool("OTEL_HTTP_ENABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.Env == "prod" && c.DatabaseURL == "" {
		return errors.New("AUTH_DATABASE_URL is required in prod")
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.OACTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// normalizeDatabaseURL accepts the postgres:// scheme some platforms hand
// out and rewrites it to the postgresql:// form the driver expects.
func normalizeDatabaseURL(url string) string {
	if strings.HasPrefix(url, "postgres://") {
		return "postgresql://" + strings.TrimPrefix(url, "postgres://")
	}
	return url
}

// LoadEnvFile reads KEY=VALUE lines into the process environment. Existing
// environment variables always win. A missing file is not an error.
func LoadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open env file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set env %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read env file: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if minutes, err := strconv.Atoi(v); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return fallback
}
