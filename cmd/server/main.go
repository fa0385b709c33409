package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Dareto-Dream/robotics.backend/internal/app"
	"github.com/Dareto-Dream/robotics.backend/internal/config"
	"github.com/Dareto-Dream/robotics.backend/internal/domain"
	"github.com/Dareto-Dream/robotics.backend/internal/health"
	"github.com/Dareto-Dream/robotics.backend/internal/http/handler"
	"github.com/Dareto-Dream/robotics.backend/internal/http/router"
	"github.com/Dareto-Dream/robotics.backend/internal/observability"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
	"github.com/Dareto-Dream/robotics.backend/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadEnvFile(".env"); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx := context.Background()
	meterProvider, err := observability.InitMetrics(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	db, err := openDatabase(cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Device{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	if err := waitForRedis(ctx, cfg, redisClient, logger); err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	devices := repository.NewDeviceRepository(db)
	sessions := repository.NewRefreshStore(redisClient, "refresh")

	hasher := security.NewPasswordHasher(bcrypt.DefaultCost)
	jwtMgr := security.NewJWTManager(cfg.Issuer, cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	oacMgr, err := security.NewOACManager(cfg.Issuer, cfg.OACPrivateKeyPEM, cfg.OACTTL)
	if err != nil {
		return fmt.Errorf("load oac signing key: %w", err)
	}
	if !oacMgr.Configured() {
		logger.Warn("OAC_PRIVATE_KEY not set, offline authorization endpoints will return 503")
	}

	authSvc := service.NewAuthService(users, sessions, hasher, jwtMgr, cfg.RefreshTTL, logger)
	deviceSvc := service.NewDeviceService(devices, oacMgr, logger)

	readiness := health.NewProbeRunner(2*time.Second, 5*time.Second,
		health.NewGormChecker("auth_db", db),
		health.NewRedisChecker("auth_redis", redisClient),
	)

	h := router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authSvc),
		DeviceHandler:    handler.NewDeviceHandler(deviceSvc),
		JWTManager:       jwtMgr,
		UserRepository:   users,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		BodyLimitBytes:   cfg.BodyLimitBytes,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.EnableOTelHTTP,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	return app.New(cfg, logger, server, meterProvider, readiness).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openDatabase connects to postgres when a DSN is configured, retrying
// while the database container comes up, and falls back to a local sqlite
// file otherwise.
func openDatabase(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}

	if cfg.DatabaseURL == "" {
		logger.Warn("AUTH_DATABASE_URL not set, using sqlite", "path", cfg.SQLitePath)
		return gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.StartupWaitAttempts; attempt++ {
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
		if err == nil {
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				if pingErr := sqlDB.Ping(); pingErr == nil {
					return db, nil
				} else {
					err = pingErr
				}
			} else {
				err = dbErr
			}
		}
		lastErr = err
		logger.Info("waiting for database", "attempt", attempt, "error", err)
		time.Sleep(cfg.StartupWaitBackoff)
	}
	return nil, fmt.Errorf("database not reachable after %d attempts: %w", cfg.StartupWaitAttempts, lastErr)
}

func waitForRedis(ctx context.Context, cfg *config.Config, client *redis.Client, logger *slog.Logger) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.StartupWaitAttempts; attempt++ {
		if err := client.Ping(ctx).Err(); err == nil {
			return nil
		} else {
			lastErr = err
		}
		logger.Info("waiting for redis", "attempt", attempt, "error", lastErr)
		time.Sleep(cfg.StartupWaitBackoff)
	}
	return fmt.Errorf("redis not reachable after %d attempts: %w", cfg.StartupWaitAttempts, lastErr)
}
