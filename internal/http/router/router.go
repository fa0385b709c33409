package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Dareto-Dream/robotics.backend/internal/health"
	"github.com/Dareto-Dream/robotics.backend/internal/http/handler"
	"github.com/Dareto-Dream/robotics.backend/internal/http/middleware"
	"github.com/Dareto-Dream/robotics.backend/internal/http/response"
	"github.com/Dareto-Dream/robotics.backend/internal/repository"
	"github.com/Dareto-Dream/robotics.backend/internal/security"
)

type Dependencies struct {
	AuthHandler      *handler.AuthHandler
	DeviceHandler    *handler.DeviceHandler
	JWTManager       *security.JWTManager
	UserRepository   repository.UserRepository
	AuthRateLimitRPM int
	BodyLimitBytes   int64
	Readiness        *health.ProbeRunner
	EnableOTelHTTP   bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger)
	if dep.BodyLimitBytes <= 0 {
		dep.BodyLimitBytes = 1 << 20
	}
	r.Use(middleware.BodyLimit(dep.BodyLimitBytes))

	authLimiter := middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	authGate := middleware.Authenticate(dep.JWTManager, dep.UserRepository)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.JSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unready", "checks": results})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(authLimiter).Post("/register", dep.AuthHandler.Register)
		r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
		r.With(authLimiter).Post("/refresh", dep.AuthHandler.Refresh)
		r.With(authGate).Post("/logout", dep.AuthHandler.Logout)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			body := map[string]any{"status": "ok", "auth_db": true, "auth_redis": true}
			status := http.StatusOK
			if dep.Readiness != nil {
				ready, results := dep.Readiness.Ready(r.Context())
				for _, res := range results {
					if res.Name == "auth_db" || res.Name == "auth_redis" {
						body[res.Name] = res.Healthy
					}
				}
				if !ready {
					body["status"] = "degraded"
					status = http.StatusServiceUnavailable
				}
			}
			response.JSON(w, status, body)
		})
	})

	r.Route("/devices", func(r chi.Router) {
		r.Get("/public-key", dep.DeviceHandler.PublicKey)
		r.Group(func(r chi.Router) {
			r.Use(authGate)
			r.Post("/register", dep.DeviceHandler.Register)
			r.Post("/renew", dep.DeviceHandler.Renew)
			r.Get("/", dep.DeviceHandler.List)
			r.Delete("/{deviceID}", dep.DeviceHandler.Revoke)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
