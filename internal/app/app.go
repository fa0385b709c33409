package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Dareto-Dream/robotics.backend/internal/config"
	"github.com/Dareto-Dream/robotics.backend/internal/health"
)

// App holds the assembled server and everything that must be torn down
// on exit.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	MeterProvider *sdkmetric.MeterProvider
	Readiness     *health.ProbeRunner
}

func New(cfg *config.Config, logger *slog.Logger, server *http.Server, mp *sdkmetric.MeterProvider, readiness *health.ProbeRunner) *App {
	return &App{
		Config:        cfg,
		Logger:        logger,
		Server:        server,
		MeterProvider: mp,
		Readiness:     readiness,
	}
}

// Run serves until SIGINT/SIGTERM, then drains in-flight requests within
// the configured grace period and flushes the metrics pipeline.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("server listening", "addr", a.Server.Addr, "env", a.Config.Env)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		a.Logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.Config.ShutdownGracePeriod)
	defer cancel()

	if err := a.Server.Shutdown(ctx); err != nil {
		a.Logger.Error("http shutdown", "error", err)
	}
	if a.MeterProvider != nil {
		if err := a.MeterProvider.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics shutdown", "error", err)
		}
	}
	a.Logger.Info("server stopped")
	return nil
}
