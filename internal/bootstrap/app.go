package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/timkado/api/social-feed-client/pkg/contextkeys"
	"gitlab.com/timkado/api/social-feed-client/pkg/safego"
)

// NOTE: The App struct and NewApp function are defined in providers.go for Wire.
// This file should only contain methods for the App struct, like Run().

// Run restores the persisted session, starts the background loops, serves the
// local API and shuts everything down on SIGINT/SIGTERM or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	ctx = context.WithValue(ctx, contextkeys.InstanceIDKey, string(a.instanceID))
	appCfg := a.configProvider.Get()
	a.logger.Info(ctx, "Starting application", "service_name", appCfg.App.ServiceName, "version", appCfg.App.Version, "api_base_url", appCfg.API.BaseURL)

	if err := a.session.Hydrate(ctx); err != nil {
		// The session starts logged out; the store may recover later.
		a.logger.Error(ctx, "Failed to restore persisted session", "error", err.Error())
	} else {
		a.logger.Info(ctx, "Persisted session restored", "authenticated", a.session.Snapshot().IsAuthenticated())
	}

	if err := a.sessionSync.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session sync: %w", err)
	}
	a.cacheJanitor.Start(ctx)

	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}

		shutdownTimeout := 30 * time.Second
		if secs := a.configProvider.Get().App.ShutdownTimeoutSeconds; secs > 0 {
			shutdownTimeout = time.Duration(secs) * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.cacheJanitor.Stop()
		if err := a.sessionSync.Stop(); err != nil {
			a.logger.Warn(context.Background(), "Error stopping session sync", "error", err.Error())
		}

		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error(context.Background(), "HTTP server graceful shutdown failed", "error", err.Error())
		}
		a.logger.Info(context.Background(), "HTTP server shut down.")
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", appCfg.Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	a.logger.Info(ctx, "Application shut down gracefully or server closed.")
	return nil
}
