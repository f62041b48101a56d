package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/upb/outbound-request-tracker/app"
	"github.com/upb/outbound-request-tracker/config"
	"github.com/upb/outbound-request-tracker/internal/observability"
	"github.com/upb/outbound-request-tracker/routes"
	"github.com/upb/outbound-request-tracker/services"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := setup(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting request tracker",
		zap.String("environment", cfg.Environment),
		zap.String("queue_backend", cfg.Queue.Backend),
		zap.String("publish_mode", cfg.Tracking.PublishMode))

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil {
		logger.Error("request tracker exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// setup loads the validated config, .env included, and builds the logger from it
func setup(ctx context.Context) (*config.Config, *zap.Logger, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, urls []string) error {
	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		if services.IsProvisioningError(err) {
			logger.Error("queue provisioning failed", zap.String("queue_backend", cfg.Queue.Backend))
		}
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := deps.Close(shutdownCtx); err != nil {
			logger.Error("failed to close dependencies", zap.Error(err))
		}
	}()

	return serve(ctx, deps, urls)
}

// serve issues the tracked requests and, when the admin server is enabled,
// keeps serving it until ctx is done
func serve(ctx context.Context, deps *app.Dependencies, urls []string) error {
	failed := trackURLs(ctx, deps.HTTPClient, deps.Config.Tracking.LogIDHeader, urls, deps.Logger)

	if !deps.Config.Server.Enabled {
		if failed > 0 {
			return fmt.Errorf("%d of %d requests failed", failed, len(urls))
		}
		return nil
	}

	srv := &http.Server{
		Addr:         deps.Config.Server.Address(),
		Handler:      routes.SetupRoutes(deps),
		ReadTimeout:  deps.Config.Server.ReadTimeout,
		WriteTimeout: deps.Config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.Info("admin server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	deps.Logger.Info("shutting down admin server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), deps.Config.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	return nil
}

// trackURLs GETs each url through client and returns how many failed
func trackURLs(ctx context.Context, client *http.Client, logIDHeader string, urls []string, logger *zap.Logger) int {
	failed := 0
	for _, u := range urls {
		start := time.Now()
		status, logID, err := get(ctx, client, u, logIDHeader)
		if err != nil {
			failed++
			logger.Error("request failed", zap.String("url", u), zap.Error(err))
			continue
		}
		logger.Info("request completed",
			zap.String("url", u),
			zap.Int("status", status),
			zap.String(logIDHeader, logID),
			zap.Duration("duration", time.Since(start)))
	}
	return failed
}

func get(ctx context.Context, client *http.Client, url, logIDHeader string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, resp.Header.Get(logIDHeader), nil
}
