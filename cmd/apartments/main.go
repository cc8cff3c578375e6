// Command apartments runs the property management API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kidega/apartments/pkg/api"
	"github.com/kidega/apartments/pkg/auth"
	"github.com/kidega/apartments/pkg/cache"
	"github.com/kidega/apartments/pkg/config"
	"github.com/kidega/apartments/pkg/documents"
	"github.com/kidega/apartments/pkg/observability"
	"github.com/kidega/apartments/pkg/storage/postgres"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apartments: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.ParseLogLevel(cfg.LogLevel), os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	store, err := postgres.NewStore(cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	logger.Info("connected to postgres")

	cacheClient, err := cache.NewClient(cache.Config{
		URL:      cfg.Redis.URL,
		PoolSize: cfg.Redis.PoolSize,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheClient.Close()
	logger.Info("connected to redis")

	files, err := documents.NewFileStore(cfg.Files.DocumentRoot)
	if err != nil {
		return fmt.Errorf("failed to initialize document storage: %w", err)
	}

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)

	server := api.NewServer(api.Options{
		Store:       store,
		Cache:       cacheClient,
		Tokens:      tokens,
		Files:       files,
		Logger:      logger,
		Metrics:     metrics,
		RateLimit:   cfg.Auth.RateLimit,
		RateWindow:  cfg.Auth.RateLimitWindow,
		CORSOrigins: cfg.CORSOrigins,
	})

	expiry := documents.NewExpiryJob(store, logger, metrics)
	scheduler, err := expiry.Schedule()
	if err != nil {
		return fmt.Errorf("failed to schedule document expiry job: %w", err)
	}
	// Catch up on anything that expired while the service was down.
	go expiry.Run()

	health := observability.NewHealthChecker()
	health.Register("postgres", store.HealthCheck)
	health.Register("redis", cacheClient.HealthCheck)

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", health.Liveness)
	healthMux.HandleFunc("/health/ready", health.Readiness)
	healthMux.Handle("/metrics", metrics.Handler())

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthMux,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.Register(func(ctx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	go reportDBStats(store, metrics)

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("api server listening")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server failed: %w", err)
		}
	}()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("health server failed: %w", err)
		}
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- shutdown.Wait() }()

	select {
	case err := <-errCh:
		return err
	case err := <-waitCh:
		return err
	}
}

// reportDBStats samples the sql.DB pool gauges.
func reportDBStats(store *postgres.Store, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		stats := store.DB().Stats()
		metrics.DBConnectionsActive.Set(float64(stats.InUse))
		metrics.DBConnectionsIdle.Set(float64(stats.Idle))
	}
}
