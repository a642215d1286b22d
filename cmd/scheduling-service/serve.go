package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"queueless/scheduling-service/internal/config"
	"queueless/scheduling-service/internal/httpapi"
	"queueless/scheduling-service/internal/identity"
	"queueless/scheduling-service/internal/outbox"
	"queueless/scheduling-service/internal/scheduling"
	"queueless/scheduling-service/internal/store"
	"queueless/scheduling-service/internal/store/memory"
	"queueless/scheduling-service/internal/store/postgres"
	"queueless/scheduling-service/internal/telemetry"
	"queueless/scheduling-service/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newServeCmd() *cobra.Command {
	var (
		seedPath    string
		autoMigrate bool
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, config.Load(), newLogger(), seedPath, autoMigrate)
		},
	}
	c.Flags().StringVar(&seedPath, "seed", "", "JSON file of businesses and services to load into the memory store")
	c.Flags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before serving (postgres store)")
	return c
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger, seedPath string, autoMigrate bool) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing := telemetry.Setup(ctx, telemetry.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("otel shutdown error", "err", err)
		}
	}()

	st, closeStore, err := openStore(ctx, cfg, logger, seedPath, autoMigrate)
	if err != nil {
		return err
	}
	defer closeStore()

	limiter, closeLimiter, err := newLimiter(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()

	svc := scheduling.New(st, scheduling.Options{
		ConflictRetries: &cfg.JoinConflictRetries,
		Logger:          logger,
	})
	handler := httpapi.NewHandler(svc, httpapi.Options{Logger: logger})
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.AdminRole)

	var routes http.Handler = handler.Routes()
	routes = httpapi.RateLimitMiddleware(httpapi.RateLimitConfig{
		Limiter:  limiter,
		Logger:   logger,
		FailOpen: cfg.RateLimitFailOpen,
	}, routes)
	routes = httpapi.AuthMiddleware(verifier, routes)
	routes = httpapi.LoggingMiddleware(logger, routes)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(routes, serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if publisher := outbox.NewPublisher(st, logger, outbox.Config{
		Brokers:   cfg.KafkaBrokers,
		PollEvery: cfg.OutboxPollInterval,
		BatchSize: cfg.OutboxBatchSize,
	}); publisher != nil {
		go publisher.Run(ctx)
	} else {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("scheduling-service listening", "addr", server.Addr, "store", cfg.Store)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
		return err
	}
	logger.Info("scheduling-service stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, seedPath string, autoMigrate bool) (store.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		st := memory.NewStore()
		if seedPath != "" {
			f, err := os.Open(seedPath)
			if err != nil {
				return nil, nil, err
			}
			defer f.Close()
			if err := st.LoadSeed(f); err != nil {
				return nil, nil, err
			}
			logger.Info("memory store seeded", "path", seedPath)
		}
		return st, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if autoMigrate {
		applied, err := migrations.Up(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Info("migrations applied", "count", len(applied))
	}
	return postgres.NewStore(pool), pool.Close, nil
}

// newLimiter prefers the shared Redis window when REDIS_ADDR is set so every
// replica draws from one budget.
func newLimiter(ctx context.Context, cfg config.Config, logger *slog.Logger) (httpapi.Limiter, func(), error) {
	if cfg.RedisAddr == "" {
		return httpapi.NewTokenLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst), func() {}, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		if !cfg.RateLimitFailOpen {
			_ = rdb.Close()
			return nil, nil, err
		}
		logger.Warn("redis unreachable at startup", "addr", cfg.RedisAddr, "err", err)
	}
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("redis close error", "err", err)
		}
	}
	return httpapi.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, "scheduling:rl"), closeFn, nil
}
