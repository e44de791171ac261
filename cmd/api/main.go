// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

// Command api runs the Tempora time-tracking API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/temporahq/tempora/internal/api"
	"github.com/temporahq/tempora/internal/guard"
	"github.com/temporahq/tempora/internal/identity"
	"github.com/temporahq/tempora/internal/platform/config"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/middleware"
	"github.com/temporahq/tempora/internal/platform/migration"
	"github.com/temporahq/tempora/internal/platform/postgres"
	"github.com/temporahq/tempora/internal/platform/redis"
	"github.com/temporahq/tempora/internal/platform/sec"
	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/internal/realtime"
	"github.com/temporahq/tempora/internal/timer"
	"github.com/temporahq/tempora/internal/workspace"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server_exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Configuration & Logging ────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting",
		slog.String("service", constants.AppName),
		slog.String("version", constants.AppVersion),
		slog.String("environment", cfg.Environment),
	)

	// ── 2. Schema Migration ───────────────────────────────────────────────
	if err := migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, logger); err != nil {
		return err
	}

	// ── 3. Infrastructure ─────────────────────────────────────────────────
	pool, err := postgres.NewPool(rootCtx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	cache, err := redis.NewClient(rootCtx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = cache.Close() }()

	tokenService, err := sec.NewTokenService(cfg.SigningKey, constants.AuthIssuer)
	if err != nil {
		return err
	}

	hashParams := loadHashParams(cfg, logger)

	// ── 4. Stores ─────────────────────────────────────────────────────────
	identityStore := identity.NewPostgresStore(pool)
	identityKV := identity.NewRedisStore(cache, cfg.LoginLockWindow(), cfg.LoginLockThreshold)
	workspaceStore := workspace.NewPostgresStore(pool)
	timerStore := timer.NewPostgresStore(pool)
	timerBackup := presence.NewRedisBackup(cache)

	// ── 5. Guard & Realtime ───────────────────────────────────────────────
	authority := guard.NewAuthority(workspaceStore)
	limiter := guard.NewRateLimiter(cache, cfg.RateLimitGeneralPerMin, cfg.RateLimitAuthPerMin)

	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, logger)
	hub := presence.NewHub(broadcaster, logger)

	// Warm-start the presence hub from the store; fall back to the KV
	// mirror if the store listing fails right now.
	if err := hub.Reload(rootCtx, timerStore); err != nil {
		logger.Warn("presence_reload_store_failed", slog.Any("error", err))
		if err := hub.Reload(rootCtx, timerBackup); err != nil {
			logger.Warn("presence_reload_backup_failed", slog.Any("error", err))
		}
	}

	// ── 6. Services ───────────────────────────────────────────────────────
	identityService := identity.NewService(identity.ServiceParams{
		Users:         identityStore,
		Sessions:      identityStore,
		Revocations:   identityKV,
		Attempts:      identityKV,
		Tokens:        tokenService,
		Connections:   registry,
		HashParams:    hashParams,
		AccessTTL:     cfg.AccessTTL(),
		RefreshTTL:    cfg.RefreshTTL(),
		LockThreshold: cfg.LoginLockThreshold,
		Logger:        logger,
	})

	timerService := timer.NewService(timer.ServiceParams{
		Store:      timerStore,
		Workspaces: workspaceStore,
		Users:      identityStore,
		Authority:  authority,
		Hub:        hub,
		Backup:     timerBackup,
		Sink:       broadcaster,
		Logger:     logger,
	})

	// ── 7. HTTP Surface ───────────────────────────────────────────────────
	realtimeHandler := realtime.NewHandler(realtime.HandlerParams{
		Verifier:      tokenService,
		Revocations:   identityKV,
		Teams:         workspaceStore,
		Registry:      registry,
		Hub:           hub,
		IdleTimeout:   cfg.WSIdleTimeout(),
		QueueCap:      cfg.WSOutboundQueueCap,
		IsDevelopment: cfg.IsDevelopment(),
		Logger:        logger,
	})

	handler := api.NewServer(api.ServerParams{
		Config:    cfg,
		Logger:    logger,
		Pool:      pool,
		Redis:     cache,
		Limiter:   limiter,
		Verifier:  tokenService,
		Identity: identity.NewHandler(identityService, cfg.RefreshTTL(), cfg.IsProduction(),
			middleware.RateLimit(limiter, constants.RateLimitBucketAuth)),
		Timer:     timer.NewHandler(timerService),
		Workspace: workspace.NewHandler(workspaceStore),
		Realtime:  realtimeHandler,
	})

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler,
		ReadTimeout:       constants.DefaultReadTimeout,
		WriteTimeout:      constants.DefaultWriteTimeout,
		IdleTimeout:       constants.DefaultIdleTimeout,
		ReadHeaderTimeout: constants.DefaultReadHeaderTimeout,
	}

	// Websocket connections are long-lived; the server-level write timeout
	// would sever them. The upgrade path opts out via per-write deadlines.
	server.WriteTimeout = 0

	// ── 8. Serve & Shutdown ───────────────────────────────────────────────
	group, groupCtx := errgroup.WithContext(rootCtx)

	group.Go(func() error {
		logger.Info("http_server_listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		hub.ReloadEvery(groupCtx, timerStore, constants.PresenceReloadInterval)
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown_started")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		return err
	}

	logger.Info("shutdown_complete")
	return nil
}

// loadHashParams applies the optional PASSWORD_HASH_PARAMS override
// ("m=<KiB>,t=<iterations>,p=<parallelism>") on top of the defaults.
func loadHashParams(cfg *config.Config, logger *slog.Logger) sec.HashParams {
	params := sec.DefaultHashParams()
	if cfg.PasswordHashParams == "" {
		return params
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(cfg.PasswordHashParams, "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		logger.Warn("password_hash_params_invalid",
			slog.String("value", cfg.PasswordHashParams),
			slog.Any("error", err),
		)
		return params
	}

	params.MemoryKiB = memory
	params.Iterations = iterations
	params.Parallelism = parallelism
	return params
}
