// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package api is the composition root of the HTTP surface.

It assembles the middleware chain, mounts every domain handler under
/api/v1, and exposes the health endpoints and the websocket upgrade path.
*/
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/temporahq/tempora/internal/identity"
	"github.com/temporahq/tempora/internal/platform/config"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/middleware"
	"github.com/temporahq/tempora/internal/realtime"
	"github.com/temporahq/tempora/internal/timer"
	"github.com/temporahq/tempora/internal/workspace"
)

// # Server Assembly

// ServerParams carries the assembled components of [NewServer].
type ServerParams struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Limiter  middleware.Limiter
	Verifier middleware.TokenVerifier

	Identity  *identity.Handler
	Timer     *timer.Handler
	Workspace *workspace.Handler
	Realtime  *realtime.Handler
}

// NewServer builds the root router with the full middleware chain.
//
// # Chain Order
//
// RequestID and logging come first so every later stage (including rate
// limit rejections) is traceable. Authentication runs before the routers so
// claims are available everywhere; the credential endpoints add their own
// stricter rate-limit bucket on top of the general one.
func NewServer(params ServerParams) http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.CleanPath)
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(params.Logger))
	router.Use(middleware.PanicRecovery(params.Logger))
	router.Use(middleware.CORS(params.Config))
	router.Use(chimiddleware.Timeout(constants.GlobalRequestTimeout))
	router.Use(middleware.Authenticate(params.Verifier))

	// Health endpoints stay outside the rate limiter: orchestrators probe
	// them aggressively and must never be throttled.
	health := NewHealthHandler(params.Pool, params.Redis)
	router.Get("/health", health.Liveness)
	router.Get("/ready", health.Readiness)

	router.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RateLimit(params.Limiter, constants.RateLimitBucketGeneral))

		// The identity router applies the stricter credential bucket to
		// login and refresh itself; /me and /logout ride the general one.
		api.Mount("/auth", params.Identity.Routes())

		api.Mount("/time", params.Timer.Routes())
		api.Mount("/", params.Workspace.Routes())
	})

	// Websocket upgrade: authentication happens inside the handler (the
	// token rides in the query string, not the Authorization header).
	router.Method(http.MethodGet, "/ws", params.Realtime)

	return router
}
