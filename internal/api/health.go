// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package api

import (
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/postgres"
	"github.com/temporahq/tempora/internal/platform/redis"
	"github.com/temporahq/tempora/internal/platform/respond"
)

// # Health Endpoints

// HealthHandler answers orchestrator probes.
type HealthHandler struct {
	pool  *pgxpool.Pool
	cache *goredis.Client
}

// NewHealthHandler creates the probe handler.
func NewHealthHandler(pool *pgxpool.Pool, cache *goredis.Client) *HealthHandler {
	return &HealthHandler{pool: pool, cache: cache}
}

// Liveness handles GET /health: the process is up and serving.
func (handler *HealthHandler) Liveness(writer http.ResponseWriter, request *http.Request) {
	respond.JSON(writer, http.StatusOK, map[string]string{
		constants.FieldStatus: "ok",
		"service":             constants.AppName,
		"version":             constants.AppVersion,
	})
}

// Readiness handles GET /ready: the process can reach its dependencies.
func (handler *HealthHandler) Readiness(writer http.ResponseWriter, request *http.Request) {
	checks := map[string]string{
		"postgres": "ok",
		"redis":    "ok",
	}
	status := http.StatusOK

	if err := postgres.Ping(request.Context(), handler.pool); err != nil {
		checks["postgres"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if err := redis.Ping(request.Context(), handler.cache); err != nil {
		checks["redis"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	respond.JSON(writer, status, checks)
}
