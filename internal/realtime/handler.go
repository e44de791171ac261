// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/respond"
	"github.com/temporahq/tempora/internal/platform/sec"
	"github.com/temporahq/tempora/internal/presence"
)

// # Websocket Handler

// TokenVerifier verifies the access token presented at upgrade time.
type TokenVerifier interface {
	VerifyTokenKind(tokenStr, kind string) (*sec.AuthClaims, error)
}

// TeamResolver yields the team memberships pinned to a connection.
type TeamResolver interface {
	TeamIDsForUser(context context.Context, userID string) ([]string, error)
}

// Handler upgrades HTTP requests into registered websocket sessions.
type Handler struct {
	verifier    TokenVerifier
	revocations RevocationChecker
	teams       TeamResolver
	registry    *Registry
	hub         *presence.Hub

	idleTimeout time.Duration
	queueCap    int
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

// HandlerParams carries the dependencies of [NewHandler].
type HandlerParams struct {
	Verifier    TokenVerifier
	Revocations RevocationChecker
	Teams       TeamResolver
	Registry    *Registry
	Hub         *presence.Hub

	IdleTimeout   time.Duration
	QueueCap      int
	IsDevelopment bool
	Logger        *slog.Logger
}

// NewHandler creates the websocket endpoint handler.
func NewHandler(params HandlerParams) *Handler {
	handler := &Handler{
		verifier:    params.Verifier,
		revocations: params.Revocations,
		teams:       params.Teams,
		registry:    params.Registry,
		hub:         params.Hub,
		idleTimeout: params.IdleTimeout,
		queueCap:    params.QueueCap,
		logger:      params.Logger,
	}

	handler.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(request *http.Request) bool {
			origin := request.Header.Get(constants.HeaderOrigin)
			if origin == "" || params.IsDevelopment {
				return true
			}
			return strings.HasSuffix(origin, "tempora.app")
		},
	}

	return handler
}

// ServeHTTP handles GET /ws?token=<access-token>.
//
// Browsers cannot attach an Authorization header to a websocket handshake,
// so the access token travels in the query string. Verification happens
// BEFORE the upgrade: a bad token gets a plain 401, never a socket.
func (handler *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {

	// ── 1. Authenticate the Handshake ─────────────────────────────────────
	token := request.URL.Query().Get("token")
	if token == "" {
		respond.Error(writer, request, apperr.Unauthorized("Missing token"))
		return
	}

	claims, err := handler.verifier.VerifyTokenKind(token, sec.TokenKindAccess)
	if err != nil {
		respond.Error(writer, request, apperr.Unauthorized("Invalid or expired token"))
		return
	}

	revoked, err := handler.revocations.IsRevoked(request.Context(), claims.JTI())
	if err != nil {
		handler.logger.Warn("ws_handshake_revocation_degraded", slog.Any("error", err))
	}
	if revoked {
		respond.Error(writer, request, apperr.Unauthorized("Token has been revoked"))
		return
	}

	// ── 2. Resolve the Connection's Scope ─────────────────────────────────
	teamIDs, err := handler.teams.TeamIDsForUser(request.Context(), claims.UserID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var companyID *string
	if claims.CompanyID != "" {
		id := claims.CompanyID
		companyID = &id
	}

	// ── 3. Upgrade & Register ─────────────────────────────────────────────
	socket, err := handler.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		handler.logger.Warn("ws_upgrade_failed", slog.Any("error", err))
		return
	}

	connection := newConnection(socket, connIdentity{
		userID:    claims.UserID,
		companyID: companyID,
		teamIDs:   teamIDs,
		jti:       claims.JTI(),
		expiresAt: claims.ExpiresAt.Time,
	}, handler.queueCap, handler.idleTimeout, handler.logger)

	handler.registry.Add(connection)

	handler.logger.Info("ws_connection_opened",
		slog.String("user_id", claims.UserID),
		slog.Int("connections", handler.registry.Count()),
	)

	// ── 4. Serve ──────────────────────────────────────────────────────────
	go connection.writePump(handler.revocations)
	go connection.readPump(handler.snapshotSource(), func() {
		handler.registry.Remove(connection)
	})
}

// snapshotSource adapts the presence hub to the connection's command loop.
func (handler *Handler) snapshotSource() SnapshotSource {
	return func(companyID *string, teamID string) (interface{}, uint64) {
		return handler.hub.Snapshot(companyID, teamID), handler.hub.Seq()
	}
}
