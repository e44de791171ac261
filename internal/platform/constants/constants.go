// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package constants provides centralized, immutable values for the entire platform.

It defines default timeouts, rate limits, and cross-cutting keys that are shared
between different layers of the system.

Categories:

  - Server Timing: Read/Write/Idle timeouts for the HTTP server.
  - Rate Limiting: Window sizes and bucket names for the KV limiter.
  - Security: JWT issuer and cookie configuration.
  - Realtime: Heartbeat cadence and queue sizing for the broadcast layer.

Using this package ensures Magic Strings and Magic Numbers are eliminated
from the business logic.
*/
package constants

import "time"

// # Metadata

const (
	AppName    = "tempora-api"
	AppVersion = "0.1.0-dev"
)

// # Server Timing

const (
	// DefaultReadTimeout is the maximum duration for reading the entire request.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the maximum duration before timing out writes of the response.
	DefaultWriteTimeout = 10 * time.Second

	// DefaultIdleTimeout is the maximum amount of time to wait for the next request.
	DefaultIdleTimeout = 120 * time.Second

	// DefaultReadHeaderTimeout is the amount of time allowed to read request headers.
	DefaultReadHeaderTimeout = 2 * time.Second

	// GlobalRequestTimeout is the deadline for the entire request lifecycle.
	GlobalRequestTimeout = 30 * time.Second

	// StoreCallTimeout is the per-operation deadline for PostgreSQL round-trips.
	StoreCallTimeout = 10 * time.Second

	// KVCallTimeout is the per-operation deadline for Redis round-trips.
	KVCallTimeout = 2 * time.Second

	// ShutdownTimeout is how long we wait for in-flight requests to complete during shutdown.
	ShutdownTimeout = 30 * time.Second

	// PresenceReloadInterval is how often the presence hub re-syncs itself
	// from the store's running entries.
	PresenceReloadInterval = 5 * time.Minute
)

// # Rate Limiting

const (
	// RateLimitBucketGeneral is the KV bucket for all guarded operations.
	RateLimitBucketGeneral = "general"

	// RateLimitBucketAuth is the stricter KV bucket for login/refresh endpoints.
	RateLimitBucketAuth = "auth"

	// RateLimitWindow is the sliding-window length for KV counters.
	RateLimitWindow = time.Minute

	// RateLimitKVRetries bounds the internal retries of a counter increment
	// on transient KV failure.
	RateLimitKVRetries = 3

	// RateLimitKVRetryBase is the base delay for the exponential backoff
	// between counter increment retries.
	RateLimitKVRetryBase = 25 * time.Millisecond
)

// # Authentication

const (
	// AuthIssuer is the standard 'iss' claim in JWTs.
	AuthIssuer = "tempora.app"

	// RefreshTokenCookieName is the name of the cookie that mirrors the refresh token.
	RefreshTokenCookieName = "refresh_token"

	// RefreshTokenCookiePath is the scoped path for the refresh token cookie.
	RefreshTokenCookiePath = "/api/v1/auth"
)

// # Realtime Channel

const (
	// HeartbeatInterval is how often the server pings each websocket connection.
	HeartbeatInterval = 30 * time.Second

	// WriteWait is the deadline for a single websocket write.
	WriteWait = 10 * time.Second

	// CloseReasonUnauthenticated is sent when the opening token fails verification.
	CloseReasonUnauthenticated = "unauthenticated"

	// CloseReasonSlowConsumer is sent when a connection's outbound queue overflows.
	CloseReasonSlowConsumer = "slow_consumer"

	// CloseReasonRevoked is sent when the connection's token is revoked or the
	// user is deactivated mid-session.
	CloseReasonRevoked = "revoked"
)

// # HTTP Headers

const (
	HeaderXRequestID    = "X-Request-ID"
	HeaderXRealIP       = "X-Real-IP"
	HeaderXForwardedFor = "X-Forwarded-For"
	HeaderOrigin        = "Origin"
)

// # JSON Field Identifiers

const (
	FieldData    = "data"
	FieldMeta    = "meta"
	FieldError   = "error"
	FieldCode    = "code"
	FieldDetails = "details"
	FieldMessage = "message"
	FieldStatus  = "status"
)

// # Redis Prefixes (Cache Taxonomy)

const (
	RedisPrefixRateLimit   = "ratelimit:"
	RedisPrefixAttempts    = "attempts:"
	RedisPrefixRevoked     = "revoked:"
	RedisPrefixTimerBackup = "active_timer_backup:"
)
