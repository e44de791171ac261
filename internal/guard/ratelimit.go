// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package guard implements the access-control plane that sits between the HTTP
boundary and the domain services.

It owns three concerns:

  - Rate limiting: per-IP event budgets counted in the KV (sliding minute window).
  - Tenancy scoping: deriving the company filter every store query must carry.
  - Authority: the single place where roles are interpreted into permissions.

Domain components never inspect roles themselves; they receive a [Scope] and
trust that the guard has already answered "may this caller do this at all".
*/
package guard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/ctxutil"
)

// # KV Rate Limiter

// RateLimiter enforces per-IP event budgets using atomic KV counters.
//
// # Algorithm
//
// Each (bucket, ip) pair owns one counter per minute window, keyed
// "ratelimit:{bucket}:{ip}:{minute}" with a TTL of one window. INCR is atomic,
// so concurrent requests across service instances share the same budget.
type RateLimiter struct {
	client   *redis.Client
	limits   map[string]int // bucket name → events per window
	fallback *localFallback
}

// NewRateLimiter constructs a limiter with the two standard buckets.
func NewRateLimiter(client *redis.Client, generalPerMin, authPerMin int) *RateLimiter {
	return &RateLimiter{
		client: client,
		limits: map[string]int{
			constants.RateLimitBucketGeneral: generalPerMin,
			constants.RateLimitBucketAuth:    authPerMin,
		},
		fallback: newLocalFallback(),
	}
}

// Allow reports whether the request fits the bucket's budget, and if not,
// how long the caller should wait before retrying.
//
// # Failure Mode
//
// KV increments are retried up to 3 times with exponential backoff. If the KV
// stays unreachable the limiter fails OPEN onto a per-IP in-process token
// bucket: a degraded cache must not turn into a platform-wide denial of service.
func (limiter *RateLimiter) Allow(request *http.Request, bucket, ip string) (allowed bool, retryAfter time.Duration) {
	limit, known := limiter.limits[bucket]
	if !known || limit <= 0 {
		return true, 0
	}

	ctx, cancel := context.WithTimeout(request.Context(), constants.KVCallTimeout)
	defer cancel()

	now := time.Now()
	window := now.Truncate(constants.RateLimitWindow)
	key := fmt.Sprintf("%s%s:%s:%d", constants.RedisPrefixRateLimit, bucket, ip, window.Unix())

	count, err := limiter.increment(ctx, key)
	if err != nil {
		// KV is down: degrade to the local limiter for this IP.
		ctxutil.GetLogger(request.Context()).Warn("rate_limit_kv_degraded",
			slog.String("bucket", bucket),
			slog.Any("error", err),
		)
		limitPerSecond := rate.Limit(float64(limit) / constants.RateLimitWindow.Seconds())
		if limiter.fallback.allow(ip, limitPerSecond, limit) {
			return true, 0
		}
		return false, constants.RateLimitWindow
	}

	if count > int64(limit) {
		// Budget exhausted until the current window rolls over.
		return false, window.Add(constants.RateLimitWindow).Sub(now)
	}

	return true, 0
}

// increment bumps the window counter atomically and pins its TTL.
//
// Retries on transient KV errors are bounded (3 attempts, exponential backoff)
// per the platform's local-recovery policy; anything else surfaces immediately.
func (limiter *RateLimiter) increment(ctx context.Context, key string) (int64, error) {
	var lastErr error

	for attempt := 0; attempt < constants.RateLimitKVRetries; attempt++ {
		if attempt > 0 {
			backoff := constants.RateLimitKVRetryBase << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}

		pipe := limiter.client.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, constants.RateLimitWindow)

		if _, err := pipe.Exec(ctx); err != nil {
			lastErr = err
			continue
		}

		return incr.Val(), nil
	}

	return 0, fmt.Errorf("guard: rate limit increment failed after %d attempts: %w", constants.RateLimitKVRetries, lastErr)
}

// # Local Fallback

// localFallback is the in-process token-bucket limiter used only while the
// KV is unreachable. Entries are evicted after a few idle minutes.
type localFallback struct {
	mu      sync.Mutex
	clients map[string]*fallbackClient
}

type fallbackClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const fallbackClientTTL = 3 * time.Minute

func newLocalFallback() *localFallback {
	return &localFallback{clients: make(map[string]*fallbackClient)}
}

func (f *localFallback) allow(ip string, limit rate.Limit, burst int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, found := f.clients[ip]
	if !found {
		client = &fallbackClient{limiter: rate.NewLimiter(limit, burst)}
		f.clients[ip] = client
	}
	client.lastSeen = time.Now()

	// Opportunistic cleanup of idle entries while we hold the lock.
	for trackedIP, info := range f.clients {
		if time.Since(info.lastSeen) > fallbackClientTTL {
			delete(f.clients, trackedIP)
		}
	}

	return client.limiter.Allow()
}
