// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/temporahq/tempora/internal/platform/constants"
)

// # KV Store

// RedisStore implements [RevocationList] and [AttemptCounter] on the KV.
//
// Everything here is volatile by design: revocation entries expire with the
// tokens they deny, and attempt counters expire with the lockout window.
type RedisStore struct {
	client     *redis.Client
	lockWindow time.Duration
	threshold  int
}

// NewRedisStore creates the volatile store for token revocation and lockouts.
func NewRedisStore(client *redis.Client, lockWindow time.Duration, lockThreshold int) *RedisStore {
	return &RedisStore{
		client:     client,
		lockWindow: lockWindow,
		threshold:  lockThreshold,
	}
}

// # Revocation List

// Revoke implements [RevocationList]. The entry lives exactly as long as the
// token could still pass signature verification.
func (store *RedisStore) Revoke(context context.Context, jti string, timeToLive time.Duration) error {
	if timeToLive <= 0 {
		// Already expired: nothing left to deny.
		return nil
	}

	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	key := constants.RedisPrefixRevoked + jti
	if err := store.client.Set(callCtx, key, "1", timeToLive).Err(); err != nil {
		return fmt.Errorf("identity_revoke_jti_failed: %w", err)
	}

	return nil
}

// IsRevoked implements [RevocationList].
func (store *RedisStore) IsRevoked(context context.Context, jti string) (bool, error) {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	key := constants.RedisPrefixRevoked + jti
	if err := store.client.Get(callCtx, key).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("identity_check_revoked_failed: %w", err)
	}

	return true, nil
}

// # Login Attempt Counters

// attemptKey normalizes the submitted identity before keying the counter, so
// "User@Example.com" and "user@example.com" share one budget.
func attemptKey(identity string) string {
	return constants.RedisPrefixAttempts + strings.ToLower(strings.TrimSpace(identity))
}

// attemptOriginKey keys the parallel per-IP failure counter.
func attemptOriginKey(origin string) string {
	return constants.RedisPrefixAttempts + "ip:" + origin
}

// Record implements [AttemptCounter]. Each counter's TTL is set on its first
// failure and NOT extended afterwards: the lockout window is anchored to the
// start of the burst, not to its most recent attempt.
func (store *RedisStore) Record(context context.Context, identity, origin string) (int64, error) {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	count, err := store.bump(callCtx, attemptKey(identity))
	if err != nil {
		return 0, err
	}

	if origin != "" {
		if _, err := store.bump(callCtx, attemptOriginKey(origin)); err != nil {
			return count, err
		}
	}

	return count, nil
}

// bump increments one failure counter, starting its window on the transition
// from absent to 1.
func (store *RedisStore) bump(callCtx context.Context, key string) (int64, error) {
	count, err := store.client.Incr(callCtx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("identity_record_attempt_failed: %w", err)
	}

	if count == 1 {
		if err := store.client.Expire(callCtx, key, store.lockWindow).Err(); err != nil {
			return count, fmt.Errorf("identity_attempt_expire_failed: %w", err)
		}
	}

	return count, nil
}

// IsLocked implements [AttemptCounter]. retryAfter is the counter's remaining
// TTL, rounded up so the client never retries a second too early.
func (store *RedisStore) IsLocked(context context.Context, identity string) (locked bool, retryAfter time.Duration, err error) {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	key := attemptKey(identity)

	count, err := store.client.Get(callCtx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("identity_check_lock_failed: %w", err)
	}

	if count < int64(store.threshold) {
		return false, 0, nil
	}

	remaining, err := store.client.TTL(callCtx, key).Result()
	if err != nil {
		return true, store.lockWindow, nil
	}
	if remaining <= 0 {
		remaining = store.lockWindow
	}

	return true, remaining.Round(time.Second), nil
}

// Clear implements [AttemptCounter]. A successful login wipes both counters.
func (store *RedisStore) Clear(context context.Context, identity, origin string) error {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	keys := []string{attemptKey(identity)}
	if origin != "" {
		keys = append(keys, attemptOriginKey(origin))
	}

	if err := store.client.Del(callCtx, keys...).Err(); err != nil {
		return fmt.Errorf("identity_clear_attempts_failed: %w", err)
	}

	return nil
}

// withKVTimeout caps a KV round-trip at the platform deadline.
func withKVTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.KVCallTimeout)
}
