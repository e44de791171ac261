// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/temporahq/tempora/internal/platform/constants"
)

// backupTTL bounds how long a stale backup can linger if its cleanup write
// was lost. Running timers older than this are almost certainly abandoned.
const backupTTL = 24 * time.Hour

// RedisBackup mirrors running timers into the KV as a warm-start fallback.
//
// The database remains the source of truth; this mirror exists so the hub can
// still be rebuilt when the store is briefly unavailable during startup.
type RedisBackup struct {
	client *redis.Client
}

// NewRedisBackup creates the KV mirror for running timers.
func NewRedisBackup(client *redis.Client) *RedisBackup {
	return &RedisBackup{client: client}
}

// Save mirrors one running timer. Failures are the caller's to log; the
// mirror is advisory and must never fail a start operation.
func (backup *RedisBackup) Save(context context.Context, timer ActiveTimer) error {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	payload, err := json.Marshal(timer)
	if err != nil {
		return fmt.Errorf("presence_backup_encode_failed: %w", err)
	}

	key := constants.RedisPrefixTimerBackup + timer.UserID
	if err := backup.client.Set(callCtx, key, payload, backupTTL).Err(); err != nil {
		return fmt.Errorf("presence_backup_save_failed: %w", err)
	}

	return nil
}

// Clear removes a user's mirrored timer after a stop.
func (backup *RedisBackup) Clear(context context.Context, userID string) error {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	key := constants.RedisPrefixTimerBackup + userID
	if err := backup.client.Del(callCtx, key).Err(); err != nil {
		return fmt.Errorf("presence_backup_clear_failed: %w", err)
	}

	return nil
}

// ListRunning implements [ReloadSource] against the mirror, for the startup
// path where the primary store cannot be reached.
func (backup *RedisBackup) ListRunning(context context.Context) ([]ActiveTimer, error) {
	callCtx, cancel := withKVTimeout(context)
	defer cancel()

	var timers []ActiveTimer
	var cursor uint64

	for {
		keys, next, err := backup.client.Scan(callCtx, cursor, constants.RedisPrefixTimerBackup+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("presence_backup_scan_failed: %w", err)
		}

		for _, key := range keys {
			raw, err := backup.client.Get(callCtx, key).Bytes()
			if err != nil {
				// Expired between SCAN and GET.
				continue
			}

			var timer ActiveTimer
			if err := json.Unmarshal(raw, &timer); err != nil {
				continue
			}
			timers = append(timers, timer)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return timers, nil
}

func withKVTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.KVCallTimeout)
}
