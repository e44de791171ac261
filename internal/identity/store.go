// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"context"
	"time"
)

// # Storage Contracts

// UserStore is the persistence boundary for account records.
type UserStore interface {
	// FindByEmail returns the account for a normalized (lowercase) email.
	// Soft-deleted accounts are excluded.
	FindByEmail(context context.Context, email string) (*User, error)

	// FindByID returns the account by primary key.
	FindByID(context context.Context, userID string) (*User, error)

	// UpdatePasswordHash replaces the stored credential hash. Used for the
	// transparent upgrade of legacy hashes after a successful login.
	UpdatePasswordHash(context context.Context, userID, passwordHash string) error
}

// SessionStore is the persistence boundary for refresh-token lineages.
type SessionStore interface {
	// Create records a freshly issued refresh token.
	Create(context context.Context, session *Session) error

	// FindByJTI returns the session for a refresh token's unique ID.
	FindByJTI(context context.Context, jti string) (*Session, error)

	// Rotate atomically marks the old session rotated and records its
	// successor. Both writes happen in one transaction so a crash can never
	// leave a lineage with two live heads.
	Rotate(context context.Context, oldJTI string, successor *Session) error

	// Revoke terminates a single session.
	Revoke(context context.Context, jti string) error

	// RevokeAllForUser terminates every live session of a user. Invoked on
	// logout-everywhere and on refresh-token replay detection.
	RevokeAllForUser(context context.Context, userID string) error
}

// RevocationList is the volatile deny-list of token IDs.
//
// Entries carry the token's remaining lifetime as TTL, so the list never
// outgrows the set of tokens that could still verify.
type RevocationList interface {
	Revoke(context context.Context, jti string, timeToLive time.Duration) error
	IsRevoked(context context.Context, jti string) (bool, error)
}

// AttemptCounter tracks failed login attempts per identity string, with a
// parallel counter per origin IP.
//
// The primary counter is keyed by the submitted identity (not by account
// row), so probing unknown emails is throttled exactly like guessing
// passwords for real ones. The origin counter records where the failures
// come from, feeding forensics and future per-IP throttles.
type AttemptCounter interface {
	// Record bumps both failure counters and returns the identity total.
	Record(context context.Context, identity, origin string) (int64, error)

	// IsLocked reports whether the identity is under a lockout window and,
	// if so, how long until the window expires.
	IsLocked(context context.Context, identity string) (locked bool, retryAfter time.Duration, err error)

	// Clear resets both counters after a successful login.
	Clear(context context.Context, identity, origin string) error
}
