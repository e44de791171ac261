// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package identity owns accounts, credentials, and the token lifecycle.

It implements the authentication surface of the API:

  - Login: credential verification with lockout protection.
  - Refresh: one-time-use rotation of refresh tokens.
  - Logout: revocation of the active token pair.
  - Me: the authenticated user's own profile.

Persistent state lives in PostgreSQL (users, refresh_sessions); volatile state
(revoked token IDs, failed-attempt counters) lives in the KV with TTLs.
*/
package identity

import "time"

// # Entities

// User represents an account within the platform.
//
// CompanyID is nil only for super admins, which are platform-scoped and not
// bound to any tenant.
type User struct {
	ID           string     `json:"id"`
	CompanyID    *string    `json:"company_id,omitempty"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Role         string     `json:"role"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"-"`
}

// FullName returns the user's display name.
func (user *User) FullName() string {
	return user.FirstName + " " + user.LastName
}

// Session is one refresh-token lineage entry in refresh_sessions.
//
// Each issued refresh token is tracked by its JTI. Rotation marks the current
// row rotated and inserts a successor; a rotated JTI presented again is a
// replay and voids the whole lineage.
type Session struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	JTI       string `json:"jti"`
	// Fingerprint is an opaque client hint (user agent) captured at login and
	// carried across rotations, for session listings and abuse forensics.
	Fingerprint string     `json:"-"`
	IssuedAt    time.Time  `json:"issued_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	RotatedAt   *time.Time `json:"rotated_at,omitempty"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// IsUsable reports whether the session can still mint a successor.
func (session *Session) IsUsable(now time.Time) bool {
	return session.RotatedAt == nil &&
		session.RevokedAt == nil &&
		now.Before(session.ExpiresAt)
}

// # Wire Payloads

// TokenPair is the credential set returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// LoginResult bundles the issued tokens with the authenticated profile.
type LoginResult struct {
	User   *User     `json:"user"`
	Tokens TokenPair `json:"tokens"`
}
