// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/platform/sec"
	"github.com/temporahq/tempora/internal/platform/validate"
	"github.com/temporahq/tempora/pkg/pointer"
	"github.com/temporahq/tempora/pkg/uuid"
)

// # Service Contracts

// TokenProvider issues and verifies signed bearer tokens.
//
// # Why an interface?
//
// The concrete implementation is [sec.TokenService]. Tests substitute a
// deterministic provider to exercise rotation and replay paths without keys.
type TokenProvider interface {
	GenerateToken(userID, companyID, role, kind string, timeToLive time.Duration) (token string, jti string, err error)
	VerifyTokenKind(tokenString, kind string) (*sec.AuthClaims, error)
}

// ConnectionCloser terminates a user's live realtime connections. Implemented
// by the realtime registry; nil disables the close-out (tests).
type ConnectionCloser interface {
	CloseUser(userID, reason string)
}

// # Identity Service

// Service implements the authentication use-cases.
type Service struct {
	users       UserStore
	sessions    SessionStore
	revocations RevocationList
	attempts    AttemptCounter
	tokens      TokenProvider
	connections ConnectionCloser

	hashParams    sec.HashParams
	accessTTL     time.Duration
	refreshTTL    time.Duration
	lockThreshold int

	logger *slog.Logger
}

// ServiceParams carries the dependencies of [NewService].
type ServiceParams struct {
	Users       UserStore
	Sessions    SessionStore
	Revocations RevocationList
	Attempts    AttemptCounter
	Tokens      TokenProvider
	Connections ConnectionCloser

	HashParams    sec.HashParams
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	LockThreshold int

	Logger *slog.Logger
}

// NewService wires the identity use-cases.
func NewService(params ServiceParams) *Service {
	return &Service{
		users:         params.Users,
		sessions:      params.Sessions,
		revocations:   params.Revocations,
		attempts:      params.Attempts,
		tokens:        params.Tokens,
		connections:   params.Connections,
		hashParams:    params.HashParams,
		accessTTL:     params.AccessTTL,
		refreshTTL:    params.RefreshTTL,
		lockThreshold: params.LockThreshold,
		logger:        params.Logger,
	}
}

// LoginInput carries the credentials plus the client context of one attempt.
type LoginInput struct {
	Email    string
	Password string
	// Origin is the client IP; failed attempts feed a per-origin counter
	// alongside the per-identity one.
	Origin string
	// Fingerprint is an opaque client hint stored on the refresh session.
	Fingerprint string
}

/*
Login verifies credentials and issues a fresh token pair.

Returns:
  - *LoginResult: The authenticated profile plus access/refresh tokens.
  - error: apperr.AccountLocked when the identity is under a lockout window,
    apperr.Unauthorized on bad credentials or deactivated accounts.

Failed attempts are counted per identity string, so probing for unknown
emails burns the same budget as guessing passwords for real ones. A parallel
counter tracks the origin IP.
*/
func (service *Service) Login(context context.Context, input LoginInput) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	// ── 1. Lockout Gate ───────────────────────────────────────────────────
	locked, retryAfter, err := service.attempts.IsLocked(context, email)
	if err != nil {
		// KV degraded: fail open rather than deny all logins platform-wide.
		service.logger.Warn("login_lockout_check_degraded", slog.Any("error", err))
	}
	if locked {
		return nil, apperr.AccountLocked(int(retryAfter.Seconds()))
	}

	// ── 2. Account Lookup ─────────────────────────────────────────────────
	user, err := service.users.FindByEmail(context, email)
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			return nil, service.recordFailure(context, email, input.Origin)
		}
		return nil, err
	}

	// ── 3. Credential Verification ────────────────────────────────────────
	matches, needsRehash := sec.VerifyPassword(input.Password, user.PasswordHash, service.hashParams)
	if !matches {
		return nil, service.recordFailure(context, email, input.Origin)
	}

	if !user.IsActive {
		// Valid credentials against a deactivated account: no counter bump,
		// but the response stays indistinguishable from a bad password.
		return nil, apperr.Unauthorized("Invalid credentials")
	}

	// ── 4. Post-Login Housekeeping ────────────────────────────────────────
	if err := service.attempts.Clear(context, email, input.Origin); err != nil {
		service.logger.Warn("login_attempt_clear_failed", slog.Any("error", err))
	}

	if needsRehash {
		service.upgradeHash(context, user, input.Password)
	}

	// ── 5. Token Issuance ─────────────────────────────────────────────────
	pair, err := service.issuePair(context, user, input.Fingerprint)
	if err != nil {
		return nil, err
	}

	service.logger.Info("login_succeeded",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return &LoginResult{User: user, Tokens: *pair}, nil
}

// recordFailure bumps the attempt counters and maps the outcome: the attempt
// that crosses the threshold already answers with the lockout.
func (service *Service) recordFailure(context context.Context, email, origin string) error {
	count, err := service.attempts.Record(context, email, origin)
	if err != nil {
		service.logger.Warn("login_attempt_record_failed", slog.Any("error", err))
		return apperr.Unauthorized("Invalid credentials")
	}

	if count >= int64(service.lockThreshold) {
		_, retryAfter, lockErr := service.attempts.IsLocked(context, email)
		if lockErr != nil || retryAfter <= 0 {
			retryAfter = time.Minute
		}
		return apperr.AccountLocked(int(retryAfter.Seconds()))
	}

	return apperr.Unauthorized("Invalid credentials")
}

// upgradeHash re-hashes a verified password under the current cost profile.
// Best effort: a failure here never blocks the login that triggered it.
func (service *Service) upgradeHash(context context.Context, user *User, password string) {
	upgraded, err := sec.HashPassword(password, service.hashParams)
	if err == nil {
		err = service.users.UpdatePasswordHash(context, user.ID, upgraded)
	}
	if err != nil {
		service.logger.Warn("password_hash_upgrade_failed",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		return
	}

	service.logger.Info("password_hash_upgraded", slog.String("user_id", user.ID))
}

/*
Refresh rotates a refresh token: the presented token is retired and a brand
new access/refresh pair is issued.

Rotation is strictly one-time-use. Presenting an already-rotated token is
treated as replay: every live session of the user is revoked, forcing a full
re-login on all devices.
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*TokenPair, error) {

	// ── 1. Signature & Kind ───────────────────────────────────────────────
	claims, err := service.tokens.VerifyTokenKind(refreshToken, sec.TokenKindRefresh)
	if err != nil {
		return nil, apperr.Unauthorized("Invalid refresh token")
	}

	// ── 2. Revocation Check ───────────────────────────────────────────────
	revoked, err := service.revocations.IsRevoked(context, claims.JTI())
	if err != nil {
		return nil, apperr.Transient(err)
	}
	if revoked {
		service.flagReplay(context, claims)
		return nil, apperr.Unauthorized("Refresh token is no longer valid")
	}

	// ── 3. Session Lineage ────────────────────────────────────────────────
	session, err := service.sessions.FindByJTI(context, claims.JTI())
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			return nil, apperr.Unauthorized("Unknown refresh token")
		}
		return nil, err
	}
	if !session.IsUsable(time.Now()) {
		if session.RotatedAt != nil {
			// The KV entry may have expired while the row persists. Same replay.
			service.flagReplay(context, claims)
		}
		return nil, apperr.Unauthorized("Refresh token is no longer valid")
	}

	// ── 4. Account Check ──────────────────────────────────────────────────
	user, err := service.users.FindByID(context, session.UserID)
	if err != nil || !user.IsActive {
		return nil, apperr.Unauthorized("Account is not active")
	}

	// ── 5. Atomic Rotation ────────────────────────────────────────────────
	pair, newJTI, newRefreshExpiry, err := service.mintPair(user)
	if err != nil {
		return nil, err
	}

	successor := &Session{
		ID:          uuid.New(),
		UserID:      user.ID,
		JTI:         newJTI,
		Fingerprint: session.Fingerprint, // the lineage keeps its client hint
		IssuedAt:    time.Now().UTC(),
		ExpiresAt:   newRefreshExpiry,
	}

	if err := service.sessions.Rotate(context, claims.JTI(), successor); err != nil {
		return nil, err
	}

	// ── 6. Deny-List the Retired Token ────────────────────────────────────
	remaining := time.Until(claims.ExpiresAt.Time)
	if err := service.revocations.Revoke(context, claims.JTI(), remaining); err != nil {
		service.logger.Warn("refresh_revoke_old_failed",
			slog.String("jti", claims.JTI()),
			slog.Any("error", err),
		)
	}

	service.logger.Info("refresh_rotated", slog.String("user_id", user.ID))

	return pair, nil
}

// flagReplay handles a replayed refresh token: the whole lineage is burned.
func (service *Service) flagReplay(context context.Context, claims *sec.AuthClaims) {
	service.logger.Warn("refresh_replay_detected",
		slog.String("user_id", claims.UserID),
		slog.String("jti", claims.JTI()),
	)

	if err := service.sessions.RevokeAllForUser(context, claims.UserID); err != nil {
		service.logger.Error("refresh_replay_revoke_all_failed",
			slog.String("user_id", claims.UserID),
			slog.Any("error", err),
		)
	}

	service.closeConnections(claims.UserID)
}

/*
Logout revokes the caller's current token pair.

The refresh session is terminated in the store and both token IDs enter the
KV deny-list for their remaining lifetimes. Realtime connections observe the
access-token revocation on their next heartbeat and close with "revoked".
*/
func (service *Service) Logout(context context.Context, accessClaims *sec.AuthClaims, refreshToken string) error {

	// ── 1. Retire the Refresh Lineage ─────────────────────────────────────
	if refreshToken != "" {
		claims, err := service.tokens.VerifyTokenKind(refreshToken, sec.TokenKindRefresh)
		if err == nil && claims.UserID == accessClaims.UserID {
			if err := service.sessions.Revoke(context, claims.JTI()); err != nil {
				return err
			}
			if err := service.revocations.Revoke(context, claims.JTI(), time.Until(claims.ExpiresAt.Time)); err != nil {
				service.logger.Warn("logout_refresh_revoke_failed", slog.Any("error", err))
			}
		}
	}

	// ── 2. Deny-List the Access Token ─────────────────────────────────────
	if err := service.revocations.Revoke(context, accessClaims.JTI(), time.Until(accessClaims.ExpiresAt.Time)); err != nil {
		return apperr.Transient(err)
	}

	// ── 3. Close Live Connections ─────────────────────────────────────────
	// Realtime sessions end with the tokens that opened them; no need to
	// wait for the next heartbeat's revocation probe.
	service.closeConnections(accessClaims.UserID)

	service.logger.Info("logout_succeeded", slog.String("user_id", accessClaims.UserID))

	return nil
}

/*
ChangePassword replaces the caller's credential after verifying the current one.

The new password must satisfy the platform policy (length, character classes,
denylist); violations surface as apperr.WeakPassword. On success every
refresh lineage of the user is revoked — other devices must log in again
with the new credential.
*/
func (service *Service) ChangePassword(context context.Context, userID, currentPassword, newPassword string) error {
	user, err := service.users.FindByID(context, userID)
	if err != nil {
		return err
	}

	matches, _ := sec.VerifyPassword(currentPassword, user.PasswordHash, service.hashParams)
	if !matches {
		return apperr.Unauthorized("Current password is incorrect")
	}

	if err := validate.New().Password("new_password", newPassword).PasswordError(); err != nil {
		return err
	}

	hashed, err := sec.HashPassword(newPassword, service.hashParams)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := service.users.UpdatePasswordHash(context, userID, hashed); err != nil {
		return err
	}

	if err := service.sessions.RevokeAllForUser(context, userID); err != nil {
		service.logger.Warn("password_change_revoke_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	service.closeConnections(userID)

	service.logger.Info("password_changed", slog.String("user_id", userID))

	return nil
}

// closeConnections drops the user's realtime connections with the revocation
// reason. No-op when the service runs without a realtime layer.
func (service *Service) closeConnections(userID string) {
	if service.connections == nil {
		return
	}
	service.connections.CloseUser(userID, constants.CloseReasonRevoked)
}

// Me returns the authenticated user's own profile.
func (service *Service) Me(context context.Context, userID string) (*User, error) {
	return service.users.FindByID(context, userID)
}

// # Token Minting

// mintPair signs a fresh access/refresh pair without persisting anything.
func (service *Service) mintPair(user *User) (*TokenPair, string, time.Time, error) {
	companyID := pointer.Val(user.CompanyID)

	access, _, err := service.tokens.GenerateToken(user.ID, companyID, user.Role, sec.TokenKindAccess, service.accessTTL)
	if err != nil {
		return nil, "", time.Time{}, apperr.Internal(err)
	}

	refresh, refreshJTI, err := service.tokens.GenerateToken(user.ID, companyID, user.Role, sec.TokenKindRefresh, service.refreshTTL)
	if err != nil {
		return nil, "", time.Time{}, apperr.Internal(err)
	}

	pair := &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(service.accessTTL.Seconds()),
	}

	return pair, refreshJTI, time.Now().UTC().Add(service.refreshTTL), nil
}

// issuePair mints a pair and records the refresh session.
func (service *Service) issuePair(context context.Context, user *User, fingerprint string) (*TokenPair, error) {
	pair, refreshJTI, refreshExpiry, err := service.mintPair(user)
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:          uuid.New(),
		UserID:      user.ID,
		JTI:         refreshJTI,
		Fingerprint: fingerprint,
		IssuedAt:    time.Now().UTC(),
		ExpiresAt:   refreshExpiry,
	}

	if err := service.sessions.Create(context, session); err != nil {
		return nil, err
	}

	return pair, nil
}
