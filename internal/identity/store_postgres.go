// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/constants"
)

// # PostgreSQL Store

// PostgresStore implements [UserStore] and [SessionStore] on pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the relational store for accounts and sessions.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const userColumns = `
	id, company_id, email, password_hash, first_name, last_name,
	role, is_active, created_at, updated_at, deleted_at`

// scanUser maps one row onto a [User].
func scanUser(row pgx.Row) (*User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.CompanyID,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.Role,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail implements [UserStore].
func (repository *PostgresStore) FindByEmail(context context.Context, email string) (*User, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`

	user, err := scanUser(repository.pool.QueryRow(queryCtx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("identity_find_by_email_failed: %w", err)
	}

	return user, nil
}

// FindByID implements [UserStore].
func (repository *PostgresStore) FindByID(context context.Context, userID string) (*User, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `SELECT ` + userColumns + `
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	user, err := scanUser(repository.pool.QueryRow(queryCtx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("User")
		}
		return nil, fmt.Errorf("identity_find_by_id_failed: %w", err)
	}

	return user, nil
}

// UpdatePasswordHash implements [UserStore].
func (repository *PostgresStore) UpdatePasswordHash(context context.Context, userID, passwordHash string) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `UPDATE users
		SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	tag, err := repository.pool.Exec(queryCtx, query, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("identity_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}

	return nil
}

// # Refresh Sessions

const sessionColumns = `
	id, user_id, jti, client_fingerprint, issued_at, expires_at,
	last_used_at, rotated_at, revoked_at`

func scanSession(row pgx.Row) (*Session, error) {
	var session Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.JTI,
		&session.Fingerprint,
		&session.IssuedAt,
		&session.ExpiresAt,
		&session.LastUsedAt,
		&session.RotatedAt,
		&session.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Create implements [SessionStore].
func (repository *PostgresStore) Create(context context.Context, session *Session) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `INSERT INTO refresh_sessions (id, user_id, jti, client_fingerprint, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := repository.pool.Exec(queryCtx, query,
		session.ID, session.UserID, session.JTI, session.Fingerprint,
		session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("identity_create_session_failed: %w", err)
	}

	return nil
}

// FindByJTI implements [SessionStore].
func (repository *PostgresStore) FindByJTI(context context.Context, jti string) (*Session, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `SELECT ` + sessionColumns + `
		FROM refresh_sessions
		WHERE jti = $1`

	session, err := scanSession(repository.pool.QueryRow(queryCtx, query, jti))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("identity_find_session_failed: %w", err)
	}

	return session, nil
}

// Rotate implements [SessionStore].
//
// Both the retirement of the old row and the insertion of the successor run in
// one transaction. The rotated_at guard makes the swap one-time-use even under
// two concurrent refresh calls with the same token: the loser sees zero rows
// affected and the lineage keeps a single live head.
func (repository *PostgresStore) Rotate(context context.Context, oldJTI string, successor *Session) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	transaction, err := repository.pool.Begin(queryCtx)
	if err != nil {
		return fmt.Errorf("identity_rotate_begin_failed: %w", err)
	}
	defer func() { _ = transaction.Rollback(queryCtx) }()

	// ── 1. Retire the old head (only if still live) ───────────────────────
	// The retired row records the use that consumed it: last_used_at marks
	// the rotation instant.
	tag, err := transaction.Exec(queryCtx, `
		UPDATE refresh_sessions
		SET rotated_at = now(), last_used_at = now()
		WHERE jti = $1 AND rotated_at IS NULL AND revoked_at IS NULL`,
		oldJTI)
	if err != nil {
		return fmt.Errorf("identity_rotate_retire_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Unauthorized("Refresh token is no longer valid")
	}

	// ── 2. Record the successor ───────────────────────────────────────────
	_, err = transaction.Exec(queryCtx, `
		INSERT INTO refresh_sessions (id, user_id, jti, client_fingerprint, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		successor.ID, successor.UserID, successor.JTI, successor.Fingerprint,
		successor.IssuedAt, successor.ExpiresAt)
	if err != nil {
		return fmt.Errorf("identity_rotate_insert_failed: %w", err)
	}

	if err := transaction.Commit(queryCtx); err != nil {
		return fmt.Errorf("identity_rotate_commit_failed: %w", err)
	}

	return nil
}

// Revoke implements [SessionStore].
func (repository *PostgresStore) Revoke(context context.Context, jti string) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	_, err := repository.pool.Exec(queryCtx, `
		UPDATE refresh_sessions
		SET revoked_at = now()
		WHERE jti = $1 AND revoked_at IS NULL`,
		jti)
	if err != nil {
		return fmt.Errorf("identity_revoke_session_failed: %w", err)
	}

	return nil
}

// RevokeAllForUser implements [SessionStore].
func (repository *PostgresStore) RevokeAllForUser(context context.Context, userID string) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	_, err := repository.pool.Exec(queryCtx, `
		UPDATE refresh_sessions
		SET revoked_at = now()
		WHERE user_id = $1 AND revoked_at IS NULL`,
		userID)
	if err != nil {
		return fmt.Errorf("identity_revoke_all_failed: %w", err)
	}

	return nil
}

// withStoreTimeout caps a store round-trip at the platform deadline.
func withStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.StoreCallTimeout)
}
