// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing) from
// the domain logic. It acts as an Infrastructure service injected into the
// Application layer via small interfaces ([identity.TokenProvider]).
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/temporahq/tempora/pkg/uuid"
)

// # Token Kinds

const (
	// TokenKindAccess marks short-lived API bearer tokens.
	TokenKindAccess = "access"

	// TokenKindRefresh marks long-lived rotation tokens tracked in refresh_sessions.
	TokenKindRefresh = "refresh"
)

// # Verification Errors

var (
	// ErrTokenExpired is returned when the token's exp claim is in the past.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenMalformed is returned when the string is not a parsable JWT.
	ErrTokenMalformed = errors.New("sec: token malformed")

	// ErrBadSignature is returned when the signature does not verify.
	ErrBadSignature = errors.New("sec: bad token signature")

	// ErrWrongKind is returned when an access token is presented where a
	// refresh token is required, or vice versa.
	ErrWrongKind = errors.New("sec: wrong token kind")
)

// AuthClaims represents the payload embedded inside a Tempora bearer token.
//
// # Why custom claims?
//
// By embedding the company and role directly inside the JWT, the guard can
// compute the tenancy scope of a request WITHOUT querying the database on
// every single API call. The JTI makes individual refresh tokens revocable.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the JWT payload small.
	UserID    string `json:"uid"`
	CompanyID string `json:"cid,omitempty"` // empty for super_admin (platform scope)
	Role      string `json:"rol"`
	Kind      string `json:"knd"`
}

// JTI returns the unique token identifier used by the revocation set.
func (c *AuthClaims) JTI() string { return c.ID }

// TokenService handles generation and verification of JWT tokens using
// HMAC-SHA256 with the SIGNING_KEY secret.
type TokenService struct {
	signingKey []byte
	issuer     string
}

// NewTokenService creates a new TokenService.
func NewTokenService(signingKey, issuer string) (*TokenService, error) {
	if len(signingKey) < 32 {
		return nil, fmt.Errorf("sec: signing key must be at least 32 bytes, got %d", len(signingKey))
	}
	return &TokenService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
	}, nil
}

// GenerateToken creates a signed bearer token of the given kind.
//
// # Parameters
//   - userID: The subject account ID.
//   - companyID: The tenant the subject belongs to ("" for super_admin).
//   - role: The subject's role string.
//   - kind: TokenKindAccess or TokenKindRefresh.
//   - timeToLive: The duration before the token expires.
//
// # Returns
//   - The signed JWT string, its JTI, or an error if signing fails.
func (service *TokenService) GenerateToken(userID, companyID, role, kind string, timeToLive time.Duration) (token string, jti string, err error) {
	currentTime := time.Now()
	jti = uuid.New() // 128-bit unique identifier, revocation handle

	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		Kind:      kind,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(service.signingKey)
	if err != nil {
		return "", "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signed, jti, nil
}

// VerifyToken checks the signature and validity of a JWT string.
//
// # Ordering
//
// The signature is checked before expiry so that a forged token never
// learns whether its fabricated claims would otherwise have been valid.
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return service.signingKey, nil
	}, jwt.WithIssuer(service.issuer))

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// VerifyTokenKind verifies the token and additionally enforces its kind claim.
func (service *TokenService) VerifyTokenKind(tokenString, kind string) (*AuthClaims, error) {
	claims, err := service.VerifyToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, ErrWrongKind
	}
	return claims, nil
}
