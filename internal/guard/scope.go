// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package guard

import (
	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/sec"
)

// # Tenancy Scope

// Scope is the tenancy filter every store query must carry.
//
// It is derived once from the verified token claims and passed down to the
// stores, which translate it into WHERE clauses. A nil CompanyID means
// "no company filter" and is only ever produced for super admins.
type Scope struct {
	UserID    string
	CompanyID *string
	Role      sec.UserRole
}

/*
ScopeFromClaims derives the tenancy scope for an authenticated caller.

Parameters:
  - claims: Verified access-token claims.

Returns:
  - Scope: The tenancy filter for this caller.
  - error: apperr.Forbidden if a non-super-admin carries no company binding.
*/
func ScopeFromClaims(claims *sec.AuthClaims) (Scope, error) {
	role := sec.UserRole(claims.Role)

	scope := Scope{
		UserID: claims.UserID,
		Role:   role,
	}

	// Super admins operate across tenants: no company filter at all.
	if role.CrossesTenants() {
		if claims.CompanyID != "" {
			companyID := claims.CompanyID
			scope.CompanyID = &companyID
		}
		return scope, nil
	}

	// Everyone else MUST be bound to exactly one company. A token without a
	// company binding for a scoped role is malformed and must not reach a store.
	if claims.CompanyID == "" {
		return Scope{}, apperr.Forbidden("User is not assigned to a company")
	}

	companyID := claims.CompanyID
	scope.CompanyID = &companyID

	return scope, nil
}

// SameCompany reports whether the given company falls inside this scope.
func (scope Scope) SameCompany(companyID *string) bool {
	if scope.CompanyID == nil {
		return true
	}
	if companyID == nil {
		return false
	}
	return *scope.CompanyID == *companyID
}

// IsSelf reports whether the scope belongs to the given user.
func (scope Scope) IsSelf(userID string) bool {
	return scope.UserID == userID
}
