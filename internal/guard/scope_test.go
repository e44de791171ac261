// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/sec"
)

func claimsFor(userID, companyID string, role sec.UserRole) *sec.AuthClaims {
	return &sec.AuthClaims{
		UserID:    userID,
		CompanyID: companyID,
		Role:      string(role),
	}
}

func TestScopeFromClaims_RegularUser(t *testing.T) {
	scope, err := ScopeFromClaims(claimsFor("user-1", "company-1", sec.RoleRegularUser))
	require.NoError(t, err)

	assert.Equal(t, "user-1", scope.UserID)
	require.NotNil(t, scope.CompanyID)
	assert.Equal(t, "company-1", *scope.CompanyID)
}

func TestScopeFromClaims_SuperAdminIsUnscoped(t *testing.T) {
	scope, err := ScopeFromClaims(claimsFor("root-1", "", sec.RoleSuperAdmin))
	require.NoError(t, err)

	assert.Nil(t, scope.CompanyID, "super admins carry no company filter")
}

func TestScopeFromClaims_ScopedRoleWithoutCompanyIsRejected(t *testing.T) {
	_, err := ScopeFromClaims(claimsFor("user-1", "", sec.RoleRegularUser))

	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
}

func TestScope_SameCompany(t *testing.T) {
	companyA := "company-a"
	companyB := "company-b"

	scoped := Scope{UserID: "u", CompanyID: &companyA, Role: sec.RoleRegularUser}
	assert.True(t, scoped.SameCompany(&companyA))
	assert.False(t, scoped.SameCompany(&companyB))
	assert.False(t, scoped.SameCompany(nil))

	unscoped := Scope{UserID: "root", Role: sec.RoleSuperAdmin}
	assert.True(t, unscoped.SameCompany(&companyA))
	assert.True(t, unscoped.SameCompany(nil))
}
