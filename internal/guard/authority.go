// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package guard

import (
	"context"
	"fmt"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/sec"
)

// # Authority

// MembershipResolver answers team-lead reachability questions.
//
// # Why an interface?
//
// Team membership lives in the workspace store. Declaring the dependency here
// keeps the guard free of storage imports and lets tests inject a fixed map.
type MembershipResolver interface {
	// LeadsUser reports whether leadUserID leads at least one team that
	// targetUserID is a member of.
	LeadsUser(context context.Context, leadUserID, targetUserID string) (bool, error)
}

// Authority evaluates whether a caller may act on another user's resources.
//
// Rules, from widest to narrowest:
//
//   - super_admin acts on anyone.
//   - admin / company_admin act on anyone inside their own company.
//   - team_lead acts on members of teams they lead.
//   - regular_user acts only on themself.
type Authority struct {
	memberships MembershipResolver
}

// NewAuthority constructs the permission evaluator.
func NewAuthority(memberships MembershipResolver) *Authority {
	return &Authority{memberships: memberships}
}

/*
CanActOnUser decides whether the caller may read or mutate resources owned
by targetUserID inside targetCompanyID.

Parameters:
  - context: Request context.
  - scope: The caller's tenancy scope.
  - targetUserID: Owner of the resource being acted on.
  - targetCompanyID: Company the resource belongs to (nil when unbound).

Returns:
  - error: nil when permitted, apperr.Forbidden otherwise.
*/
func (authority *Authority) CanActOnUser(context context.Context, scope Scope, targetUserID string, targetCompanyID *string) error {

	// ── 1. Self Access ────────────────────────────────────────────────────
	if scope.IsSelf(targetUserID) {
		return nil
	}

	// ── 2. Cross-Tenant Access ────────────────────────────────────────────
	if scope.Role.CrossesTenants() {
		return nil
	}

	// ── 3. Tenancy Boundary ───────────────────────────────────────────────
	// Nothing below this line ever crosses a company boundary.
	if !scope.SameCompany(targetCompanyID) {
		return apperr.Forbidden("Resource belongs to another company")
	}

	// ── 4. Company Administration ─────────────────────────────────────────
	if scope.Role.IsCompanyAdmin() {
		return nil
	}

	// ── 5. Team Leadership ────────────────────────────────────────────────
	if scope.Role == sec.RoleTeamLead {
		leads, err := authority.memberships.LeadsUser(context, scope.UserID, targetUserID)
		if err != nil {
			return apperr.Internal(fmt.Errorf("guard_membership_lookup_failed: %w", err))
		}
		if leads {
			return nil
		}
	}

	return apperr.Forbidden("Insufficient permissions for this user's resources")
}

// RequireAdmin rejects callers below company-admin authority.
func RequireAdmin(scope Scope) error {
	if !scope.Role.IsCompanyAdmin() {
		return apperr.Forbidden("Administrator access required")
	}
	return nil
}

// RequireSuperAdmin rejects callers that cannot cross tenant boundaries.
func RequireSuperAdmin(scope Scope) error {
	if !scope.Role.CrossesTenants() {
		return apperr.Forbidden("Super administrator access required")
	}
	return nil
}
