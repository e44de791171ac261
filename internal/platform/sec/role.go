// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Platform operator. The only role allowed to cross company boundaries.
	RoleSuperAdmin UserRole = "super_admin"

	// Company-wide administration, including billing and member management
	RoleAdmin UserRole = "admin"

	// Company-wide administration of members and their time entries
	RoleCompanyAdmin UserRole = "company_admin"

	// Authoritative over the members of their own team only
	RoleTeamLead UserRole = "team_lead"

	// Default role for standard company members
	RoleRegularUser UserRole = "regular_user"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// IsCompanyAdmin reports whether the role carries company-wide authority.
func (r UserRole) IsCompanyAdmin() bool {
	return r == RoleSuperAdmin || r == RoleAdmin || r == RoleCompanyAdmin
}

// CrossesTenants reports whether the role may read and write outside its own company.
func (r UserRole) CrossesTenants() bool {
	return r == RoleSuperAdmin
}

// IsValid reports whether the string is one of the known roles.
func (r UserRole) IsValid() bool {
	return r.level() > 0
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-50) allows for future intermediate roles
	switch r {
	case RoleSuperAdmin:
		return 50
	case RoleAdmin:
		return 40
	case RoleCompanyAdmin:
		return 30
	case RoleTeamLead:
		return 20
	case RoleRegularUser:
		return 10
	default:
		return 0
	}
}
