// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package workspace

import (
	"context"

	"github.com/temporahq/tempora/pkg/pagination"
)

// # Storage Contracts

// Store is the persistence boundary for the organizational graph.
//
// Every read takes an optional company filter: nil means unscoped (super
// admin), anything else pins the query to one tenant.
type Store interface {
	// CreateCompany provisions a new tenant. The slug must be unique among
	// live companies; a collision maps to apperr.Conflict.
	CreateCompany(context context.Context, company *Company) error

	// FindProject returns a project by ID within the company scope.
	// The company boundary is resolved through the owning team.
	FindProject(context context.Context, projectID string, companyID *string) (*Project, error)

	// FindTask returns a task by ID together with its parent project,
	// within the company scope.
	FindTask(context context.Context, taskID string, companyID *string) (*Task, error)

	// ListTeams returns the teams visible to the scope, newest first.
	ListTeams(context context.Context, companyID *string, page pagination.Params) ([]Team, int64, error)

	// ListProjects returns the non-archived projects visible to the scope.
	ListProjects(context context.Context, companyID *string, page pagination.Params) ([]Project, int64, error)

	// TeamIDsForUser returns the IDs of all teams the user belongs to.
	TeamIDsForUser(context context.Context, userID string) ([]string, error)

	// LeadsUser reports whether leadUserID leads at least one team that
	// targetUserID is a member of. Satisfies [guard.MembershipResolver].
	LeadsUser(context context.Context, leadUserID, targetUserID string) (bool, error)
}
