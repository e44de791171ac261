// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package workspace owns the organizational graph: companies, teams, team
membership, projects, and tasks.

The timer engine validates every entry against this graph (a user may only
book time on projects inside their own company, and only on tasks that belong
to the chosen project), and the guard resolves team leadership through it.
*/
package workspace

import "time"

// # Entities

// Company is a tenant. All scoped data hangs off exactly one company.
//
// Status follows the subscription lifecycle: "active", "trial", "suspended",
// or "cancelled". The limits cap what the plan allows; enforcement happens at
// user/project creation.
type Company struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Status      string     `json:"status"`
	MaxUsers    int        `json:"max_users"`
	MaxProjects int        `json:"max_projects"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// Team groups users inside one company. OwnerUserID points at the user the
// team belongs to administratively; day-to-day leadership is carried by the
// membership roles.
type Team struct {
	ID          string     `json:"id"`
	CompanyID   string     `json:"company_id"`
	OwnerUserID *string    `json:"owner_user_id,omitempty"`
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// TeamMember links a user to a team with a role inside it: "owner", "admin",
// or "member". Owners and admins count as leads for access decisions.
type TeamMember struct {
	TeamID     string    `json:"team_id"`
	UserID     string    `json:"user_id"`
	RoleInTeam string    `json:"role_in_team"`
	JoinedAt   time.Time `json:"joined_at"`
}

// Project is a billable unit of work owned by a team.
type Project struct {
	ID          string     `json:"id"`
	TeamID      string     `json:"team_id"`
	CompanyID   string     `json:"company_id"` // denormalized from the owning team
	Name        string     `json:"name"`
	Description *string    `json:"description,omitempty"`
	IsArchived  bool       `json:"is_archived"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`
}

// Task is an optional finer-grained unit inside a project.
type Task struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Name      string     `json:"name"`
	IsDone    bool       `json:"is_done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}
