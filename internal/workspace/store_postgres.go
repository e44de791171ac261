// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/pkg/pagination"
)

// # PostgreSQL Store

// PostgresStore implements [Store] on pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the relational store for the organizational graph.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// CreateCompany implements [Store].
func (repository *PostgresStore) CreateCompany(context context.Context, company *Company) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		INSERT INTO companies (id, name, slug)
		VALUES ($1, $2, $3)
		RETURNING status, max_users, max_projects, created_at, updated_at`

	err := repository.pool.QueryRow(queryCtx, query, company.ID, company.Name, company.Slug).
		Scan(&company.Status, &company.MaxUsers, &company.MaxProjects, &company.CreatedAt, &company.UpdatedAt)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation {
			return apperr.Conflict("A company with this slug already exists")
		}
		return fmt.Errorf("workspace_create_company_failed: %w", err)
	}

	return nil
}

// FindProject implements [Store].
//
// The company boundary is enforced inside the query through the owning team,
// so an out-of-tenant project ID is indistinguishable from a missing one.
func (repository *PostgresStore) FindProject(context context.Context, projectID string, companyID *string) (*Project, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT p.id, p.team_id, t.company_id, p.name, p.description,
		       p.is_archived, p.created_at, p.updated_at, p.deleted_at
		FROM projects p
		JOIN teams t ON t.id = p.team_id AND t.deleted_at IS NULL
		WHERE p.id = $1
		  AND p.deleted_at IS NULL
		  AND ($2::uuid IS NULL OR t.company_id = $2)`

	var project Project
	err := repository.pool.QueryRow(queryCtx, query, projectID, companyID).Scan(
		&project.ID,
		&project.TeamID,
		&project.CompanyID,
		&project.Name,
		&project.Description,
		&project.IsArchived,
		&project.CreatedAt,
		&project.UpdatedAt,
		&project.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Project")
		}
		return nil, fmt.Errorf("workspace_find_project_failed: %w", err)
	}

	return &project, nil
}

// FindTask implements [Store].
func (repository *PostgresStore) FindTask(context context.Context, taskID string, companyID *string) (*Task, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT k.id, k.project_id, k.name, k.is_done,
		       k.created_at, k.updated_at, k.deleted_at
		FROM tasks k
		JOIN projects p ON p.id = k.project_id AND p.deleted_at IS NULL
		JOIN teams t ON t.id = p.team_id AND t.deleted_at IS NULL
		WHERE k.id = $1
		  AND k.deleted_at IS NULL
		  AND ($2::uuid IS NULL OR t.company_id = $2)`

	var task Task
	err := repository.pool.QueryRow(queryCtx, query, taskID, companyID).Scan(
		&task.ID,
		&task.ProjectID,
		&task.Name,
		&task.IsDone,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.DeletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Task")
		}
		return nil, fmt.Errorf("workspace_find_task_failed: %w", err)
	}

	return &task, nil
}

// ListTeams implements [Store].
func (repository *PostgresStore) ListTeams(context context.Context, companyID *string, page pagination.Params) ([]Team, int64, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	var total int64
	countQuery := `
		SELECT count(*) FROM teams
		WHERE deleted_at IS NULL
		  AND ($1::uuid IS NULL OR company_id = $1)`
	if err := repository.pool.QueryRow(queryCtx, countQuery, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("workspace_count_teams_failed: %w", err)
	}

	query := `
		SELECT id, company_id, owner_user_id, name, description,
		       created_at, updated_at, deleted_at
		FROM teams
		WHERE deleted_at IS NULL
		  AND ($1::uuid IS NULL OR company_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(queryCtx, query, companyID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("workspace_list_teams_failed: %w", err)
	}
	defer rows.Close()

	teams := make([]Team, 0, page.Limit)
	for rows.Next() {
		var team Team
		if err := rows.Scan(
			&team.ID, &team.CompanyID, &team.OwnerUserID, &team.Name, &team.Description,
			&team.CreatedAt, &team.UpdatedAt, &team.DeletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("workspace_scan_team_failed: %w", err)
		}
		teams = append(teams, team)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("workspace_list_teams_failed: %w", err)
	}

	return teams, total, nil
}

// ListProjects implements [Store].
func (repository *PostgresStore) ListProjects(context context.Context, companyID *string, page pagination.Params) ([]Project, int64, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	var total int64
	countQuery := `
		SELECT count(*)
		FROM projects p
		JOIN teams t ON t.id = p.team_id AND t.deleted_at IS NULL
		WHERE p.deleted_at IS NULL
		  AND p.is_archived = false
		  AND ($1::uuid IS NULL OR t.company_id = $1)`
	if err := repository.pool.QueryRow(queryCtx, countQuery, companyID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("workspace_count_projects_failed: %w", err)
	}

	query := `
		SELECT p.id, p.team_id, t.company_id, p.name, p.description,
		       p.is_archived, p.created_at, p.updated_at, p.deleted_at
		FROM projects p
		JOIN teams t ON t.id = p.team_id AND t.deleted_at IS NULL
		WHERE p.deleted_at IS NULL
		  AND p.is_archived = false
		  AND ($1::uuid IS NULL OR t.company_id = $1)
		ORDER BY p.created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := repository.pool.Query(queryCtx, query, companyID, page.Limit, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("workspace_list_projects_failed: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0, page.Limit)
	for rows.Next() {
		var project Project
		if err := rows.Scan(
			&project.ID, &project.TeamID, &project.CompanyID, &project.Name,
			&project.Description, &project.IsArchived,
			&project.CreatedAt, &project.UpdatedAt, &project.DeletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("workspace_scan_project_failed: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("workspace_list_projects_failed: %w", err)
	}

	return projects, total, nil
}

// TeamIDsForUser implements [Store].
func (repository *PostgresStore) TeamIDsForUser(context context.Context, userID string) ([]string, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	rows, err := repository.pool.Query(queryCtx, `
		SELECT team_id FROM team_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("workspace_user_teams_failed: %w", err)
	}
	defer rows.Close()

	var teamIDs []string
	for rows.Next() {
		var teamID string
		if err := rows.Scan(&teamID); err != nil {
			return nil, fmt.Errorf("workspace_scan_team_id_failed: %w", err)
		}
		teamIDs = append(teamIDs, teamID)
	}

	return teamIDs, rows.Err()
}

// LeadsUser implements [Store] and [guard.MembershipResolver].
func (repository *PostgresStore) LeadsUser(context context.Context, leadUserID, targetUserID string) (bool, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM team_members lead
			JOIN team_members member ON member.team_id = lead.team_id
			WHERE lead.user_id = $1
			  AND lead.role_in_team IN ('owner', 'admin')
			  AND member.user_id = $2
		)`

	var leads bool
	if err := repository.pool.QueryRow(queryCtx, query, leadUserID, targetUserID).Scan(&leads); err != nil {
		return false, fmt.Errorf("workspace_leads_user_failed: %w", err)
	}

	return leads, nil
}

// withStoreTimeout caps a store round-trip at the platform deadline.
func withStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.StoreCallTimeout)
}
