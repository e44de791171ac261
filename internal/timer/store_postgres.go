// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package timer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/pkg/pagination"
)

// # PostgreSQL Store

// PostgresStore implements [Store] on pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the relational store for time entries.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const entryColumns = `
	id, user_id, project_id, task_id, description,
	start_time, end_time, duration_seconds, created_at, updated_at, deleted_at`

func scanEntry(row pgx.Row) (*TimeEntry, error) {
	var entry TimeEntry
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.ProjectID,
		&entry.TaskID,
		&entry.Description,
		&entry.StartTime,
		&entry.EndTime,
		&entry.DurationSeconds,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create implements [Store].
//
// The single-timer invariant lives in the database as a partial unique index
// on (user_id) WHERE end_time IS NULL. Two concurrent starts both reach the
// INSERT; exactly one commits, the other surfaces here as a unique violation
// and is mapped to the domain conflict.
func (repository *PostgresStore) Create(context context.Context, entry *TimeEntry) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		INSERT INTO time_entries (id, user_id, project_id, task_id, description, start_time, end_time, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	entry.Derive()
	err := repository.pool.QueryRow(queryCtx, query,
		entry.ID, entry.UserID, entry.ProjectID, entry.TaskID,
		entry.Description, entry.StartTime, entry.EndTime, entry.DurationSeconds,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)

	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation {
			if entry.EndTime == nil {
				return apperr.TimerAlreadyRunning()
			}
			return apperr.Conflict("Time entry already exists")
		}
		return fmt.Errorf("timer_create_entry_failed: %w", err)
	}

	return nil
}

// StopRunning implements [Store]. The UPDATE's WHERE clause is the atomicity:
// of N concurrent stops, one closes the row and the rest match nothing.
func (repository *PostgresStore) StopRunning(context context.Context, userID string, endTime time.Time) (*TimeEntry, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		UPDATE time_entries
		SET end_time = $2,
		    duration_seconds = floor(extract(epoch FROM ($2::timestamptz - start_time)))::bigint,
		    updated_at = now()
		WHERE user_id = $1 AND end_time IS NULL AND deleted_at IS NULL
		RETURNING ` + entryColumns

	entry, err := scanEntry(repository.pool.QueryRow(queryCtx, query, userID, endTime))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NoRunningTimer()
		}
		return nil, fmt.Errorf("timer_stop_running_failed: %w", err)
	}

	return entry, nil
}

// FindRunning implements [Store].
func (repository *PostgresStore) FindRunning(context context.Context, userID string) (*TimeEntry, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `SELECT ` + entryColumns + `
		FROM time_entries
		WHERE user_id = $1 AND end_time IS NULL AND deleted_at IS NULL`

	entry, err := scanEntry(repository.pool.QueryRow(queryCtx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Running timer")
		}
		return nil, fmt.Errorf("timer_find_running_failed: %w", err)
	}

	return entry, nil
}

// FindByID implements [Store]. The company boundary is enforced through the
// owner, so an out-of-tenant entry ID reads as missing.
func (repository *PostgresStore) FindByID(context context.Context, entryID string, companyID *string) (*TimeEntry, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT e.id, e.user_id, e.project_id, e.task_id, e.description,
		       e.start_time, e.end_time, e.duration_seconds,
		       e.created_at, e.updated_at, e.deleted_at
		FROM time_entries e
		JOIN users u ON u.id = e.user_id
		WHERE e.id = $1
		  AND e.deleted_at IS NULL
		  AND ($2::uuid IS NULL OR u.company_id = $2)`

	entry, err := scanEntry(repository.pool.QueryRow(queryCtx, query, entryID, companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Time entry")
		}
		return nil, fmt.Errorf("timer_find_entry_failed: %w", err)
	}

	return entry, nil
}

// Update implements [Store].
func (repository *PostgresStore) Update(context context.Context, entry *TimeEntry) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		UPDATE time_entries
		SET project_id = $2, task_id = $3, description = $4,
		    start_time = $5, end_time = $6, duration_seconds = $7, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`

	entry.Derive()
	tag, err := repository.pool.Exec(queryCtx, query,
		entry.ID, entry.ProjectID, entry.TaskID, entry.Description,
		entry.StartTime, entry.EndTime, entry.DurationSeconds)
	if err != nil {
		var pgError *pgconn.PgError
		if errors.As(err, &pgError) && pgError.Code == pgerrcode.UniqueViolation {
			return apperr.TimerAlreadyRunning()
		}
		return fmt.Errorf("timer_update_entry_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Time entry")
	}

	return nil
}

// SoftDelete implements [Store].
func (repository *PostgresStore) SoftDelete(context context.Context, entryID string) error {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	tag, err := repository.pool.Exec(queryCtx, `
		UPDATE time_entries
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		entryID)
	if err != nil {
		return fmt.Errorf("timer_delete_entry_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Time entry")
	}

	return nil
}

// List implements [Store].
func (repository *PostgresStore) List(context context.Context, filter ListFilter, page pagination.Params) ([]TimeEntry, int64, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	conditions := []string{"e.deleted_at IS NULL"}
	arguments := []interface{}{}

	appendCondition := func(clause string, value interface{}) {
		arguments = append(arguments, value)
		conditions = append(conditions, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(arguments))))
	}

	if filter.CompanyID != nil {
		appendCondition("u.company_id = ?", *filter.CompanyID)
	}
	if filter.UserID != "" {
		appendCondition("e.user_id = ?", filter.UserID)
	}
	if filter.ProjectID != "" {
		appendCondition("e.project_id = ?", filter.ProjectID)
	}
	if filter.From != nil {
		appendCondition("e.start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		appendCondition("e.start_time < ?", *filter.To)
	}
	if filter.RunningOnly {
		conditions = append(conditions, "e.end_time IS NULL")
	}

	whereClause := strings.Join(conditions, " AND ")
	fromClause := `FROM time_entries e JOIN users u ON u.id = e.user_id WHERE ` + whereClause

	var total int64
	if err := repository.pool.QueryRow(queryCtx, `SELECT count(*) `+fromClause, arguments...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("timer_count_entries_failed: %w", err)
	}

	query := `
		SELECT e.id, e.user_id, e.project_id, e.task_id, e.description,
		       e.start_time, e.end_time, e.duration_seconds,
		       e.created_at, e.updated_at, e.deleted_at ` +
		fromClause + `
		ORDER BY e.start_time DESC
		LIMIT $` + strconv.Itoa(len(arguments)+1) + ` OFFSET $` + strconv.Itoa(len(arguments)+2)

	rows, err := repository.pool.Query(queryCtx, query, append(arguments, page.Limit, page.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("timer_list_entries_failed: %w", err)
	}
	defer rows.Close()

	entries := make([]TimeEntry, 0, page.Limit)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("timer_scan_entry_failed: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("timer_list_entries_failed: %w", err)
	}

	return entries, total, nil
}

// HasOverlap implements [Store]. Running entries count as open-ended on the
// right, so they overlap everything after their start.
func (repository *PostgresStore) HasOverlap(context context.Context, userID string, start, end time.Time, excludeEntryID string) (bool, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT EXISTS (
			SELECT 1 FROM time_entries
			WHERE user_id = $1
			  AND deleted_at IS NULL
			  AND id <> coalesce(nullif($4, '')::uuid, '00000000-0000-0000-0000-000000000000'::uuid)
			  AND start_time < $3
			  AND coalesce(end_time, 'infinity'::timestamptz) > $2
		)`

	var overlaps bool
	if err := repository.pool.QueryRow(queryCtx, query, userID, start, end, excludeEntryID).Scan(&overlaps); err != nil {
		return false, fmt.Errorf("timer_overlap_check_failed: %w", err)
	}

	return overlaps, nil
}

// ListRunning implements [Store] and [presence.ReloadSource].
func (repository *PostgresStore) ListRunning(context context.Context) ([]presence.ActiveTimer, error) {
	queryCtx, cancel := withStoreTimeout(context)
	defer cancel()

	query := `
		SELECT e.id, e.user_id, u.first_name || ' ' || u.last_name,
		       u.company_id, e.project_id, e.task_id, e.description, e.start_time,
		       coalesce(array_agg(tm.team_id) FILTER (WHERE tm.team_id IS NOT NULL), '{}')
		FROM time_entries e
		JOIN users u ON u.id = e.user_id AND u.deleted_at IS NULL
		LEFT JOIN team_members tm ON tm.user_id = u.id
		WHERE e.end_time IS NULL AND e.deleted_at IS NULL
		GROUP BY e.id, e.user_id, u.first_name, u.last_name, u.company_id`

	rows, err := repository.pool.Query(queryCtx, query)
	if err != nil {
		return nil, fmt.Errorf("timer_list_running_failed: %w", err)
	}
	defer rows.Close()

	var timers []presence.ActiveTimer
	for rows.Next() {
		var timer presence.ActiveTimer
		if err := rows.Scan(
			&timer.EntryID,
			&timer.UserID,
			&timer.UserName,
			&timer.CompanyID,
			&timer.ProjectID,
			&timer.TaskID,
			&timer.Description,
			&timer.StartTime,
			&timer.TeamIDs,
		); err != nil {
			return nil, fmt.Errorf("timer_scan_running_failed: %w", err)
		}
		timers = append(timers, timer)
	}

	return timers, rows.Err()
}

// withStoreTimeout caps a store round-trip at the platform deadline.
func withStoreTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, constants.StoreCallTimeout)
}
