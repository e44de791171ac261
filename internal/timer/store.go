// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package timer

import (
	"context"
	"time"

	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/pkg/pagination"
)

// # Storage Contracts

// ListFilter narrows a time-entry listing.
type ListFilter struct {
	// UserID restricts to one owner. Required for non-admin callers.
	UserID string
	// CompanyID restricts to one tenant. Nil means unscoped (super admin).
	CompanyID *string
	// ProjectID optionally restricts to one project.
	ProjectID string
	// From/To optionally bound the entries' start times.
	From *time.Time
	To   *time.Time
	// RunningOnly keeps only open entries.
	RunningOnly bool
}

// Store is the persistence boundary for time entries.
type Store interface {
	// Create inserts an entry. For running entries (end time unset) the
	// partial unique index turns a second concurrent start into
	// apperr.TimerAlreadyRunning.
	Create(context context.Context, entry *TimeEntry) error

	// StopRunning closes the user's open entry at endTime and returns it.
	// Returns apperr.NoRunningTimer when nothing is open.
	StopRunning(context context.Context, userID string, endTime time.Time) (*TimeEntry, error)

	// FindRunning returns the user's open entry, or apperr.NotFound.
	FindRunning(context context.Context, userID string) (*TimeEntry, error)

	// FindByID returns an entry by primary key within the company scope.
	FindByID(context context.Context, entryID string, companyID *string) (*TimeEntry, error)

	// Update persists the mutable fields of an entry.
	Update(context context.Context, entry *TimeEntry) error

	// SoftDelete marks an entry deleted.
	SoftDelete(context context.Context, entryID string) error

	// List returns entries matching the filter, most recent first.
	List(context context.Context, filter ListFilter, page pagination.Params) ([]TimeEntry, int64, error)

	// HasOverlap reports whether the user already has an entry intersecting
	// [start, end), excluding excludeEntryID ("" to exclude nothing).
	HasOverlap(context context.Context, userID string, start, end time.Time, excludeEntryID string) (bool, error)

	// ListRunning yields every open entry joined with its owner's identity,
	// for the presence hub's warm start. Satisfies [presence.ReloadSource].
	ListRunning(context context.Context) ([]presence.ActiveTimer, error)
}
