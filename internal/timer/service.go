// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package timer

import (
	"context"
	"log/slog"
	"time"

	"github.com/temporahq/tempora/internal/guard"
	"github.com/temporahq/tempora/internal/identity"
	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/validate"
	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/internal/workspace"
	"github.com/temporahq/tempora/pkg/pagination"
	"github.com/temporahq/tempora/pkg/pointer"
	"github.com/temporahq/tempora/pkg/uuid"
)

// # Service Contracts

// BackupMirror mirrors running timers into the KV. Implemented by
// [presence.RedisBackup]; nil disables mirroring (tests).
type BackupMirror interface {
	Save(context context.Context, timer presence.ActiveTimer) error
	Clear(context context.Context, userID string) error
}

// # Timer Service

// Service implements the time-tracking use-cases.
type Service struct {
	store      Store
	workspaces workspace.Store
	users      identity.UserStore
	authority  *guard.Authority
	hub        *presence.Hub
	backup     BackupMirror
	sink       EventSink
	logger     *slog.Logger
}

// ServiceParams carries the dependencies of [NewService].
type ServiceParams struct {
	Store      Store
	Workspaces workspace.Store
	Users      identity.UserStore
	Authority  *guard.Authority
	Hub        *presence.Hub
	Backup     BackupMirror
	Sink       EventSink
	Logger     *slog.Logger
}

// NewService wires the timer use-cases.
func NewService(params ServiceParams) *Service {
	return &Service{
		store:      params.Store,
		workspaces: params.Workspaces,
		users:      params.Users,
		authority:  params.Authority,
		hub:        params.Hub,
		backup:     params.Backup,
		sink:       params.Sink,
		logger:     params.Logger,
	}
}

// # Inputs

// StartInput describes a timer start. The start instant is always the
// server's clock; clients cannot start timers in the past or future.
type StartInput struct {
	ProjectID   *string `json:"project_id,omitempty"`
	TaskID      *string `json:"task_id,omitempty"`
	Description *string `json:"description,omitempty"`
}

// ManualInput describes a completed entry created after the fact.
type ManualInput struct {
	UserID      string     `json:"user_id,omitempty"` // defaults to the caller
	ProjectID   *string    `json:"project_id,omitempty"`
	TaskID      *string    `json:"task_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

// UpdateInput patches an existing entry. Nil fields are left untouched;
// empty strings clear the nullable references.
type UpdateInput struct {
	ProjectID   *string    `json:"project_id,omitempty"`
	TaskID      *string    `json:"task_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   *time.Time `json:"start_time,omitempty"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

// ListQuery narrows the entry listing exposed over HTTP.
type ListQuery struct {
	UserID      string
	ProjectID   string
	From        *time.Time
	To          *time.Time
	RunningOnly bool
}

// ManualResult pairs the created/updated entry with the overlap advisory.
type ManualResult struct {
	Entry *TimeEntry `json:"entry"`
	// OverlapWarning is true when the entry intersects another one of the
	// same user. Overlaps are permitted; the flag lets clients surface it.
	OverlapWarning bool `json:"overlap_warning,omitempty"`
}

// # Operations

/*
Start opens a running timer for the caller.

Returns:
  - *TimeEntry: The created running entry.
  - error: apperr.TimerAlreadyRunning when the caller already has an open
    entry, validation/invariant errors for bad references.

The single-timer decision is made by the store's unique index at commit
time, so concurrent starts race safely: exactly one wins.
*/
func (service *Service) Start(context context.Context, scope guard.Scope, input StartInput) (*TimeEntry, error) {
	// Owner identity is resolved before the insert so the presence record
	// can be built without post-commit queries.
	owner, err := service.users.FindByID(context, scope.UserID)
	if err != nil {
		return nil, err
	}

	if err := service.validateReferences(context, owner.CompanyID, input.ProjectID, input.TaskID); err != nil {
		return nil, err
	}
	teamIDs, err := service.workspaces.TeamIDsForUser(context, scope.UserID)
	if err != nil {
		return nil, err
	}

	entry := &TimeEntry{
		ID:          uuid.New(),
		UserID:      scope.UserID,
		ProjectID:   input.ProjectID,
		TaskID:      input.TaskID,
		Description: input.Description,
		StartTime:   time.Now().UTC(),
	}

	if err := service.store.Create(context, entry); err != nil {
		return nil, err
	}

	// ── Post-Commit: presence & mirror ────────────────────────────────────
	// The write is durable; event emission must not be lost to a client
	// that disconnected while waiting.
	detached := withoutCancel(context)

	active := presence.ActiveTimer{
		UserID:      owner.ID,
		UserName:    owner.FullName(),
		CompanyID:   owner.CompanyID,
		TeamIDs:     teamIDs,
		EntryID:     entry.ID,
		ProjectID:   entry.ProjectID,
		TaskID:      entry.TaskID,
		Description: entry.Description,
		StartTime:   entry.StartTime,
	}

	service.hub.Upsert(active)
	service.mirrorSave(detached, active)

	service.logger.Info("timer_started",
		slog.String("user_id", scope.UserID),
		slog.String("entry_id", entry.ID),
	)

	return entry, nil
}

/*
Stop closes the caller's running timer at the server's current time.

Returns:
  - *TimeEntry: The completed entry with its derived duration.
  - error: apperr.NoRunningTimer when nothing is open, apperr.ClockSkew when
    the stored start is somehow ahead of now.
*/
func (service *Service) Stop(context context.Context, scope guard.Scope) (*TimeEntry, error) {
	running, err := service.store.FindRunning(context, scope.UserID)
	if err != nil {
		if apperr.IsCode(err, "NOT_FOUND") {
			return nil, apperr.NoRunningTimer()
		}
		return nil, err
	}

	endTime := time.Now().UTC()
	if endTime.Before(running.StartTime) {
		// UTC wall clocks should make this impossible. Refuse to persist a
		// negative duration rather than silently clamping it.
		return nil, apperr.ClockSkew()
	}

	entry, err := service.store.StopRunning(context, scope.UserID, endTime)
	if err != nil {
		return nil, err
	}

	detached := withoutCancel(context)
	service.hub.Remove(scope.UserID)
	service.mirrorClear(detached, scope.UserID)

	service.logger.Info("timer_stopped",
		slog.String("user_id", scope.UserID),
		slog.String("entry_id", entry.ID),
		slog.Int64("duration_seconds", pointer.Val(entry.Derive().DurationSeconds)),
	)

	return entry, nil
}

// Active returns the running timers visible to the caller's scope,
// optionally narrowed to one team.
func (service *Service) Active(scope guard.Scope, teamID string) []presence.ActiveTimer {
	return service.hub.Snapshot(scope.CompanyID, teamID)
}

/*
CreateManual records a completed entry after the fact.

Overlaps with existing entries are PERMITTED and flagged: retroactive
bookkeeping legitimately produces them, and rejecting would make honest
corrections impossible. The overlap_warning flag lets clients surface it.
*/
func (service *Service) CreateManual(context context.Context, scope guard.Scope, input ManualInput) (*ManualResult, error) {

	// ── 1. Shape Validation ───────────────────────────────────────────────
	validator := validate.New().
		Custom("start_time", input.StartTime == nil, "This field is required").
		Custom("end_time", input.EndTime == nil, "This field is required")
	if err := validator.Err(); err != nil {
		return nil, err
	}
	if input.EndTime.Before(*input.StartTime) {
		return nil, apperr.InvariantViolation("End time must not precede start time")
	}

	// ── 2. Target Resolution ──────────────────────────────────────────────
	targetUserID := input.UserID
	if targetUserID == "" {
		targetUserID = scope.UserID
	}
	owner, err := service.users.FindByID(context, targetUserID)
	if err != nil {
		return nil, err
	}
	if targetUserID != scope.UserID {
		if err := service.authority.CanActOnUser(context, scope, targetUserID, owner.CompanyID); err != nil {
			return nil, err
		}
	}

	// ── 3. Reference Validation ───────────────────────────────────────────
	// Against the OWNER's tenant, not the caller's: a super admin booking
	// time for a company-B user must not attach a company-A project.
	if err := service.validateReferences(context, owner.CompanyID, input.ProjectID, input.TaskID); err != nil {
		return nil, err
	}

	// ── 4. Overlap Advisory ───────────────────────────────────────────────
	overlaps, err := service.store.HasOverlap(context, targetUserID, *input.StartTime, *input.EndTime, "")
	if err != nil {
		return nil, err
	}

	// ── 5. Persist ────────────────────────────────────────────────────────
	entry := &TimeEntry{
		ID:          uuid.New(),
		UserID:      targetUserID,
		ProjectID:   input.ProjectID,
		TaskID:      input.TaskID,
		Description: input.Description,
		StartTime:   input.StartTime.UTC(),
		EndTime:     pointer.To(input.EndTime.UTC()),
	}
	if err := service.store.Create(context, entry); err != nil {
		return nil, err
	}

	service.emitEntryEvent(context, EventEntryCreated, entry)

	return &ManualResult{Entry: entry.Derive(), OverlapWarning: overlaps}, nil
}

/*
Update patches an entry's fields.

Setting end_time on a RUNNING entry is a stop-equivalent: the entry completes
and presence is cleared, exactly as if Stop had been called at that instant.
Clearing end_time on a completed entry is rejected — reopening would bypass
the single-timer invariant.
*/
func (service *Service) Update(context context.Context, scope guard.Scope, entryID string, input UpdateInput) (*ManualResult, error) {

	// ── 1. Load & Authorize ───────────────────────────────────────────────
	entry, err := service.store.FindByID(context, entryID, scope.CompanyID)
	if err != nil {
		return nil, err
	}

	owner, err := service.users.FindByID(context, entry.UserID)
	if err != nil {
		return nil, err
	}
	if err := service.authority.CanActOnUser(context, scope, entry.UserID, owner.CompanyID); err != nil {
		return nil, err
	}

	wasRunning := entry.IsRunning()

	// ── 2. Apply Patch ────────────────────────────────────────────────────
	if input.ProjectID != nil {
		if *input.ProjectID == "" {
			entry.ProjectID = nil
			entry.TaskID = nil
		} else {
			entry.ProjectID = input.ProjectID
		}
	}
	if input.TaskID != nil {
		if *input.TaskID == "" {
			entry.TaskID = nil
		} else {
			entry.TaskID = input.TaskID
		}
	}
	if input.Description != nil {
		entry.Description = input.Description
	}
	if input.StartTime != nil {
		entry.StartTime = input.StartTime.UTC()
	}
	if input.EndTime != nil {
		entry.EndTime = pointer.To(input.EndTime.UTC())
	}

	// ── 3. Invariants ─────────────────────────────────────────────────────
	if entry.EndTime != nil && entry.EndTime.Before(entry.StartTime) {
		return nil, apperr.InvariantViolation("End time must not precede start time")
	}
	if !wasRunning && entry.EndTime == nil {
		return nil, apperr.InvariantViolation("A completed entry cannot be reopened")
	}
	if err := service.validateReferences(context, owner.CompanyID, entry.ProjectID, entry.TaskID); err != nil {
		return nil, err
	}

	// ── 4. Overlap Advisory ───────────────────────────────────────────────
	overlaps := false
	if entry.EndTime != nil && (input.StartTime != nil || input.EndTime != nil) {
		overlaps, err = service.store.HasOverlap(context, entry.UserID, entry.StartTime, *entry.EndTime, entry.ID)
		if err != nil {
			return nil, err
		}
	}

	// ── 5. Persist ────────────────────────────────────────────────────────
	if err := service.store.Update(context, entry); err != nil {
		return nil, err
	}

	if wasRunning && !entry.IsRunning() {
		detached := withoutCancel(context)
		service.hub.Remove(entry.UserID)
		service.mirrorClear(detached, entry.UserID)
	}

	service.emitEntryEvent(context, EventEntryUpdated, entry)

	return &ManualResult{Entry: entry.Derive(), OverlapWarning: overlaps}, nil
}

// Delete soft-deletes an entry. Deleting a running entry also clears presence.
func (service *Service) Delete(context context.Context, scope guard.Scope, entryID string) error {
	entry, err := service.store.FindByID(context, entryID, scope.CompanyID)
	if err != nil {
		return err
	}

	owner, err := service.users.FindByID(context, entry.UserID)
	if err != nil {
		return err
	}
	if err := service.authority.CanActOnUser(context, scope, entry.UserID, owner.CompanyID); err != nil {
		return err
	}

	if err := service.store.SoftDelete(context, entry.ID); err != nil {
		return err
	}

	if entry.IsRunning() {
		detached := withoutCancel(context)
		service.hub.Remove(entry.UserID)
		service.mirrorClear(detached, entry.UserID)
	}

	service.emitEntryEvent(context, EventEntryDeleted, entry)

	return nil
}

/*
List returns entries visible to the caller.

Defaults to the caller's own entries. Admins may omit user_id to list the
whole company; anyone with authority over a specific user (lead over team
member, admin over company) may list that user explicitly.
*/
func (service *Service) List(context context.Context, scope guard.Scope, query ListQuery, page pagination.Params) ([]TimeEntry, int64, error) {
	targetUserID := query.UserID

	switch {
	case targetUserID == "" && scope.Role.IsCompanyAdmin():
		// Company-wide listing, bounded by the scope filter below.
	case targetUserID == "":
		targetUserID = scope.UserID
	case targetUserID != scope.UserID:
		owner, err := service.users.FindByID(context, targetUserID)
		if err != nil {
			return nil, 0, err
		}
		if err := service.authority.CanActOnUser(context, scope, targetUserID, owner.CompanyID); err != nil {
			return nil, 0, err
		}
	}

	filter := ListFilter{
		UserID:      targetUserID,
		CompanyID:   scope.CompanyID,
		ProjectID:   query.ProjectID,
		From:        query.From,
		To:          query.To,
		RunningOnly: query.RunningOnly,
	}

	return service.store.List(context, filter, page)
}

// # Internals

// validateReferences checks project/task existence, tenancy, and consistency.
//
// ownerCompanyID is the ENTRY OWNER's company: referenced projects and tasks
// must live in the owner's tenant regardless of who makes the call.
func (service *Service) validateReferences(context context.Context, ownerCompanyID *string, projectID, taskID *string) error {
	if taskID != nil && projectID == nil {
		return apperr.InvariantViolation("A task requires its project")
	}

	if projectID != nil {
		project, err := service.workspaces.FindProject(context, *projectID, ownerCompanyID)
		if err != nil {
			return err
		}
		if project.IsArchived {
			return apperr.InvariantViolation("Cannot track time on an archived project")
		}

		if taskID != nil {
			task, err := service.workspaces.FindTask(context, *taskID, ownerCompanyID)
			if err != nil {
				return err
			}
			if task.ProjectID != project.ID {
				return apperr.InvariantViolation("Task does not belong to the chosen project")
			}
		}
	}

	return nil
}

// emitEntryEvent fans an entry change out to the realtime layer. The owner's
// team memberships are resolved best effort; a lookup failure downgrades the
// event to company scope rather than dropping it.
func (service *Service) emitEntryEvent(context context.Context, eventType string, entry *TimeEntry) {
	if service.sink == nil {
		return
	}

	detached := withoutCancel(context)

	var companyID *string
	if owner, err := service.users.FindByID(detached, entry.UserID); err == nil {
		companyID = owner.CompanyID
	}
	teamIDs, err := service.workspaces.TeamIDsForUser(detached, entry.UserID)
	if err != nil {
		service.logger.Warn("entry_event_team_lookup_failed",
			slog.String("entry_id", entry.ID),
			slog.Any("error", err),
		)
	}

	service.sink.EntryChanged(EntryEvent{
		Type:      eventType,
		CompanyID: companyID,
		TeamIDs:   teamIDs,
		Entry:     entry.Derive(),
	})
}

func (service *Service) mirrorSave(context context.Context, timer presence.ActiveTimer) {
	if service.backup == nil {
		return
	}
	if err := service.backup.Save(context, timer); err != nil {
		service.logger.Warn("timer_backup_save_failed",
			slog.String("user_id", timer.UserID),
			slog.Any("error", err),
		)
	}
}

func (service *Service) mirrorClear(context context.Context, userID string) {
	if service.backup == nil {
		return
	}
	if err := service.backup.Clear(context, userID); err != nil {
		service.logger.Warn("timer_backup_clear_failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

// withoutCancel detaches post-commit work from the request's cancellation:
// once the write is durable, its side effects must run to completion.
func withoutCancel(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}
