// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package timer implements the time-tracking engine.

A time entry is either RUNNING (end time unset) or COMPLETED. At most one
entry per user may be running at any moment; the store enforces this with a
partial unique index, so the invariant holds across concurrent requests and
across multiple service instances.

Completed entries persist their duration alongside the end time, keeping
reporting aggregations on the indexed column. The duration is recomputed from
the timestamps on every write, so an edited entry can never disagree with
itself.
*/
package timer

import "time"

// # Time Entry

// TimeEntry is one unit of tracked work.
type TimeEntry struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ProjectID   *string    `json:"project_id,omitempty"`
	TaskID      *string    `json:"task_id,omitempty"`
	Description *string    `json:"description,omitempty"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"-"`

	// DurationSeconds is set for completed entries and stored with them;
	// see [TimeEntry.Derive].
	DurationSeconds *int64 `json:"duration_seconds,omitempty"`
}

// IsRunning reports whether the entry is still open.
func (entry *TimeEntry) IsRunning() bool {
	return entry.EndTime == nil
}

// Derive recomputes the duration from the timestamps. Running entries carry
// no duration; clients tick their own display from start_time. Stores call
// this before every write so the persisted column always matches.
func (entry *TimeEntry) Derive() *TimeEntry {
	if entry.EndTime == nil {
		entry.DurationSeconds = nil
		return entry
	}
	seconds := int64(entry.EndTime.Sub(entry.StartTime).Seconds())
	entry.DurationSeconds = &seconds
	return entry
}

// # Change Events

const (
	EventEntryCreated = "timeentry.created"
	EventEntryUpdated = "timeentry.updated"
	EventEntryDeleted = "timeentry.deleted"
)

// EntryEvent is a manual-entry change fanned out to the realtime layer.
//
// CompanyID and TeamIDs describe the OWNER of the entry; the broadcast layer
// uses them to decide which watchers may see the event.
type EntryEvent struct {
	Type      string     `json:"type"`
	CompanyID *string    `json:"company_id,omitempty"`
	TeamIDs   []string   `json:"-"`
	Entry     *TimeEntry `json:"entry"`
}

// EventSink receives entry change events for fan-out. Implemented by the
// realtime broadcaster; nil disables fan-out (tests).
type EventSink interface {
	EntryChanged(event EntryEvent)
}
