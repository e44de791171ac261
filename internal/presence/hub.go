// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package presence maintains the in-memory registry of currently running timers.

The hub is the single source of "who is tracking what right now" answers for
the realtime channel. It mirrors the database's running entries (the rows
with a NULL end time) and is rebuilt from them on startup, so the process can
restart without losing the live picture.
*/
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// # Active Timer Snapshot

// ActiveTimer is one user's currently running timer as seen by the hub.
type ActiveTimer struct {
	UserID      string    `json:"user_id"`
	UserName    string    `json:"user_name"`
	CompanyID   *string   `json:"company_id,omitempty"`
	TeamIDs     []string  `json:"-"`
	EntryID     string    `json:"entry_id"`
	ProjectID   *string   `json:"project_id,omitempty"`
	TaskID      *string   `json:"task_id,omitempty"`
	Description *string   `json:"description,omitempty"`
	StartTime   time.Time `json:"start_time"`
}

// Event is a presence change fanned out to the realtime layer.
type Event struct {
	// Type is "timer.started" or "timer.stopped".
	Type string `json:"type"`
	// Seq is a monotonically increasing ordinal. Consumers use it to drop
	// stale updates that arrive out of order.
	Seq uint64 `json:"seq"`
	// Timer is the affected timer. For stop events only the identifying
	// fields are guaranteed to be set.
	Timer ActiveTimer `json:"timer"`
}

// Publisher receives presence events for fan-out. Implemented by the
// realtime broadcaster; a nil publisher disables fan-out (tests).
type Publisher interface {
	Publish(event Event)
}

// ReloadSource yields the running entries used to warm-start the hub.
type ReloadSource interface {
	ListRunning(context context.Context) ([]ActiveTimer, error)
}

// # Hub

// Hub is the concurrent map of running timers, keyed by user ID.
//
// # Concurrency
//
// A single RWMutex guards the map. Reads (snapshots for dashboards) take the
// read lock; starts and stops take the write lock. The sequence counter is
// advanced under the same write lock, so event order matches state order.
type Hub struct {
	mu     sync.RWMutex
	active map[string]ActiveTimer
	seq    uint64

	publisher Publisher
	logger    *slog.Logger
}

// NewHub creates an empty presence hub.
func NewHub(publisher Publisher, logger *slog.Logger) *Hub {
	return &Hub{
		active:    make(map[string]ActiveTimer),
		publisher: publisher,
		logger:    logger,
	}
}

// Upsert records a started timer and emits a "timer.started" event.
//
// A second start for the same user overwrites the previous record: the store
// is the authority on the single-timer invariant, the hub just mirrors it.
func (hub *Hub) Upsert(timer ActiveTimer) {
	hub.mu.Lock()
	hub.active[timer.UserID] = timer
	hub.seq++
	event := Event{Type: "timer.started", Seq: hub.seq, Timer: timer}
	hub.mu.Unlock()

	hub.publish(event)
}

// Remove clears a user's running timer and emits a "timer.stopped" event.
// Removing an absent user is a no-op and emits nothing.
func (hub *Hub) Remove(userID string) {
	hub.mu.Lock()
	timer, found := hub.active[userID]
	if !found {
		hub.mu.Unlock()
		return
	}
	delete(hub.active, userID)
	hub.seq++
	event := Event{Type: "timer.stopped", Seq: hub.seq, Timer: timer}
	hub.mu.Unlock()

	hub.publish(event)
}

// Get returns the running timer for a user, if any.
func (hub *Hub) Get(userID string) (ActiveTimer, bool) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	timer, found := hub.active[userID]
	return timer, found
}

// Snapshot returns the running timers visible to the given scope.
//
// # Filters
//   - companyID nil: every timer (super admin).
//   - companyID set: only timers of users in that company.
//   - teamID additionally set: only timers of users in that team.
func (hub *Hub) Snapshot(companyID *string, teamID string) []ActiveTimer {
	hub.mu.RLock()
	defer hub.mu.RUnlock()

	timers := make([]ActiveTimer, 0, len(hub.active))
	for _, timer := range hub.active {
		if !visibleTo(timer, companyID, teamID) {
			continue
		}
		timers = append(timers, timer)
	}

	return timers
}

// Seq returns the current event ordinal.
func (hub *Hub) Seq() uint64 {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return hub.seq
}

// Reload replaces the hub's contents with the store's running entries.
//
// Called at startup and by the periodic re-sync. The replacement happens
// atomically under the write lock; no events are emitted, because nothing
// changed from the clients' point of view: the timers were already running.
func (hub *Hub) Reload(context context.Context, source ReloadSource) error {
	running, err := source.ListRunning(context)
	if err != nil {
		return err
	}

	rebuilt := make(map[string]ActiveTimer, len(running))
	for _, timer := range running {
		rebuilt[timer.UserID] = timer
	}

	hub.mu.Lock()
	hub.active = rebuilt
	hub.mu.Unlock()

	hub.logger.Info("presence_hub_reloaded", slog.Int("active_timers", len(rebuilt)))

	return nil
}

// ReloadEvery re-syncs the hub from the source at the given interval until
// parent is cancelled. Periodic reloads paper over drift from missed events
// (a crash between the store write and the hub update). A failed pass keeps
// the current state and retries on the next tick.
func (hub *Hub) ReloadEvery(parent context.Context, source ReloadSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-parent.Done():
			return
		case <-ticker.C:
			if err := hub.Reload(parent, source); err != nil {
				hub.logger.Warn("presence_hub_resync_failed", slog.Any("error", err))
			}
		}
	}
}

// publish hands the event to the realtime layer outside the hub lock.
func (hub *Hub) publish(event Event) {
	if hub.publisher == nil {
		return
	}
	hub.publisher.Publish(event)
}

// visibleTo applies the scope filters to one timer.
func visibleTo(timer ActiveTimer, companyID *string, teamID string) bool {
	if companyID != nil {
		if timer.CompanyID == nil || *timer.CompanyID != *companyID {
			return false
		}
	}

	if teamID != "" {
		for _, id := range timer.TeamIDs {
			if id == teamID {
				return true
			}
		}
		return false
	}

	return true
}
