// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package realtime

import (
	"encoding/json"
	"log/slog"

	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/internal/timer"
)

// # Broadcaster

// Broadcaster fans presence and entry events out to the registry's
// connections. It implements [presence.Publisher] and [timer.EventSink].
//
// # Delivery Semantics
//
// Delivery is at-most-once per connection: the event is offered to each
// connection's bounded queue, and a connection whose queue is full is closed
// as a slow consumer instead of stalling the fan-out for everyone else.
type Broadcaster struct {
	registry *Registry
	logger   *slog.Logger
}

// NewBroadcaster creates the event fan-out over a registry.
func NewBroadcaster(registry *Registry, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger}
}

// Publish implements [presence.Publisher].
func (broadcaster *Broadcaster) Publish(event presence.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		broadcaster.logger.Error("broadcast_encode_failed", slog.Any("error", err))
		return
	}

	broadcaster.fanOut(payload, event.Timer.CompanyID)
}

// EntryChanged implements [timer.EventSink].
func (broadcaster *Broadcaster) EntryChanged(event timer.EntryEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		broadcaster.logger.Error("broadcast_encode_failed", slog.Any("error", err))
		return
	}

	broadcaster.fanOut(payload, event.CompanyID)
}

// fanOut delivers the payload to every connection allowed to see events of
// the given company. Company-less events (super-admin activity) are visible
// only to company-less watchers.
func (broadcaster *Broadcaster) fanOut(payload []byte, companyID *string) {
	for _, connection := range broadcaster.registry.snapshot() {
		if !mayObserve(connection, companyID) {
			continue
		}

		if !connection.enqueue(payload) {
			// The queue has been full for an entire burst of events: this
			// client is not keeping up and the backlog would only grow.
			connection.close(constants.CloseReasonSlowConsumer)
			broadcaster.registry.Remove(connection)
		}
	}
}

// mayObserve applies the tenancy filter for one connection.
//
//   - Unscoped watchers (super admins) see everything.
//   - Scoped watchers see only their own company's events.
func mayObserve(connection *Connection, eventCompanyID *string) bool {
	if connection.companyID == nil {
		return true
	}
	if eventCompanyID == nil {
		return false
	}
	return *connection.companyID == *eventCompanyID
}
