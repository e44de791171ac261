// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package realtime

import "sync"

// # Connection Registry

// Registry tracks live connections, indexed by user. A user may hold several
// connections at once (multiple tabs, multiple devices).
type Registry struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connections: make(map[string]map[*Connection]struct{})}
}

// Add registers a connection under its user.
func (registry *Registry) Add(connection *Connection) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	set, found := registry.connections[connection.userID]
	if !found {
		set = make(map[*Connection]struct{})
		registry.connections[connection.userID] = set
	}
	set[connection] = struct{}{}
}

// Remove unregisters a connection. Empty user buckets are dropped.
func (registry *Registry) Remove(connection *Connection) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	set, found := registry.connections[connection.userID]
	if !found {
		return
	}
	delete(set, connection)
	if len(set) == 0 {
		delete(registry.connections, connection.userID)
	}
}

// CloseUser terminates every connection of one user with the given reason.
func (registry *Registry) CloseUser(userID, reason string) {
	registry.mu.RLock()
	targets := make([]*Connection, 0, 4)
	for connection := range registry.connections[userID] {
		targets = append(targets, connection)
	}
	registry.mu.RUnlock()

	// Close outside the lock: close() may block on the socket write.
	for _, connection := range targets {
		connection.close(reason)
	}
}

// snapshot returns the current connections without holding the lock during
// iteration by the caller.
func (registry *Registry) snapshot() []*Connection {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	all := make([]*Connection, 0, len(registry.connections))
	for _, set := range registry.connections {
		for connection := range set {
			all = append(all, connection)
		}
	}
	return all
}

// Count returns the number of live connections.
func (registry *Registry) Count() int {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	total := 0
	for _, set := range registry.connections {
		total += len(set)
	}
	return total
}
