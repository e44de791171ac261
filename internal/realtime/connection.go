// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

/*
Package realtime is the websocket channel that pushes presence and time-entry
events to connected clients.

One goroutine pair serves each connection: the read pump consumes client
commands and keeps the idle deadline fresh, the write pump owns ALL writes
(messages, pings, close frames) so the underlying connection never sees
concurrent writers.

Connections are expendable by design. A client that cannot keep up with the
event stream is disconnected ("slow_consumer") rather than buffered without
bound, and a client whose token is revoked mid-session is disconnected
("revoked") on the next heartbeat.
*/
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/temporahq/tempora/internal/platform/constants"
)

// # Connection

// Connection is one authenticated websocket session.
type Connection struct {
	socket *websocket.Conn

	// Identity, fixed at upgrade time.
	userID    string
	companyID *string
	teamIDs   []string
	jti       string
	expiresAt time.Time

	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}

	idleTimeout time.Duration
	logger      *slog.Logger
}

// newConnection wraps an upgraded socket. queueCap bounds the outbound
// buffer; a full buffer marks the client as a slow consumer.
func newConnection(socket *websocket.Conn, identity connIdentity, queueCap int, idleTimeout time.Duration, logger *slog.Logger) *Connection {
	return &Connection{
		socket:      socket,
		userID:      identity.userID,
		companyID:   identity.companyID,
		teamIDs:     identity.teamIDs,
		jti:         identity.jti,
		expiresAt:   identity.expiresAt,
		send:        make(chan []byte, queueCap),
		closed:      make(chan struct{}),
		idleTimeout: idleTimeout,
		logger: logger.With(
			slog.String("user_id", identity.userID),
		),
	}
}

// connIdentity is the claim subset a connection keeps after the handshake.
type connIdentity struct {
	userID    string
	companyID *string
	teamIDs   []string
	jti       string
	expiresAt time.Time
}

// enqueue offers a message to the outbound buffer without blocking.
// It reports false when the buffer is full — the caller must evict.
func (connection *Connection) enqueue(message []byte) bool {
	select {
	case connection.send <- message:
		return true
	case <-connection.closed:
		return true // already closing, nothing to evict
	default:
		return false
	}
}

// close terminates the connection once, with a best-effort close frame.
func (connection *Connection) close(reason string) {
	connection.closeOnce.Do(func() {
		close(connection.closed)

		deadline := time.Now().Add(constants.WriteWait)
		frame := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = connection.socket.WriteControl(websocket.CloseMessage, frame, deadline)
		_ = connection.socket.Close()

		connection.logger.Info("ws_connection_closed", slog.String("reason", reason))
	})
}

// # Client Commands

type clientCommand struct {
	Type   string `json:"type"`
	TeamID string `json:"team_id,omitempty"`
}

type serverMessage struct {
	Type string      `json:"type"`
	Seq  uint64      `json:"seq,omitempty"`
	Data interface{} `json:"data,omitempty"`
}

// SnapshotSource answers the get_active_timers command. Implemented by
// [presence.Hub.Snapshot] through a closure in the handler.
type SnapshotSource func(companyID *string, teamID string) (timers interface{}, seq uint64)

// readPump consumes client frames until the connection dies.
//
// Every received frame (including pongs) pushes the idle deadline forward;
// a client silent for the whole idle window is presumed gone.
func (connection *Connection) readPump(snapshot SnapshotSource, onClose func()) {
	defer func() {
		onClose()
		connection.close("")
	}()

	connection.socket.SetReadLimit(4 * 1024)
	_ = connection.socket.SetReadDeadline(time.Now().Add(connection.idleTimeout))
	connection.socket.SetPongHandler(func(string) error {
		return connection.socket.SetReadDeadline(time.Now().Add(connection.idleTimeout))
	})

	for {
		_, payload, err := connection.socket.ReadMessage()
		if err != nil {
			return
		}
		_ = connection.socket.SetReadDeadline(time.Now().Add(connection.idleTimeout))

		var command clientCommand
		if err := json.Unmarshal(payload, &command); err != nil {
			continue // malformed frames are ignored, not fatal
		}

		switch command.Type {
		case "ping":
			connection.reply(serverMessage{Type: "pong"})

		case "get_active_timers":
			timers, seq := snapshot(connection.companyID, command.TeamID)
			connection.reply(serverMessage{Type: "active_timers", Seq: seq, Data: timers})
		}
	}
}

// reply marshals and enqueues a direct response to this client.
func (connection *Connection) reply(message serverMessage) {
	payload, err := json.Marshal(message)
	if err != nil {
		return
	}
	if !connection.enqueue(payload) {
		connection.close(constants.CloseReasonSlowConsumer)
	}
}

// RevocationChecker reports whether a token ID has been revoked.
// Implemented by the identity KV store.
type RevocationChecker interface {
	IsRevoked(context context.Context, jti string) (bool, error)
}

// writePump owns the socket's write side: queued messages, heartbeat pings,
// and the revocation check that rides on each heartbeat tick.
func (connection *Connection) writePump(revocations RevocationChecker) {
	heartbeat := time.NewTicker(constants.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case message := <-connection.send:
			_ = connection.socket.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := connection.socket.WriteMessage(websocket.TextMessage, message); err != nil {
				connection.close("")
				return
			}

		case <-heartbeat.C:
			// Tokens do not outlive their session: revoked or expired means
			// the connection goes too, within one heartbeat interval.
			if connection.tokenDead(revocations) {
				connection.close(constants.CloseReasonRevoked)
				return
			}

			_ = connection.socket.SetWriteDeadline(time.Now().Add(constants.WriteWait))
			if err := connection.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				connection.close("")
				return
			}

		case <-connection.closed:
			return
		}
	}
}

// tokenDead checks expiry locally and revocation against the KV.
// KV errors fail open: a degraded cache must not drop every live connection.
func (connection *Connection) tokenDead(revocations RevocationChecker) bool {
	if time.Now().After(connection.expiresAt) {
		return true
	}

	checkCtx, cancel := context.WithTimeout(context.Background(), constants.KVCallTimeout)
	defer cancel()

	revoked, err := revocations.IsRevoked(checkCtx, connection.jti)
	if err != nil {
		connection.logger.Warn("ws_revocation_check_degraded", slog.Any("error", err))
		return false
	}

	return revoked
}
