// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporahq/tempora/internal/platform/constants"
	"github.com/temporahq/tempora/internal/presence"
)

// # Test Plumbing

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func testLogger(t *testing.T) *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{t}, nil))
}

// staticRevocations is a RevocationChecker with a canned answer.
type staticRevocations struct {
	revoked bool
	err     error
}

func (s staticRevocations) IsRevoked(context.Context, string) (bool, error) {
	return s.revoked, s.err
}

// newSocketPair upgrades a real websocket over an httptest server and hands
// back both ends. The pumps need an actual socket; a nil one would panic on
// the first control frame.
func newSocketPair(t *testing.T) (serverSide, clientSide *websocket.Conn) {
	t.Helper()

	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		socket, err := upgrader.Upgrade(writer, request, nil)
		if err != nil {
			t.Error("upgrade failed:", err)
			return
		}
		accepted <- socket
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	clientSide, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSide.Close() })

	serverSide = <-accepted
	t.Cleanup(func() { _ = serverSide.Close() })

	return serverSide, clientSide
}

func liveIdentity(userID string, companyID *string) connIdentity {
	return connIdentity{
		userID:    userID,
		companyID: companyID,
		jti:       "jti-" + userID,
		expiresAt: time.Now().Add(time.Hour),
	}
}

// readClose drains the client side until the close frame arrives and returns
// its reason text.
func readClose(t *testing.T, client *websocket.Conn) string {
	t.Helper()

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := client.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected a close frame, got: %v", err)
		return closeErr.Text
	}
}

// # Registry

func TestRegistry_AddRemoveCount(t *testing.T) {
	registry := NewRegistry()
	logger := testLogger(t)

	// Two tabs for one user, one for another. Counting and bucket cleanup
	// never touch the socket, so nil sockets are fine here.
	tabOne := newConnection(nil, liveIdentity("user-1", nil), 1, time.Minute, logger)
	tabTwo := newConnection(nil, liveIdentity("user-1", nil), 1, time.Minute, logger)
	other := newConnection(nil, liveIdentity("user-2", nil), 1, time.Minute, logger)

	registry.Add(tabOne)
	registry.Add(tabTwo)
	registry.Add(other)
	assert.Equal(t, 3, registry.Count())
	assert.Len(t, registry.snapshot(), 3)

	registry.Remove(tabOne)
	assert.Equal(t, 2, registry.Count())

	// Removing twice is harmless.
	registry.Remove(tabOne)
	assert.Equal(t, 2, registry.Count())

	registry.Remove(tabTwo)
	registry.Remove(other)
	assert.Equal(t, 0, registry.Count())
	assert.Empty(t, registry.snapshot())
}

func TestRegistry_CloseUserClosesEveryTab(t *testing.T) {
	registry := NewRegistry()
	logger := testLogger(t)

	serverOne, clientOne := newSocketPair(t)
	serverTwo, clientTwo := newSocketPair(t)
	serverOther, clientOther := newSocketPair(t)

	registry.Add(newConnection(serverOne, liveIdentity("user-1", nil), 1, time.Minute, logger))
	registry.Add(newConnection(serverTwo, liveIdentity("user-1", nil), 1, time.Minute, logger))
	registry.Add(newConnection(serverOther, liveIdentity("user-2", nil), 1, time.Minute, logger))

	registry.CloseUser("user-1", constants.CloseReasonRevoked)

	assert.Equal(t, constants.CloseReasonRevoked, readClose(t, clientOne))
	assert.Equal(t, constants.CloseReasonRevoked, readClose(t, clientTwo))

	// The other user's connection stays up: the read times out instead of
	// seeing a close frame.
	_ = clientOther.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := clientOther.ReadMessage()
	require.Error(t, err)
	_, isClose := err.(*websocket.CloseError)
	assert.False(t, isClose, "other user's connection must stay open")
}

// # Broadcaster

func TestBroadcaster_TenancyScoping(t *testing.T) {
	registry := NewRegistry()
	logger := testLogger(t)
	companyA := "company-a"
	companyB := "company-b"

	watcherA := newConnection(nil, liveIdentity("alice", &companyA), 8, time.Minute, logger)
	watcherB := newConnection(nil, liveIdentity("bob", &companyB), 8, time.Minute, logger)
	rootWatcher := newConnection(nil, liveIdentity("root", nil), 8, time.Minute, logger)
	registry.Add(watcherA)
	registry.Add(watcherB)
	registry.Add(rootWatcher)

	broadcaster := NewBroadcaster(registry, logger)

	// A company-A event reaches A's watcher and the unscoped watcher only.
	broadcaster.Publish(presence.Event{
		Type: "timer.started",
		Seq:  1,
		Timer: presence.ActiveTimer{
			UserID:    "alice",
			CompanyID: &companyA,
			EntryID:   "entry-1",
			StartTime: time.Now().UTC(),
		},
	})

	assert.Len(t, watcherA.send, 1)
	assert.Len(t, watcherB.send, 0)
	assert.Len(t, rootWatcher.send, 1)

	// A company-less event (super-admin activity) is visible only to
	// unscoped watchers.
	broadcaster.Publish(presence.Event{
		Type:  "timer.started",
		Seq:   2,
		Timer: presence.ActiveTimer{UserID: "root", EntryID: "entry-2"},
	})

	assert.Len(t, watcherA.send, 1)
	assert.Len(t, watcherB.send, 0)
	assert.Len(t, rootWatcher.send, 2)
}

func TestBroadcaster_EvictsSlowConsumer(t *testing.T) {
	registry := NewRegistry()
	logger := testLogger(t)
	companyA := "company-a"

	serverSocket, client := newSocketPair(t)
	// Queue capacity 1 and no write pump: the second event finds the queue
	// full and the client gets evicted instead of stalling the fan-out.
	connection := newConnection(serverSocket, liveIdentity("slow", &companyA), 1, time.Minute, logger)
	registry.Add(connection)

	broadcaster := NewBroadcaster(registry, logger)
	event := presence.Event{
		Type:  "timer.started",
		Seq:   1,
		Timer: presence.ActiveTimer{UserID: "alice", CompanyID: &companyA},
	}

	broadcaster.Publish(event)
	assert.Equal(t, 1, registry.Count(), "first event fits the queue")

	broadcaster.Publish(event)
	assert.Equal(t, 0, registry.Count(), "overflowing connection is removed")

	assert.Equal(t, constants.CloseReasonSlowConsumer, readClose(t, client))
}

func TestMayObserve(t *testing.T) {
	companyA := "company-a"
	companyB := "company-b"
	logger := testLogger(t)

	scoped := newConnection(nil, liveIdentity("alice", &companyA), 1, time.Minute, logger)
	unscoped := newConnection(nil, liveIdentity("root", nil), 1, time.Minute, logger)

	assert.True(t, mayObserve(scoped, &companyA))
	assert.False(t, mayObserve(scoped, &companyB))
	assert.False(t, mayObserve(scoped, nil))

	assert.True(t, mayObserve(unscoped, &companyA))
	assert.True(t, mayObserve(unscoped, nil))
}

// # Connection

func TestConnection_PingAndSnapshotCommands(t *testing.T) {
	serverSocket, client := newSocketPair(t)
	logger := testLogger(t)
	companyA := "company-a"

	connection := newConnection(serverSocket, liveIdentity("alice", &companyA), 8, time.Minute, logger)

	var seenCompany *string
	var seenTeam string
	snapshot := func(companyID *string, teamID string) (interface{}, uint64) {
		seenCompany, seenTeam = companyID, teamID
		return []map[string]string{{"user_id": "alice"}}, 42
	}

	go connection.writePump(staticRevocations{})
	go connection.readPump(snapshot, func() {})

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, client.WriteJSON(map[string]string{"type": "ping"}))
	var reply serverMessage
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)

	require.NoError(t, client.WriteJSON(map[string]string{"type": "get_active_timers", "team_id": "team-1"}))
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, "active_timers", reply.Type)
	assert.Equal(t, uint64(42), reply.Seq)

	// The snapshot was taken with the CONNECTION's company scope, never one
	// the client could choose.
	require.NotNil(t, seenCompany)
	assert.Equal(t, companyA, *seenCompany)
	assert.Equal(t, "team-1", seenTeam)
}

func TestConnection_MalformedFramesAreIgnored(t *testing.T) {
	serverSocket, client := newSocketPair(t)
	logger := testLogger(t)

	connection := newConnection(serverSocket, liveIdentity("alice", nil), 8, time.Minute, logger)
	go connection.writePump(staticRevocations{})
	go connection.readPump(func(*string, string) (interface{}, uint64) { return nil, 0 }, func() {})

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("{not json")))

	// The connection survives and still answers the next command.
	require.NoError(t, client.WriteJSON(map[string]string{"type": "ping"}))
	var reply serverMessage
	require.NoError(t, client.ReadJSON(&reply))
	assert.Equal(t, "pong", reply.Type)
}

func TestConnection_TokenDead(t *testing.T) {
	logger := testLogger(t)

	live := liveIdentity("alice", nil)
	expired := live
	expired.expiresAt = time.Now().Add(-time.Minute)

	tests := []struct {
		name        string
		identity    connIdentity
		revocations staticRevocations
		wantDead    bool
	}{
		{
			name:        "live token passes",
			identity:    live,
			revocations: staticRevocations{},
			wantDead:    false,
		},
		{
			name:        "expired token dies locally",
			identity:    expired,
			revocations: staticRevocations{},
			wantDead:    true,
		},
		{
			name:        "revoked token dies",
			identity:    live,
			revocations: staticRevocations{revoked: true},
			wantDead:    true,
		},
		{
			name:        "revocation check failure fails open",
			identity:    live,
			revocations: staticRevocations{err: assert.AnError},
			wantDead:    false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			connection := newConnection(nil, test.identity, 1, time.Minute, logger)
			assert.Equal(t, test.wantDead, connection.tokenDead(test.revocations))
		})
	}
}

func TestConnection_EnqueueReportsFullQueue(t *testing.T) {
	logger := testLogger(t)
	connection := newConnection(nil, liveIdentity("alice", nil), 2, time.Minute, logger)

	assert.True(t, connection.enqueue([]byte("one")))
	assert.True(t, connection.enqueue([]byte("two")))
	assert.False(t, connection.enqueue([]byte("three")), "full queue must not block")
}
