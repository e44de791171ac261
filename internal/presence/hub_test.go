// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records every fanned-out event in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (publisher *capturePublisher) Publish(event Event) {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.events = append(publisher.events, event)
}

func (publisher *capturePublisher) all() []Event {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	return append([]Event(nil), publisher.events...)
}

// staticSource replays a fixed set of running timers.
type staticSource struct {
	timers []ActiveTimer
	err    error
}

func (source staticSource) ListRunning(context.Context) ([]ActiveTimer, error) {
	return source.timers, source.err
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func newTestHub(t *testing.T) (*Hub, *capturePublisher) {
	t.Helper()
	publisher := &capturePublisher{}
	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return NewHub(publisher, logger), publisher
}

func timerFor(userID string, companyID *string, teamIDs ...string) ActiveTimer {
	return ActiveTimer{
		UserID:    userID,
		UserName:  "User " + userID,
		CompanyID: companyID,
		TeamIDs:   teamIDs,
		EntryID:   "entry-" + userID,
		StartTime: time.Now().UTC(),
	}
}

func TestHub_UpsertAndRemoveEmitOrderedEvents(t *testing.T) {
	hub, publisher := newTestHub(t)
	companyA := "company-a"

	hub.Upsert(timerFor("user-1", &companyA))
	hub.Upsert(timerFor("user-2", &companyA))
	hub.Remove("user-1")

	events := publisher.all()
	require.Len(t, events, 3)

	assert.Equal(t, "timer.started", events[0].Type)
	assert.Equal(t, "timer.started", events[1].Type)
	assert.Equal(t, "timer.stopped", events[2].Type)
	assert.Equal(t, "user-1", events[2].Timer.UserID)

	// Sequence numbers are strictly increasing and match the hub's counter.
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Equal(t, events[2].Seq, hub.Seq())
}

func TestHub_RemoveAbsentUserIsSilent(t *testing.T) {
	hub, publisher := newTestHub(t)

	hub.Remove("nobody")

	assert.Empty(t, publisher.all())
	assert.Equal(t, uint64(0), hub.Seq())
}

func TestHub_UpsertOverwritesExistingTimer(t *testing.T) {
	hub, _ := newTestHub(t)
	companyA := "company-a"

	first := timerFor("user-1", &companyA)
	hub.Upsert(first)

	second := timerFor("user-1", &companyA)
	second.EntryID = "entry-replacement"
	hub.Upsert(second)

	active, found := hub.Get("user-1")
	require.True(t, found)
	assert.Equal(t, "entry-replacement", active.EntryID)
	assert.Len(t, hub.Snapshot(nil, ""), 1)
}

func TestHub_SnapshotScoping(t *testing.T) {
	hub, _ := newTestHub(t)
	companyA := "company-a"
	companyB := "company-b"

	hub.Upsert(timerFor("alice", &companyA, "team-1"))
	hub.Upsert(timerFor("bob", &companyA, "team-2"))
	hub.Upsert(timerFor("eve", &companyB, "team-9"))

	// Unscoped sees everything.
	assert.Len(t, hub.Snapshot(nil, ""), 3)

	// Company scope hides the other tenant.
	scoped := hub.Snapshot(&companyA, "")
	assert.Len(t, scoped, 2)
	for _, timer := range scoped {
		assert.Equal(t, companyA, *timer.CompanyID)
	}

	// Team scope narrows further.
	team := hub.Snapshot(&companyA, "team-1")
	require.Len(t, team, 1)
	assert.Equal(t, "alice", team[0].UserID)

	// A team filter never leaks across the company boundary.
	assert.Empty(t, hub.Snapshot(&companyA, "team-9"))
}

func TestHub_ConcurrentWritesKeepSeqConsistent(t *testing.T) {
	hub, publisher := newTestHub(t)
	companyA := "company-a"

	const writers = 8
	const rounds = 25

	var group sync.WaitGroup
	for i := 0; i < writers; i++ {
		group.Add(1)
		go func(id int) {
			defer group.Done()
			userID := string(rune('a' + id))
			for round := 0; round < rounds; round++ {
				hub.Upsert(timerFor(userID, &companyA))
				hub.Remove(userID)
			}
		}(i)
	}
	group.Wait()

	// Every write advanced the counter exactly once.
	events := publisher.all()
	assert.Len(t, events, writers*rounds*2)
	assert.Equal(t, uint64(writers*rounds*2), hub.Seq())
	assert.Empty(t, hub.Snapshot(nil, ""))

	// No two events share an ordinal.
	seen := make(map[uint64]bool, len(events))
	for _, event := range events {
		assert.False(t, seen[event.Seq], "duplicate seq %d", event.Seq)
		seen[event.Seq] = true
	}
}

func TestHub_ReloadReplacesStateWithoutEvents(t *testing.T) {
	hub, publisher := newTestHub(t)
	companyA := "company-a"

	// Pre-reload state that should be discarded.
	hub.Upsert(timerFor("stale", &companyA))
	seqBefore := hub.Seq()
	eventsBefore := len(publisher.all())

	source := staticSource{timers: []ActiveTimer{
		timerFor("alice", &companyA),
		timerFor("bob", &companyA),
	}}
	require.NoError(t, hub.Reload(context.Background(), source))

	// The stale record is gone, the source's records are in.
	_, found := hub.Get("stale")
	assert.False(t, found)
	assert.Len(t, hub.Snapshot(nil, ""), 2)

	// Nothing changed from the clients' point of view: no events, and the
	// ordinal did not move.
	assert.Len(t, publisher.all(), eventsBefore)
	assert.Equal(t, seqBefore, hub.Seq())
}

func TestHub_ReloadPropagatesSourceError(t *testing.T) {
	hub, _ := newTestHub(t)
	companyA := "company-a"

	hub.Upsert(timerFor("alice", &companyA))

	err := hub.Reload(context.Background(), staticSource{err: assert.AnError})
	require.Error(t, err)

	// A failed reload leaves the existing state untouched.
	_, found := hub.Get("alice")
	assert.True(t, found)
}

// switchableSource serves whatever timer set it was last given.
type switchableSource struct {
	mu     sync.Mutex
	timers []ActiveTimer
}

func (source *switchableSource) set(timers []ActiveTimer) {
	source.mu.Lock()
	defer source.mu.Unlock()
	source.timers = timers
}

func (source *switchableSource) ListRunning(context.Context) ([]ActiveTimer, error) {
	source.mu.Lock()
	defer source.mu.Unlock()
	return append([]ActiveTimer(nil), source.timers...), nil
}

func TestHub_ReloadEveryResyncsFromSource(t *testing.T) {
	hub, _ := newTestHub(t)
	companyA := "company-a"

	source := &switchableSource{}
	source.set([]ActiveTimer{timerFor("alice", &companyA)})

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.ReloadEvery(loopCtx, source, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		_, found := hub.Get("alice")
		return found
	}, time.Second, time.Millisecond)

	// Drift introduced behind the hub's back is repaired on a later tick.
	source.set([]ActiveTimer{timerFor("bob", &companyA)})

	require.Eventually(t, func() bool {
		_, staleAlice := hub.Get("alice")
		_, freshBob := hub.Get("bob")
		return !staleAlice && freshBob
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reload loop must stop when the context is cancelled")
	}
}
