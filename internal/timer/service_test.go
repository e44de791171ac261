// Copyright (c) 2026 Tempora. All rights reserved.
// Author: dev@tempora.app

package timer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temporahq/tempora/internal/guard"
	"github.com/temporahq/tempora/internal/identity"
	"github.com/temporahq/tempora/internal/platform/apperr"
	"github.com/temporahq/tempora/internal/platform/sec"
	"github.com/temporahq/tempora/internal/presence"
	"github.com/temporahq/tempora/internal/workspace"
	"github.com/temporahq/tempora/pkg/pagination"
	"github.com/temporahq/tempora/pkg/pointer"
)

// # In-Memory Fakes

// fakeStore mirrors the store's concurrency contract: the single-timer
// invariant is enforced atomically under one mutex, exactly like the
// partial unique index does in PostgreSQL.
type fakeStore struct {
	mu      sync.Mutex
	entries map[string]*TimeEntry
	// companyByUser backs the tenancy filter of FindByID/List.
	companyByUser map[string]*string
}

func newFakeStore(companyByUser map[string]*string) *fakeStore {
	return &fakeStore{
		entries:       make(map[string]*TimeEntry),
		companyByUser: companyByUser,
	}
}

func (store *fakeStore) Create(_ context.Context, entry *TimeEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	if entry.EndTime == nil {
		for _, existing := range store.entries {
			if existing.UserID == entry.UserID && existing.EndTime == nil && existing.DeletedAt == nil {
				return apperr.TimerAlreadyRunning()
			}
		}
	}

	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt
	copied := *entry
	store.entries[entry.ID] = &copied
	return nil
}

func (store *fakeStore) StopRunning(_ context.Context, userID string, endTime time.Time) (*TimeEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, entry := range store.entries {
		if entry.UserID == userID && entry.EndTime == nil && entry.DeletedAt == nil {
			entry.EndTime = pointer.To(endTime)
			entry.UpdatedAt = time.Now().UTC()
			copied := *entry
			return &copied, nil
		}
	}
	return nil, apperr.NoRunningTimer()
}

func (store *fakeStore) FindRunning(_ context.Context, userID string) (*TimeEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, entry := range store.entries {
		if entry.UserID == userID && entry.EndTime == nil && entry.DeletedAt == nil {
			copied := *entry
			return &copied, nil
		}
	}
	return nil, apperr.NotFound("Running timer")
}

func (store *fakeStore) FindByID(_ context.Context, entryID string, companyID *string) (*TimeEntry, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, found := store.entries[entryID]
	if !found || entry.DeletedAt != nil {
		return nil, apperr.NotFound("Time entry")
	}
	if companyID != nil {
		ownerCompany := store.companyByUser[entry.UserID]
		if ownerCompany == nil || *ownerCompany != *companyID {
			return nil, apperr.NotFound("Time entry")
		}
	}
	copied := *entry
	return &copied, nil
}

func (store *fakeStore) Update(_ context.Context, entry *TimeEntry) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	existing, found := store.entries[entry.ID]
	if !found || existing.DeletedAt != nil {
		return apperr.NotFound("Time entry")
	}
	copied := *entry
	copied.UpdatedAt = time.Now().UTC()
	store.entries[entry.ID] = &copied
	return nil
}

func (store *fakeStore) SoftDelete(_ context.Context, entryID string) error {
	store.mu.Lock()
	defer store.mu.Unlock()

	entry, found := store.entries[entryID]
	if !found || entry.DeletedAt != nil {
		return apperr.NotFound("Time entry")
	}
	entry.DeletedAt = pointer.To(time.Now().UTC())
	return nil
}

func (store *fakeStore) List(_ context.Context, filter ListFilter, page pagination.Params) ([]TimeEntry, int64, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var matched []TimeEntry
	for _, entry := range store.entries {
		if entry.DeletedAt != nil {
			continue
		}
		if filter.UserID != "" && entry.UserID != filter.UserID {
			continue
		}
		if filter.CompanyID != nil {
			ownerCompany := store.companyByUser[entry.UserID]
			if ownerCompany == nil || *ownerCompany != *filter.CompanyID {
				continue
			}
		}
		if filter.RunningOnly && entry.EndTime != nil {
			continue
		}
		copied := *entry
		matched = append(matched, *copied.Derive())
	}
	return matched, int64(len(matched)), nil
}

func (store *fakeStore) HasOverlap(_ context.Context, userID string, start, end time.Time, excludeEntryID string) (bool, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	for _, entry := range store.entries {
		if entry.UserID != userID || entry.DeletedAt != nil || entry.ID == excludeEntryID {
			continue
		}
		entryEnd := time.Now().Add(1000 * time.Hour) // running = open-ended
		if entry.EndTime != nil {
			entryEnd = *entry.EndTime
		}
		if entry.StartTime.Before(end) && entryEnd.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (store *fakeStore) ListRunning(_ context.Context) ([]presence.ActiveTimer, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	var timers []presence.ActiveTimer
	for _, entry := range store.entries {
		if entry.EndTime == nil && entry.DeletedAt == nil {
			timers = append(timers, presence.ActiveTimer{
				UserID:    entry.UserID,
				EntryID:   entry.ID,
				CompanyID: store.companyByUser[entry.UserID],
				StartTime: entry.StartTime,
			})
		}
	}
	return timers, nil
}

// fakeWorkspace serves a fixed project/task graph.
type fakeWorkspace struct {
	projects map[string]*workspace.Project
	tasks    map[string]*workspace.Task
	teams    map[string][]string // userID → team IDs
}

func (f *fakeWorkspace) CreateCompany(context.Context, *workspace.Company) error { return nil }

func (f *fakeWorkspace) FindProject(_ context.Context, projectID string, companyID *string) (*workspace.Project, error) {
	project, found := f.projects[projectID]
	if !found {
		return nil, apperr.NotFound("Project")
	}
	if companyID != nil && project.CompanyID != *companyID {
		return nil, apperr.NotFound("Project")
	}
	return project, nil
}

func (f *fakeWorkspace) FindTask(_ context.Context, taskID string, _ *string) (*workspace.Task, error) {
	task, found := f.tasks[taskID]
	if !found {
		return nil, apperr.NotFound("Task")
	}
	return task, nil
}

func (f *fakeWorkspace) ListTeams(context.Context, *string, pagination.Params) ([]workspace.Team, int64, error) {
	return nil, 0, nil
}

func (f *fakeWorkspace) ListProjects(context.Context, *string, pagination.Params) ([]workspace.Project, int64, error) {
	return nil, 0, nil
}

func (f *fakeWorkspace) TeamIDsForUser(_ context.Context, userID string) ([]string, error) {
	return f.teams[userID], nil
}

func (f *fakeWorkspace) LeadsUser(context.Context, string, string) (bool, error) {
	return false, nil
}

// fakeUsers serves fixed identity rows.
type fakeUsers struct {
	users map[string]*identity.User
}

func (f *fakeUsers) FindByEmail(context.Context, string) (*identity.User, error) {
	return nil, apperr.NotFound("User")
}

func (f *fakeUsers) FindByID(_ context.Context, userID string) (*identity.User, error) {
	if user, found := f.users[userID]; found {
		return user, nil
	}
	return nil, apperr.NotFound("User")
}

func (f *fakeUsers) UpdatePasswordHash(context.Context, string, string) error { return nil }

// captureSink records fanned-out entry events.
type captureSink struct {
	mu     sync.Mutex
	events []EntryEvent
}

func (sink *captureSink) EntryChanged(event EntryEvent) {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	sink.events = append(sink.events, event)
}

func (sink *captureSink) types() []string {
	sink.mu.Lock()
	defer sink.mu.Unlock()
	var types []string
	for _, event := range sink.events {
		types = append(types, event.Type)
	}
	return types
}

// # Fixture

var (
	companyA = "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	companyB = "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"

	userAlice = "00000000-0000-0000-0000-00000000000a"
	userBob   = "00000000-0000-0000-0000-00000000000b"
	userEve   = "00000000-0000-0000-0000-00000000000e"

	projectX = "11111111-0000-0000-0000-000000000001"
	taskX1   = "22222222-0000-0000-0000-000000000001"
)

type timerFixture struct {
	service *Service
	store   *fakeStore
	hub     *presence.Hub
	sink    *captureSink
}

func newTimerFixture(t *testing.T) *timerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))

	companyByUser := map[string]*string{
		userAlice: &companyA,
		userBob:   &companyA,
		userEve:   &companyB,
	}
	store := newFakeStore(companyByUser)

	workspaces := &fakeWorkspace{
		projects: map[string]*workspace.Project{
			projectX: {ID: projectX, TeamID: "team-1", CompanyID: companyA, Name: "Apollo"},
		},
		tasks: map[string]*workspace.Task{
			taskX1: {ID: taskX1, ProjectID: projectX, Name: "Design"},
		},
		teams: map[string][]string{userAlice: {"team-1"}},
	}

	users := &fakeUsers{users: map[string]*identity.User{
		userAlice: {ID: userAlice, CompanyID: &companyA, FirstName: "Alice", LastName: "A", Role: "regular_user", IsActive: true},
		userBob:   {ID: userBob, CompanyID: &companyA, FirstName: "Bob", LastName: "B", Role: "regular_user", IsActive: true},
		userEve:   {ID: userEve, CompanyID: &companyB, FirstName: "Eve", LastName: "E", Role: "regular_user", IsActive: true},
	}}

	sink := &captureSink{}
	hub := presence.NewHub(nil, logger)

	service := NewService(ServiceParams{
		Store:      store,
		Workspaces: workspaces,
		Users:      users,
		Authority:  guard.NewAuthority(workspaces),
		Hub:        hub,
		Sink:       sink,
		Logger:     logger,
	})

	return &timerFixture{service: service, store: store, hub: hub, sink: sink}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func scopeOf(userID string, companyID *string, role sec.UserRole) guard.Scope {
	return guard.Scope{UserID: userID, CompanyID: companyID, Role: role}
}

// # Start / Stop

func TestStart_CreatesRunningEntryAndPresence(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	entry, err := fixture.service.Start(context.Background(), scope, StartInput{
		ProjectID:   &projectX,
		TaskID:      &taskX1,
		Description: pointer.To("deep work"),
	})
	require.NoError(t, err)

	assert.True(t, entry.IsRunning())
	assert.Equal(t, userAlice, entry.UserID)

	active, found := fixture.hub.Get(userAlice)
	require.True(t, found)
	assert.Equal(t, entry.ID, active.EntryID)
	assert.Equal(t, "Alice A", active.UserName)
}

func TestStart_SecondTimerConflicts(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	_, err := fixture.service.Start(context.Background(), scope, StartInput{})
	require.NoError(t, err)

	_, err = fixture.service.Start(context.Background(), scope, StartInput{})
	require.Error(t, err)
	assert.Equal(t, "TIMER_ALREADY_RUNNING", apperr.As(err).Code)
}

// Concurrent starts must yield exactly one running entry regardless of
// interleaving; everyone else gets the conflict.
func TestStart_ConcurrentStartsExactlyOneWins(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	const attempts = 16

	var group sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		group.Add(1)
		go func() {
			defer group.Done()
			_, err := fixture.service.Start(context.Background(), scope, StartInput{})
			results <- err
		}()
	}
	group.Wait()
	close(results)

	succeeded, conflicted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperr.IsCode(err, "TIMER_ALREADY_RUNNING"):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, conflicted)

	running, err := fixture.store.ListRunning(context.Background())
	require.NoError(t, err)
	assert.Len(t, running, 1)
}

func TestStart_RejectsForeignProject(t *testing.T) {
	fixture := newTimerFixture(t)
	// Eve lives in company B; project X belongs to company A.
	scope := scopeOf(userEve, &companyB, sec.RoleRegularUser)

	_, err := fixture.service.Start(context.Background(), scope, StartInput{ProjectID: &projectX})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestStart_RejectsTaskWithoutProject(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	_, err := fixture.service.Start(context.Background(), scope, StartInput{TaskID: &taskX1})
	require.Error(t, err)
	assert.Equal(t, "INVARIANT_VIOLATION", apperr.As(err).Code)
}

func TestStop_CompletesEntryAndClearsPresence(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	started, err := fixture.service.Start(context.Background(), scope, StartInput{})
	require.NoError(t, err)

	stopped, err := fixture.service.Stop(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, started.ID, stopped.ID)
	assert.False(t, stopped.IsRunning())
	require.NotNil(t, stopped.Derive().DurationSeconds)
	assert.GreaterOrEqual(t, *stopped.DurationSeconds, int64(0))

	_, found := fixture.hub.Get(userAlice)
	assert.False(t, found)
}

func TestStop_WithoutRunningTimer(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	_, err := fixture.service.Stop(context.Background(), scope)
	require.Error(t, err)
	assert.Equal(t, "NO_RUNNING_TIMER", apperr.As(err).Code)
}

// # Manual Entries

func TestCreateManual_DerivesDuration(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	result, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		StartTime: &start,
		EndTime:   &end,
	})
	require.NoError(t, err)

	assert.False(t, result.OverlapWarning)
	require.NotNil(t, result.Entry.DurationSeconds)
	assert.Equal(t, int64(90*60), *result.Entry.DurationSeconds)
	assert.Equal(t, []string{EventEntryCreated}, fixture.sink.types())
}

func TestCreateManual_NegativeDurationRejected(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(-time.Minute)

	_, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		StartTime: &start,
		EndTime:   &end,
	})
	require.Error(t, err)
	assert.Equal(t, "INVARIANT_VIOLATION", apperr.As(err).Code)
}

func TestCreateManual_MissingTimesRejected(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	_, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", apperr.As(err).Code)
}

func TestCreateManual_OverlapIsPermittedButFlagged(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	first, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)
	assert.False(t, first.OverlapWarning)

	// Half an hour into the first entry.
	overlapStart := start.Add(30 * time.Minute)
	overlapEnd := overlapStart.Add(time.Hour)
	second, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		StartTime: &overlapStart, EndTime: &overlapEnd,
	})
	require.NoError(t, err, "overlapping entries are allowed")
	assert.True(t, second.OverlapWarning, "but the overlap must be flagged")
}

func TestCreateManual_ForAnotherUserRequiresAuthority(t *testing.T) {
	fixture := newTimerFixture(t)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	// A regular user cannot book time for a colleague.
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)
	_, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		UserID: userBob, StartTime: &start, EndTime: &end,
	})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)

	// A company admin can.
	adminScope := scopeOf(userAlice, &companyA, sec.RoleCompanyAdmin)
	result, err := fixture.service.CreateManual(context.Background(), adminScope, ManualInput{
		UserID: userBob, StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)
	assert.Equal(t, userBob, result.Entry.UserID)
}

func TestCreateManual_ReferencesCheckedAgainstOwnerTenant(t *testing.T) {
	fixture := newTimerFixture(t)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	// A super admin books time for Eve (company B) against a company-A
	// project. The caller's unscoped view must not bypass the owner's
	// tenant boundary.
	rootScope := scopeOf("root", nil, sec.RoleSuperAdmin)
	_, err := fixture.service.CreateManual(context.Background(), rootScope, ManualInput{
		UserID:    userEve,
		ProjectID: &projectX,
		StartTime: &start,
		EndTime:   &end,
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)

	// The same booking inside the owner's own tenant is fine.
	result, err := fixture.service.CreateManual(context.Background(), rootScope, ManualInput{
		UserID:    userBob,
		ProjectID: &projectX,
		StartTime: &start,
		EndTime:   &end,
	})
	require.NoError(t, err)
	assert.Equal(t, userBob, result.Entry.UserID)
}

func TestUpdate_ReferencesCheckedAgainstOwnerTenant(t *testing.T) {
	fixture := newTimerFixture(t)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	scopeEve := scopeOf(userEve, &companyB, sec.RoleRegularUser)
	created, err := fixture.service.CreateManual(context.Background(), scopeEve, ManualInput{
		StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)

	// Even an unscoped caller cannot attach a foreign-tenant project to
	// Eve's entry.
	rootScope := scopeOf("root", nil, sec.RoleSuperAdmin)
	_, err = fixture.service.Update(context.Background(), rootScope, created.Entry.ID, UpdateInput{
		ProjectID: &projectX,
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

// # Update / Delete

func TestUpdate_SettingEndTimeStopsRunningEntry(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	started, err := fixture.service.Start(context.Background(), scope, StartInput{})
	require.NoError(t, err)
	_, found := fixture.hub.Get(userAlice)
	require.True(t, found)

	end := time.Now().UTC().Add(time.Second)
	result, err := fixture.service.Update(context.Background(), scope, started.ID, UpdateInput{
		EndTime: &end,
	})
	require.NoError(t, err)

	assert.False(t, result.Entry.IsRunning())

	// Stop-equivalent: presence is cleared exactly as if Stop had been called.
	_, found = fixture.hub.Get(userAlice)
	assert.False(t, found)
}

func TestUpdate_EndBeforeStartRejected(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	created, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{
		StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)

	// Move the start but keep it completed: fine.
	newStart := start.Add(-time.Hour)
	_, err = fixture.service.Update(context.Background(), scope, created.Entry.ID, UpdateInput{
		StartTime: &newStart,
	})
	assert.NoError(t, err)

	// Push end before start: invariant violation.
	badEnd := newStart.Add(-time.Minute)
	_, err = fixture.service.Update(context.Background(), scope, created.Entry.ID, UpdateInput{
		EndTime: &badEnd,
	})
	require.Error(t, err)
	assert.Equal(t, "INVARIANT_VIOLATION", apperr.As(err).Code)
}

func TestUpdate_CrossTenantEntryInvisible(t *testing.T) {
	fixture := newTimerFixture(t)

	// Alice (company A) books an entry.
	scopeA := scopeOf(userAlice, &companyA, sec.RoleRegularUser)
	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	created, err := fixture.service.CreateManual(context.Background(), scopeA, ManualInput{
		StartTime: &start, EndTime: &end,
	})
	require.NoError(t, err)

	// Eve (company B) cannot even see it — 404, not 403, to avoid
	// confirming the entry exists.
	scopeB := scopeOf(userEve, &companyB, sec.RoleCompanyAdmin)
	_, err = fixture.service.Update(context.Background(), scopeB, created.Entry.ID, UpdateInput{
		Description: pointer.To("hijacked"),
	})
	require.Error(t, err)
	assert.Equal(t, "NOT_FOUND", apperr.As(err).Code)
}

func TestDelete_RunningEntryClearsPresence(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	started, err := fixture.service.Start(context.Background(), scope, StartInput{})
	require.NoError(t, err)

	err = fixture.service.Delete(context.Background(), scope, started.ID)
	require.NoError(t, err)

	_, found := fixture.hub.Get(userAlice)
	assert.False(t, found)

	_, err = fixture.service.Stop(context.Background(), scope)
	assert.Equal(t, "NO_RUNNING_TIMER", apperr.As(err).Code)
}

// # Listing

func TestList_DefaultsToOwnEntries(t *testing.T) {
	fixture := newTimerFixture(t)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	scopeAlice := scopeOf(userAlice, &companyA, sec.RoleRegularUser)
	_, err := fixture.service.CreateManual(context.Background(), scopeAlice, ManualInput{StartTime: &start, EndTime: &end})
	require.NoError(t, err)

	scopeBob := scopeOf(userBob, &companyA, sec.RoleRegularUser)
	_, err = fixture.service.CreateManual(context.Background(), scopeBob, ManualInput{StartTime: &start, EndTime: &end})
	require.NoError(t, err)

	entries, total, err := fixture.service.List(context.Background(), scopeAlice, ListQuery{}, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)

	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, userAlice, entries[0].UserID)
}

func TestList_RegularUserCannotListColleague(t *testing.T) {
	fixture := newTimerFixture(t)
	scope := scopeOf(userAlice, &companyA, sec.RoleRegularUser)

	_, _, err := fixture.service.List(context.Background(), scope, ListQuery{UserID: userBob}, pagination.Params{Page: 1, Limit: 20})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", apperr.As(err).Code)
}

func TestList_AdminListsWholeCompany(t *testing.T) {
	fixture := newTimerFixture(t)

	start := time.Date(2026, 8, 25, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	for _, userID := range []string{userAlice, userBob} {
		scope := scopeOf(userID, &companyA, sec.RoleRegularUser)
		_, err := fixture.service.CreateManual(context.Background(), scope, ManualInput{StartTime: &start, EndTime: &end})
		require.NoError(t, err)
	}
	scopeEve := scopeOf(userEve, &companyB, sec.RoleRegularUser)
	_, err := fixture.service.CreateManual(context.Background(), scopeEve, ManualInput{StartTime: &start, EndTime: &end})
	require.NoError(t, err)

	adminScope := scopeOf(userAlice, &companyA, sec.RoleCompanyAdmin)
	_, total, err := fixture.service.List(context.Background(), adminScope, ListQuery{}, pagination.Params{Page: 1, Limit: 20})
	require.NoError(t, err)

	// Company A only: Eve's entry stays invisible.
	assert.Equal(t, int64(2), total)
}

// # Active Snapshot

func TestActive_ScopedToCompany(t *testing.T) {
	fixture := newTimerFixture(t)

	_, err := fixture.service.Start(context.Background(), scopeOf(userAlice, &companyA, sec.RoleRegularUser), StartInput{})
	require.NoError(t, err)
	_, err = fixture.service.Start(context.Background(), scopeOf(userEve, &companyB, sec.RoleRegularUser), StartInput{})
	require.NoError(t, err)

	// Company A sees only Alice.
	timers := fixture.service.Active(scopeOf(userBob, &companyA, sec.RoleRegularUser), "")
	require.Len(t, timers, 1)
	assert.Equal(t, userAlice, timers[0].UserID)

	// A super admin sees both.
	timers = fixture.service.Active(scopeOf("root", nil, sec.RoleSuperAdmin), "")
	assert.Len(t, timers, 2)
}
