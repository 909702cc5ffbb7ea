package calsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/gcal"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

type fakeEventStore struct {
	byID    map[uuid.UUID]*event.Event
	deleted []uuid.UUID
	updates int
}

func (f *fakeEventStore) GetByID(_ context.Context, id uuid.UUID) (*event.Event, error) {
	e, ok := f.byID[id]
	if !ok {
		return nil, eherrors.E(eherrors.KindNotFound, "event not found")
	}
	return e, nil
}

func (f *fakeEventStore) Update(_ context.Context, e *event.Event) error {
	f.byID[e.ID] = e
	f.updates++
	return nil
}

func (f *fakeEventStore) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	if _, ok := f.byID[id]; !ok {
		return eherrors.E(eherrors.KindNotFound, "event not found")
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeCalendarStore struct {
	byID       map[uuid.UUID]*store.Calendar
	defaultCal *store.Calendar
}

func (f *fakeCalendarStore) GetForUser(_ context.Context, _ uuid.UUID, id uuid.UUID) (*store.Calendar, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, eherrors.E(eherrors.KindNotFound, "calendar not found")
	}
	return c, nil
}

func (f *fakeCalendarStore) GetDefault(context.Context, uuid.UUID) (*store.Calendar, error) {
	if f.defaultCal == nil {
		return nil, eherrors.E(eherrors.KindNotFound, "calendar not found")
	}
	return f.defaultCal, nil
}

type fakeAPI struct {
	createdID string
	createErr error
	created   []*gcal.GCalEvent
	deleted   []string
	deleteErr error
}

func (f *fakeAPI) CreateEvent(_ context.Context, g *gcal.GCalEvent) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, g)
	return f.createdID, nil
}

func (f *fakeAPI) DeleteEvent(_ context.Context, externalID string) error {
	f.deleted = append(f.deleted, externalID)
	return f.deleteErr
}

type fakeFactory struct {
	api *fakeAPI
	err error
}

func (f *fakeFactory) ClientFor(context.Context, *store.Calendar) (CalendarAPI, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.api, nil
}

func approvedEvent(userID uuid.UUID) *event.Event {
	now := time.Now().UTC()
	return &event.Event{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       event.TypeEvent,
		Title:      "Exam appointment",
		Start:      time.Date(2025, 11, 4, 8, 50, 0, 0, time.UTC),
		Timezone:   "Europe/Budapest",
		Status:     event.StatusApproved,
		ApprovedAt: &now,
	}
}

func newSyncer(events *fakeEventStore, cals *fakeCalendarStore, api *fakeAPI) *Syncer {
	return NewSyncer(events, cals, &fakeFactory{api: api}, nil, logging.NewNopLogger())
}

func TestSyncEvent_Success(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	cal := &store.Calendar{ID: uuid.New(), UserID: userID, ExternalID: "primary"}

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	cals := &fakeCalendarStore{defaultCal: cal}
	api := &fakeAPI{createdID: "gcal-123"}

	s := newSyncer(events, cals, api)
	require.NoError(t, s.SyncEvent(context.Background(), e.ID, nil))

	assert.Equal(t, event.StatusSynced, e.Status)
	require.NotNil(t, e.ExternalEventID)
	assert.Equal(t, "gcal-123", *e.ExternalEventID)
	require.NotNil(t, e.SyncedAt)
	require.NotNil(t, e.CalendarID)
	assert.Equal(t, cal.ID, *e.CalendarID)

	require.Len(t, api.created, 1)
	assert.Equal(t, "Exam appointment", api.created[0].Summary)
}

func TestSyncEvent_ExplicitCalendarWins(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	explicit := &store.Calendar{ID: uuid.New(), UserID: userID, ExternalID: "work"}
	fallback := &store.Calendar{ID: uuid.New(), UserID: userID, ExternalID: "primary"}

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	cals := &fakeCalendarStore{
		byID:       map[uuid.UUID]*store.Calendar{explicit.ID: explicit},
		defaultCal: fallback,
	}
	api := &fakeAPI{createdID: "gcal-456"}

	s := newSyncer(events, cals, api)
	require.NoError(t, s.SyncEvent(context.Background(), e.ID, &explicit.ID))

	require.NotNil(t, e.CalendarID)
	assert.Equal(t, explicit.ID, *e.CalendarID)
}

// A synced event is an idempotent no-op: retried jobs must not create
// duplicates.
func TestSyncEvent_AlreadySyncedNoOp(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	require.NoError(t, e.MarkSynced("gcal-1"))

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	api := &fakeAPI{createdID: "gcal-2"}

	s := newSyncer(events, &fakeCalendarStore{}, api)
	require.NoError(t, s.SyncEvent(context.Background(), e.ID, nil))

	assert.Empty(t, api.created)
	assert.Equal(t, "gcal-1", *e.ExternalEventID)
}

func TestSyncEvent_NotApprovedSkipped(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	e.Status = event.StatusPendingApproval
	e.ApprovedAt = nil

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	api := &fakeAPI{createdID: "x"}

	s := newSyncer(events, &fakeCalendarStore{}, api)
	require.NoError(t, s.SyncEvent(context.Background(), e.ID, nil))

	assert.Empty(t, api.created)
	assert.Equal(t, event.StatusPendingApproval, e.Status)
}

// No usable calendar parks the event in ERROR without retrying.
func TestSyncEvent_NoCalendarGoesToError(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	s := newSyncer(events, &fakeCalendarStore{}, &fakeAPI{})

	require.NoError(t, s.SyncEvent(context.Background(), e.ID, nil))
	assert.Equal(t, event.StatusError, e.Status)
	assert.Equal(t, 1, events.updates, "error state is committed")
}

// Provider failure transitions to ERROR, commits, and re-raises so the
// queue retries.
func TestSyncEvent_ProviderFailureRetries(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	cal := &store.Calendar{ID: uuid.New(), UserID: userID}

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	cals := &fakeCalendarStore{defaultCal: cal}
	api := &fakeAPI{createErr: eherrors.E(eherrors.KindUpstreamUnavailable, "calendar returned 503")}

	s := newSyncer(events, cals, api)
	err := s.SyncEvent(context.Background(), e.ID, nil)

	require.Error(t, err)
	assert.True(t, eherrors.IsRetryable(err))
	assert.Equal(t, event.StatusError, e.Status)
	assert.Equal(t, 1, events.updates)
}

// Error events can be re-approved and synced again.
func TestSyncEvent_RetryAfterError(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	require.NoError(t, e.MarkError())
	require.NoError(t, e.Approve(nil, nil))

	cal := &store.Calendar{ID: uuid.New(), UserID: userID}
	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	s := newSyncer(events, &fakeCalendarStore{defaultCal: cal}, &fakeAPI{createdID: "gcal-retry"})

	require.NoError(t, s.SyncEvent(context.Background(), e.ID, nil))
	assert.Equal(t, event.StatusSynced, e.Status)
}

func TestUndoEvent_DeletesExternalThenLocal(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	cal := &store.Calendar{ID: uuid.New(), UserID: userID}
	require.NoError(t, e.MarkSynced("gcal-9"))
	e.CalendarID = &cal.ID

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	cals := &fakeCalendarStore{byID: map[uuid.UUID]*store.Calendar{cal.ID: cal}}
	api := &fakeAPI{}

	s := newSyncer(events, cals, api)
	require.NoError(t, s.UndoEvent(context.Background(), e.ID))

	assert.Equal(t, []string{"gcal-9"}, api.deleted)
	assert.Contains(t, events.deleted, e.ID)
}

// External delete failure never blocks the local delete.
func TestUndoEvent_ExternalFailureStillDeletesLocal(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	cal := &store.Calendar{ID: uuid.New(), UserID: userID}
	require.NoError(t, e.MarkSynced("gcal-9"))
	e.CalendarID = &cal.ID

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	cals := &fakeCalendarStore{byID: map[uuid.UUID]*store.Calendar{cal.ID: cal}}
	api := &fakeAPI{deleteErr: errors.New("gone")}

	s := newSyncer(events, cals, api)
	require.NoError(t, s.UndoEvent(context.Background(), e.ID))
	assert.Contains(t, events.deleted, e.ID)
}

func TestUndoEvent_MissingEventIsNoOp(t *testing.T) {
	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{}}
	s := newSyncer(events, &fakeCalendarStore{}, &fakeAPI{})
	require.NoError(t, s.UndoEvent(context.Background(), uuid.New()))
}

func TestHandleJob_Dispatch(t *testing.T) {
	userID := uuid.New()
	e := approvedEvent(userID)
	cal := &store.Calendar{ID: uuid.New(), UserID: userID}

	events := &fakeEventStore{byID: map[uuid.UUID]*event.Event{e.ID: e}}
	s := newSyncer(events, &fakeCalendarStore{defaultCal: cal}, &fakeAPI{createdID: "gcal-1"})

	require.NoError(t, s.HandleJob(context.Background(), &queues.SyncEventJob{
		EventID: e.ID, UserID: userID,
	}))
	assert.Equal(t, event.StatusSynced, e.Status)

	err := s.HandleJob(context.Background(), &queues.ProcessMessageJob{})
	require.Error(t, err, "process jobs belong to the pipeline worker")
}
