package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhint/eventhint/config"
	"github.com/eventhint/eventhint/pkg/auth"
	"github.com/eventhint/eventhint/pkg/crypto"
	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

type fakeEvents struct {
	byID      map[uuid.UUID]*event.Event
	gotLimit  int
	gotOffset int
}

func (f *fakeEvents) GetForUser(_ context.Context, userID, id uuid.UUID) (*event.Event, error) {
	e, ok := f.byID[id]
	if !ok || e.UserID != userID {
		return nil, eherrors.E(eherrors.KindNotFound, "event not found")
	}
	return e, nil
}

func (f *fakeEvents) ListByUser(_ context.Context, userID uuid.UUID, status event.Status, limit, offset int) ([]*event.Event, error) {
	f.gotLimit = limit
	f.gotOffset = offset
	var out []*event.Event
	for _, e := range f.byID {
		if e.UserID != userID {
			continue
		}
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) Update(_ context.Context, e *event.Event) error {
	f.byID[e.ID] = e
	return nil
}

func (f *fakeEvents) Delete(_ context.Context, userID, id uuid.UUID) error {
	e, ok := f.byID[id]
	if !ok || e.UserID != userID {
		return eherrors.E(eherrors.KindNotFound, "event not found")
	}
	delete(f.byID, id)
	return nil
}

type fakeMessages struct {
	created []*store.Message
}

func (f *fakeMessages) Create(_ context.Context, m *store.Message) error {
	f.created = append(f.created, m)
	return nil
}

type fakeUsers struct {
	byEmail map[string]*store.User
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, eherrors.E(eherrors.KindNotFound, "user not found")
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*store.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, eherrors.E(eherrors.KindNotFound, "user not found")
	}
	return u, nil
}

func (f *fakeUsers) Create(_ context.Context, u *store.User) error {
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsers) UpdateTokens(context.Context, *store.User) error { return nil }

type fakeCalendars struct {
	byUser     map[uuid.UUID][]*store.Calendar
	defaultSet []uuid.UUID
}

func (f *fakeCalendars) ListByUser(_ context.Context, userID uuid.UUID) ([]*store.Calendar, error) {
	return f.byUser[userID], nil
}

func (f *fakeCalendars) SetDefault(_ context.Context, userID, id uuid.UUID) error {
	for _, c := range f.byUser[userID] {
		if c.ID == id {
			f.defaultSet = append(f.defaultSet, id)
			return nil
		}
	}
	return eherrors.E(eherrors.KindNotFound, "calendar not found")
}

type fakeQueue struct {
	jobs []queues.Job
}

func (f *fakeQueue) Enqueue(job queues.Job) error {
	f.jobs = append(f.jobs, job)
	return nil
}

type fixture struct {
	server   *Server
	events   *fakeEvents
	messages *fakeMessages
	users    *fakeUsers
	cals     *fakeCalendars
	processQ *fakeQueue
	syncQ    *fakeQueue
	undoQ    *fakeQueue
	userID   uuid.UUID
	token    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	settings := config.DefaultSettings()
	settings.SecretKey = "test-secret"
	settings.UploadDir = t.TempDir()
	settings.MaxUploadSize = 1 << 20

	issuer, err := auth.NewTokenIssuer(settings.SecretKey, time.Hour)
	require.NoError(t, err)
	sealer, err := crypto.NewSealer(settings.SecretKey)
	require.NoError(t, err)

	userID := uuid.New()
	token, err := issuer.Issue(userID.String())
	require.NoError(t, err)

	f := &fixture{
		events:   &fakeEvents{byID: map[uuid.UUID]*event.Event{}},
		messages: &fakeMessages{},
		users:    &fakeUsers{byEmail: map[string]*store.User{}},
		cals:     &fakeCalendars{byUser: map[uuid.UUID][]*store.Calendar{}},
		processQ: &fakeQueue{},
		syncQ:    &fakeQueue{},
		undoQ:    &fakeQueue{},
		userID:   userID,
		token:    token,
	}
	f.server = NewServer(settings, f.events, f.messages, f.users, f.cals,
		f.processQ, f.syncQ, f.undoQ, issuer, sealer, logging.NewNopLogger())
	return f
}

func (f *fixture) request(t *testing.T, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Authorization", "Bearer "+f.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

func pendingEvent(userID uuid.UUID) *event.Event {
	return &event.Event{
		ID:       uuid.New(),
		UserID:   userID,
		Type:     event.TypeEvent,
		Title:    "Exam appointment",
		Start:    time.Date(2025, 11, 4, 8, 50, 0, 0, time.UTC),
		Timezone: "Europe/Budapest",
		Status:   event.StatusPendingApproval,
	}
}

func TestRequireAuth_MissingBearer(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_GarbageToken(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListEvents_StatusFilter(t *testing.T) {
	f := newFixture(t)
	pending := pendingEvent(f.userID)
	synced := pendingEvent(f.userID)
	synced.Status = event.StatusSynced
	f.events.byID[pending.ID] = pending
	f.events.byID[synced.ID] = synced

	rec := f.request(t, http.MethodGet, "/api/events?status=pending_approval", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []eventResponse `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Events, 1)
	assert.Equal(t, pending.ID, body.Events[0].ID)
}

func TestListEvents_PaginationPassthrough(t *testing.T) {
	f := newFixture(t)

	rec := f.request(t, http.MethodGet, "/api/events?limit=25&skip=50", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, f.events.gotLimit)
	assert.Equal(t, 50, f.events.gotOffset)

	// Absent or garbage values fall back to the defaults.
	rec = f.request(t, http.MethodGet, "/api/events?limit=bogus&skip=-3", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, f.events.gotLimit)
	assert.Equal(t, 0, f.events.gotOffset)
}

// Another user's event must look like it does not exist.
func TestGetEvent_CrossUserIsNotFound(t *testing.T) {
	f := newFixture(t)
	other := pendingEvent(uuid.New())
	f.events.byID[other.ID] = other

	rec := f.request(t, http.MethodGet, "/api/events/"+other.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestApproveEvent_PatchAndSyncJob(t *testing.T) {
	f := newFixture(t)
	e := pendingEvent(f.userID)
	f.events.byID[e.ID] = e

	body := bytes.NewBufferString(`{"modifications": {"title": "Moved exam"}}`)
	rec := f.request(t, http.MethodPost, "/api/events/"+e.ID.String()+"/approve", body, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, event.StatusApproved, e.Status)
	assert.Equal(t, "Moved exam", e.Title)
	require.NotNil(t, e.ApprovedAt)

	require.Len(t, f.syncQ.jobs, 1)
	job, ok := f.syncQ.jobs[0].(*queues.SyncEventJob)
	require.True(t, ok)
	assert.Equal(t, e.ID, job.EventID)
	assert.Equal(t, queues.PriorityHigh, job.Priority)
}

func TestApproveEvent_WrongStatusIs400(t *testing.T) {
	f := newFixture(t)
	e := pendingEvent(f.userID)
	require.NoError(t, e.Approve(nil, nil))
	require.NoError(t, e.MarkSynced("gcal-1"))
	f.events.byID[e.ID] = e

	rec := f.request(t, http.MethodPost, "/api/events/"+e.ID.String()+"/approve", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, f.syncQ.jobs)
}

func TestRejectEvent(t *testing.T) {
	f := newFixture(t)
	e := pendingEvent(f.userID)
	f.events.byID[e.ID] = e

	rec := f.request(t, http.MethodPost, "/api/events/"+e.ID.String()+"/reject", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, event.StatusRejected, e.Status)
	require.NotNil(t, e.RejectedAt)
}

func TestDeleteEvent_SyncedGoesThroughUndoQueue(t *testing.T) {
	f := newFixture(t)
	e := pendingEvent(f.userID)
	require.NoError(t, e.Approve(nil, nil))
	require.NoError(t, e.MarkSynced("gcal-1"))
	f.events.byID[e.ID] = e

	rec := f.request(t, http.MethodDelete, "/api/events/"+e.ID.String(), nil, "")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// The local row stays until the undo worker has removed the
	// provider copy.
	assert.Contains(t, f.events.byID, e.ID)
	require.Len(t, f.undoQ.jobs, 1)
	job, ok := f.undoQ.jobs[0].(*queues.UndoEventJob)
	require.True(t, ok)
	assert.Equal(t, e.ID, job.EventID)
}

func TestDeleteEvent_PendingDeletesLocally(t *testing.T) {
	f := newFixture(t)
	e := pendingEvent(f.userID)
	f.events.byID[e.ID] = e

	rec := f.request(t, http.MethodDelete, "/api/events/"+e.ID.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, f.events.byID, e.ID)
	assert.Empty(t, f.undoQ.jobs)
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestUpload_CreatesMessageAndEnqueues(t *testing.T) {
	f := newFixture(t)

	body, contentType := multipartUpload(t, "schedule.png", []byte("fake image bytes"))
	rec := f.request(t, http.MethodPost, "/api/ingestion/upload", body, contentType)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.messages.created, 1)
	msg := f.messages.created[0]
	assert.Equal(t, store.ProviderUpload, msg.Provider)
	assert.Equal(t, f.userID, msg.UserID)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, store.AttachmentFile, msg.Attachments[0].Kind)
	assert.Equal(t, "schedule.png", msg.Attachments[0].Filename)
	assert.True(t, strings.HasSuffix(msg.Attachments[0].Path, ".png"))

	require.Len(t, f.processQ.jobs, 1)
	job, ok := f.processQ.jobs[0].(*queues.ProcessMessageJob)
	require.True(t, ok)
	assert.Equal(t, msg.ID, job.MessageID)

	var resp struct {
		MessageID uuid.UUID `json:"message_id"`
		Filename  string    `json:"filename"`
		Size      int64     `json:"size"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, msg.ID, resp.MessageID)
	assert.Equal(t, "schedule.png", resp.Filename)
	assert.Equal(t, int64(len("fake image bytes")), resp.Size)
}

// A file of exactly the limit is allowed; the limit applies to the file
// itself, not the multipart framing around it.
func TestUpload_ExactLimitAccepted(t *testing.T) {
	f := newFixture(t)

	exact := bytes.Repeat([]byte("x"), int(f.server.settings.MaxUploadSize))
	body, contentType := multipartUpload(t, "poster.jpg", exact)
	rec := f.request(t, http.MethodPost, "/api/ingestion/upload", body, contentType)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.messages.created, 1)
	require.Len(t, f.messages.created[0].Attachments, 1)
	assert.Equal(t, f.server.settings.MaxUploadSize, f.messages.created[0].Attachments[0].Size)
	require.Len(t, f.processQ.jobs, 1)
}

func TestUpload_OverLimitIs413(t *testing.T) {
	f := newFixture(t)

	oversized := bytes.Repeat([]byte("x"), int(f.server.settings.MaxUploadSize)+1024)
	body, contentType := multipartUpload(t, "huge.pdf", oversized)
	rec := f.request(t, http.MethodPost, "/api/ingestion/upload", body, contentType)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Empty(t, f.messages.created)
	assert.Empty(t, f.processQ.jobs)
}

func TestSetDefaultCalendar(t *testing.T) {
	f := newFixture(t)
	cal := &store.Calendar{ID: uuid.New(), UserID: f.userID, Name: "Primary"}
	f.cals.byUser[f.userID] = []*store.Calendar{cal}

	rec := f.request(t, http.MethodPost, "/api/calendars/"+cal.ID.String()+"/set-default", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []uuid.UUID{cal.ID}, f.cals.defaultSet)
}

func TestGoogleLogin_MisconfiguredIs501(t *testing.T) {
	f := newFixture(t)
	f.server.settings.GoogleClientID = ""
	f.server.settings.GoogleClientSecret = ""

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestGoogleLogin_RedirectsToConsent(t *testing.T) {
	f := newFixture(t)
	f.server.settings.GoogleClientID = "client"
	f.server.settings.GoogleClientSecret = "secret"
	f.server.oauth = newGoogleOAuth(f.server.settings)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/login", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "accounts.google.com")
	assert.Contains(t, loc, "client_id=client")
}

func TestGoogleCallback_ProvisionsUserAndRedirects(t *testing.T) {
	f := newFixture(t)
	f.server.settings.GoogleClientID = "client"
	f.server.settings.GoogleClientSecret = "secret"

	google := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":3600}`))
		case "/userinfo":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"email":"student@uni.hu","name":"Balogh Csaba"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer google.Close()

	f.server.oauth = newGoogleOAuth(f.server.settings)
	f.server.oauth.tokenURL = google.URL + "/token"
	f.server.oauth.userinfoURL = google.URL + "/userinfo"

	req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=abc", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "token=")

	user, ok := f.users.byEmail["student@uni.hu"]
	require.True(t, ok)
	assert.Equal(t, "Balogh Csaba", user.DisplayName)
	assert.NotEmpty(t, user.AccessTokenSealed)
}

func TestGmailWebhook_AcksWithoutAuth(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/ingestion/webhooks/gmail", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
