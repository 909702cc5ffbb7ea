// Package httpapi exposes the REST surface: uploads, the approval
// queue, calendar management, and Google OAuth login.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventhint/eventhint/config"
	"github.com/eventhint/eventhint/pkg/auth"
	"github.com/eventhint/eventhint/pkg/crypto"
	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

// EventStore is the slice of the event repository the API uses.
type EventStore interface {
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*event.Event, error)
	ListByUser(ctx context.Context, userID uuid.UUID, status event.Status, limit, offset int) ([]*event.Event, error)
	Update(ctx context.Context, e *event.Event) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// MessageStore creates upload and webhook messages.
type MessageStore interface {
	Create(ctx context.Context, m *store.Message) error
}

// UserStore resolves and provisions users.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*store.User, error)
	GetByEmail(ctx context.Context, email string) (*store.User, error)
	Create(ctx context.Context, u *store.User) error
	UpdateTokens(ctx context.Context, u *store.User) error
}

// CalendarStore lists and manages linked calendars.
type CalendarStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*store.Calendar, error)
	SetDefault(ctx context.Context, userID, id uuid.UUID) error
}

// JobQueue enqueues background jobs.
type JobQueue interface {
	Enqueue(job queues.Job) error
}

// Server holds the API dependencies.
type Server struct {
	settings  *config.Settings
	events    EventStore
	messages  MessageStore
	users     UserStore
	calendars CalendarStore

	processQ JobQueue
	syncQ    JobQueue
	undoQ    JobQueue

	tokens *auth.TokenIssuer
	sealer *crypto.Sealer
	oauth  *googleOAuth
	log    logging.Logger
}

// NewServer wires the API server.
func NewServer(
	settings *config.Settings,
	events EventStore,
	messages MessageStore,
	users UserStore,
	calendars CalendarStore,
	processQ, syncQ, undoQ JobQueue,
	tokens *auth.TokenIssuer,
	sealer *crypto.Sealer,
	log logging.Logger,
) *Server {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Server{
		settings:  settings,
		events:    events,
		messages:  messages,
		users:     users,
		calendars: calendars,
		processQ:  processQ,
		syncQ:     syncQ,
		undoQ:     undoQ,
		tokens:    tokens,
		sealer:    sealer,
		oauth:     newGoogleOAuth(settings),
		log:       log.With(logging.F("component", "httpapi")),
	}
}

// Router builds the chi router with middleware and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.settings.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Unauthenticated surface.
		r.Get("/auth/google/login", s.handleGoogleLogin)
		r.Get("/auth/google/callback", s.handleGoogleCallback)
		r.Post("/ingestion/webhooks/gmail", s.handleGmailWebhook)

		// Everything else requires a bearer token.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/ingestion/upload", s.handleUpload)

			r.Get("/events", s.handleListEvents)
			r.Get("/events/{id}", s.handleGetEvent)
			r.Patch("/events/{id}", s.handlePatchEvent)
			r.Delete("/events/{id}", s.handleDeleteEvent)
			r.Post("/events/{id}/approve", s.handleApproveEvent)
			r.Post("/events/{id}/reject", s.handleRejectEvent)

			r.Get("/calendars", s.handleListCalendars)
			r.Post("/calendars/{id}/set-default", s.handleSetDefaultCalendar)
		})
	})

	return r
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// writeError maps an error onto its HTTP status and a JSON body.
func writeError(w http.ResponseWriter, err error) {
	status := eherrors.HTTPStatus(err)
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(eherrors.KindOf(err)),
	})
}
