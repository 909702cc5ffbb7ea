// Package calsync is the calendar sync engine: it pushes approved
// events to the user's provider calendar and handles undo.
package calsync

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/eventhint/eventhint/pkg/crypto"
	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/gauth"
	"github.com/eventhint/eventhint/pkg/gcal"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/observability"
	"github.com/eventhint/eventhint/pkg/queues"
	"github.com/eventhint/eventhint/pkg/store"
)

// EventStore is the slice of the event repository the syncer uses.
type EventStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error)
	Update(ctx context.Context, e *event.Event) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// CalendarStore resolves target calendars.
type CalendarStore interface {
	GetForUser(ctx context.Context, userID, id uuid.UUID) (*store.Calendar, error)
	GetDefault(ctx context.Context, userID uuid.UUID) (*store.Calendar, error)
}

// CalendarAPI is the provider surface the syncer needs.
type CalendarAPI interface {
	CreateEvent(ctx context.Context, g *gcal.GCalEvent) (string, error)
	DeleteEvent(ctx context.Context, externalID string) error
}

// ClientFactory builds a provider client scoped to one calendar's
// credentials.
type ClientFactory interface {
	ClientFor(ctx context.Context, cal *store.Calendar) (CalendarAPI, error)
}

// GCalFactory is the production factory: it unseals the calendar's
// OAuth tokens and builds a Calendar API client around them.
type GCalFactory struct {
	sealer *crypto.Sealer
	log    logging.Logger
}

// NewGCalFactory creates a factory using the given token sealer.
func NewGCalFactory(sealer *crypto.Sealer, log logging.Logger) *GCalFactory {
	return &GCalFactory{sealer: sealer, log: log}
}

// ClientFor unseals the calendar tokens and returns a client bound to
// the calendar's external id.
func (f *GCalFactory) ClientFor(_ context.Context, cal *store.Calendar) (CalendarAPI, error) {
	access, err := f.sealer.Open(string(cal.AccessTokenSealed))
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindInternal, "failed to unseal access token", err)
	}
	refresh, err := f.sealer.Open(string(cal.RefreshTokenSealed))
	if err != nil {
		return nil, eherrors.Wrap(eherrors.KindInternal, "failed to unseal refresh token", err)
	}

	var expiry time.Time
	if cal.TokenExpiry != nil {
		expiry = *cal.TokenExpiry
	}
	tokens := gauth.New(gauth.Config{
		AccessToken:  access,
		RefreshToken: refresh,
		Expiry:       expiry,
	})
	return gcal.NewClient(tokens, cal.ExternalID, f.log), nil
}

// Syncer executes sync and undo jobs.
type Syncer struct {
	events    EventStore
	calendars CalendarStore
	clients   ClientFactory

	metrics *observability.PipelineMetrics
	tracer  *observability.Tracer
	log     logging.Logger
}

// NewSyncer wires a sync engine.
func NewSyncer(events EventStore, calendars CalendarStore, clients ClientFactory, metrics *observability.PipelineMetrics, log logging.Logger) *Syncer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Syncer{
		events:    events,
		calendars: calendars,
		clients:   clients,
		metrics:   metrics,
		tracer:    observability.NewTracer(),
		log:       log.With(logging.F("component", "calsync")),
	}
}

// HandleJob dispatches queue jobs to the sync engine. Registered as the
// worker handler for the sync and undo queues.
func (s *Syncer) HandleJob(ctx context.Context, job queues.Job) error {
	switch j := job.(type) {
	case *queues.SyncEventJob:
		return s.SyncEvent(ctx, j.EventID, j.CalendarID)
	case *queues.UndoEventJob:
		return s.UndoEvent(ctx, j.EventID)
	default:
		return eherrors.Ef(eherrors.KindInputInvalid, "calsync cannot handle job type %q", job.GetJobType())
	}
}

// SyncEvent pushes one approved event to the provider. Already synced
// events are a no-op; anything not approved is skipped. A missing
// target calendar moves the event to ERROR without retry; provider
// failures move it to ERROR, commit, and re-raise so the queue retries.
func (s *Syncer) SyncEvent(ctx context.Context, eventID uuid.UUID, calendarID *uuid.UUID) error {
	ctx, span := s.tracer.StartSyncSpan(ctx, eventID)
	defer span.End()

	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		return err
	}

	if e.Status == event.StatusSynced {
		s.log.Debug("event already synced", logging.F("event_id", e.ID.String()))
		return nil
	}
	if e.Status != event.StatusApproved {
		s.log.Warn("sync skipped: event not approved",
			logging.F("event_id", e.ID.String()),
			logging.F("status", string(e.Status)))
		return nil
	}

	cal, err := s.resolveCalendar(ctx, e, calendarID)
	if err != nil {
		// No usable calendar is a configuration problem, not a
		// transient one: park the event in ERROR and stop retrying.
		s.markError(ctx, e)
		s.recordSync("create", "no_calendar", 0)
		return nil
	}

	client, err := s.clients.ClientFor(ctx, cal)
	if err != nil {
		s.markError(ctx, e)
		return err
	}

	started := time.Now()
	externalID, err := client.CreateEvent(ctx, gcal.Translate(e))
	if err != nil {
		s.markError(ctx, e)
		s.recordSync("create", "error", time.Since(started).Seconds())
		observability.RecordSpanError(span, err, string(eherrors.KindOf(err)), eherrors.IsRetryable(err))
		return err
	}

	if err := e.MarkSynced(externalID); err != nil {
		return err
	}
	e.CalendarID = &cal.ID
	if err := s.events.Update(ctx, e); err != nil {
		return err
	}

	s.recordSync("create", "ok", time.Since(started).Seconds())
	s.log.Info("event synced",
		logging.F("event_id", e.ID.String()),
		logging.F("external_id", externalID))
	return nil
}

// UndoEvent removes a synced event from the provider calendar
// (best-effort) and then deletes it locally.
func (s *Syncer) UndoEvent(ctx context.Context, eventID uuid.UUID) error {
	e, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if eherrors.KindOf(err) == eherrors.KindNotFound {
			return nil
		}
		return err
	}

	if e.ExternalEventID != nil && e.CalendarID != nil {
		cal, err := s.calendars.GetForUser(ctx, e.UserID, *e.CalendarID)
		if err == nil {
			if client, err := s.clients.ClientFor(ctx, cal); err == nil {
				if err := client.DeleteEvent(ctx, *e.ExternalEventID); err != nil {
					// The local delete still proceeds; an orphaned
					// provider event beats a stuck undo.
					s.log.Warn("failed to delete external event",
						logging.F("event_id", e.ID.String()), logging.Err(err))
				}
			}
		}
	}

	if err := s.events.Delete(ctx, e.UserID, e.ID); err != nil {
		return err
	}
	s.recordSync("delete", "ok", 0)
	return nil
}

// resolveCalendar picks the sync target: the explicit job calendar, the
// event's own calendar, then the user's default active calendar.
func (s *Syncer) resolveCalendar(ctx context.Context, e *event.Event, explicit *uuid.UUID) (*store.Calendar, error) {
	if explicit != nil {
		return s.calendars.GetForUser(ctx, e.UserID, *explicit)
	}
	if e.CalendarID != nil {
		return s.calendars.GetForUser(ctx, e.UserID, *e.CalendarID)
	}
	return s.calendars.GetDefault(ctx, e.UserID)
}

func (s *Syncer) markError(ctx context.Context, e *event.Event) {
	if err := e.MarkError(); err != nil {
		s.log.Error("failed to transition event to error", logging.Err(err))
		return
	}
	if err := s.events.Update(ctx, e); err != nil {
		s.log.Error("failed to persist error state", logging.Err(err))
	}
}

func (s *Syncer) recordSync(operation, status string, seconds float64) {
	if s.metrics != nil {
		s.metrics.RecordSync(operation, status, seconds)
	}
}
