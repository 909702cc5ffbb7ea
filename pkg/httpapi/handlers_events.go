package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/logging"
	"github.com/eventhint/eventhint/pkg/queues"
)

// eventResponse is the wire shape of one event.
type eventResponse struct {
	ID              uuid.UUID        `json:"id"`
	Type            event.Type       `json:"type"`
	Title           string           `json:"title"`
	Start           time.Time        `json:"start"`
	End             *time.Time       `json:"end"`
	AllDay          bool             `json:"allday"`
	Timezone        string           `json:"timezone"`
	Location        *string          `json:"location"`
	OnlineURL       *string          `json:"online_url"`
	Notes           *string          `json:"notes"`
	Attendees       []event.Attendee `json:"attendees"`
	Reminders       []event.Reminder `json:"reminders"`
	Recurrence      *string          `json:"recurrence"`
	Labels          []string         `json:"labels"`
	Confidence      float64          `json:"confidence"`
	Method          event.Method     `json:"method"`
	Status          event.Status     `json:"status"`
	MessageID       *uuid.UUID       `json:"message_id"`
	CalendarID      *uuid.UUID       `json:"calendar_id"`
	ExternalEventID *string          `json:"external_event_id"`
	SyncedAt        *time.Time       `json:"synced_at"`
	ApprovedAt      *time.Time       `json:"approved_at"`
	RejectedAt      *time.Time       `json:"rejected_at"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toEventResponse(e *event.Event) *eventResponse {
	return &eventResponse{
		ID:              e.ID,
		Type:            e.Type,
		Title:           e.Title,
		Start:           e.Start,
		End:             e.End,
		AllDay:          e.AllDay,
		Timezone:        e.Timezone,
		Location:        e.Location,
		OnlineURL:       e.OnlineURL,
		Notes:           e.Notes,
		Attendees:       e.Attendees,
		Reminders:       e.Reminders,
		Recurrence:      e.Recurrence,
		Labels:          e.Labels,
		Confidence:      e.Confidence,
		Method:          e.Method,
		Status:          e.Status,
		MessageID:       e.MessageID,
		CalendarID:      e.CalendarID,
		ExternalEventID: e.ExternalEventID,
		SyncedAt:        e.SyncedAt,
		ApprovedAt:      e.ApprovedAt,
		RejectedAt:      e.RejectedAt,
		CreatedAt:       e.CreatedAt,
	}
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := event.Status(q.Get("status"))
	limit := intQueryParam(q.Get("limit"), 100)
	skip := intQueryParam(q.Get("skip"), 0)

	events, err := s.events.ListByUser(r.Context(), userID(r.Context()), status, limit, skip)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.loadEvent(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (s *Server) handlePatchEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.loadEvent(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var patch event.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, eherrors.E(eherrors.KindInputInvalid, "invalid patch body"))
		return
	}

	e.ApplyPatch(&patch)
	e.UpdatedAt = time.Now().UTC()
	if err := s.events.Update(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

// handleDeleteEvent removes an event. Synced events go through the undo
// queue so the provider copy is removed first; everything else is
// deleted locally right away.
func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.loadEvent(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if e.Status == event.StatusSynced {
		if err := s.undoQ.Enqueue(&queues.UndoEventJob{
			EventID:  e.ID,
			UserID:   e.UserID,
			Priority: queues.PriorityHigh,
		}); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "undo_enqueued"})
		return
	}

	if err := s.events.Delete(r.Context(), e.UserID, e.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// approveRequest is the approval body: an optional field patch applied
// before the transition, and an optional explicit target calendar.
type approveRequest struct {
	Modifications *event.Patch `json:"modifications"`
	CalendarID    *uuid.UUID   `json:"calendar_id"`
}

func (s *Server) handleApproveEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.loadEvent(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req approveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, eherrors.E(eherrors.KindInputInvalid, "invalid approval body"))
			return
		}
	}

	if err := e.Approve(req.Modifications, req.CalendarID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.events.Update(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}

	// The sync job only goes out after the approval is committed.
	if err := s.syncQ.Enqueue(&queues.SyncEventJob{
		EventID:    e.ID,
		UserID:     e.UserID,
		CalendarID: req.CalendarID,
		Priority:   queues.PriorityHigh,
	}); err != nil {
		s.log.Error("failed to enqueue sync job",
			logging.F("event_id", e.ID.String()), logging.Err(err))
	}

	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (s *Server) handleRejectEvent(w http.ResponseWriter, r *http.Request) {
	e, err := s.loadEvent(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := e.Reject(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.events.Update(r.Context(), e); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

// intQueryParam parses a non-negative integer query parameter, falling
// back to the default on absence or garbage.
func intQueryParam(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// loadEvent resolves the path id to an event owned by the caller.
// Cross-user access surfaces as not-found.
func (s *Server) loadEvent(r *http.Request) (*event.Event, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return nil, eherrors.E(eherrors.KindNotFound, "event not found")
	}
	return s.events.GetForUser(r.Context(), userID(r.Context()), id)
}
