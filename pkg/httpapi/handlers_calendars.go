package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/store"
)

// calendarResponse is the wire shape of one linked calendar. Sealed
// tokens never leave the server.
type calendarResponse struct {
	ID          uuid.UUID `json:"id"`
	Provider    string    `json:"provider"`
	ExternalID  string    `json:"external_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	IsDefault   bool      `json:"is_default"`
	IsActive    bool      `json:"is_active"`
	SyncEnabled bool      `json:"sync_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func toCalendarResponse(c *store.Calendar) *calendarResponse {
	return &calendarResponse{
		ID:          c.ID,
		Provider:    c.Provider,
		ExternalID:  c.ExternalID,
		Name:        c.Name,
		Color:       c.Color,
		IsDefault:   c.IsDefault,
		IsActive:    c.IsActive,
		SyncEnabled: c.SyncEnabled,
		CreatedAt:   c.CreatedAt,
	}
}

func (s *Server) handleListCalendars(w http.ResponseWriter, r *http.Request) {
	cals, err := s.calendars.ListByUser(r.Context(), userID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]*calendarResponse, 0, len(cals))
	for _, c := range cals {
		out = append(out, toCalendarResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"calendars": out})
}

func (s *Server) handleSetDefaultCalendar(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, eherrors.E(eherrors.KindNotFound, "calendar not found"))
		return
	}

	if err := s.calendars.SetDefault(r.Context(), userID(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
