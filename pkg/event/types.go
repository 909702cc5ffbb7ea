// Package event defines the canonical event model shared by the
// extractors, merger, storage layer, and calendar sync engine, plus the
// lifecycle state machine that governs approval and sync.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type distinguishes calendar events from tasks.
type Type string

const (
	TypeEvent Type = "event"
	TypeTask  Type = "task"
)

// Status is the lifecycle state of an event.
type Status string

const (
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusSynced          Status = "synced"
	StatusError           Status = "error"
)

// Method tags how an event was extracted.
type Method string

const (
	MethodDeterministic Method = "deterministic"
	MethodLLM           Method = "llm"
	MethodHybrid        Method = "hybrid"
)

// ReminderMethod is how a reminder is delivered.
type ReminderMethod string

const (
	ReminderPopup ReminderMethod = "popup"
	ReminderEmail ReminderMethod = "email"
)

// Attendee is a participant on an event.
type Attendee struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Reminder fires the given number of minutes before the event start.
type Reminder struct {
	Method  ReminderMethod `json:"method"`
	Minutes int            `json:"minutes"`
}

// Draft is the canonical event shape exchanged between extractors and
// the merger, before validation and confidence scoring. Optional fields
// are pointers so "absent" is distinguishable from zero values.
type Draft struct {
	Type       Type       `json:"type"`
	Title      string     `json:"title"`
	Start      time.Time  `json:"start"`
	End        *time.Time `json:"end"`
	AllDay     bool       `json:"allday"`
	Timezone   string     `json:"timezone"`
	Location   *string    `json:"location"`
	OnlineURL  *string    `json:"online_url"`
	Notes      *string    `json:"notes"`
	Attendees  []Attendee `json:"attendees"`
	Reminders  []Reminder `json:"reminders"`
	Recurrence *string    `json:"recurrence"`
	Labels     []string   `json:"labels"`

	// Not part of the wire shape; set by the extraction layer.
	Method     Method  `json:"-"`
	Confidence float64 `json:"-"`
}

// Event is a persisted event row: a validated Draft plus ownership,
// status, sync state, and audit timestamps.
type Event struct {
	ID     uuid.UUID
	UserID uuid.UUID

	Type       Type
	Title      string
	Start      time.Time
	End        *time.Time
	AllDay     bool
	Timezone   string
	Location   *string
	OnlineURL  *string
	Notes      *string
	Attendees  []Attendee
	Reminders  []Reminder
	Recurrence *string
	Labels     []string

	MessageID  *uuid.UUID
	Provider   string
	Confidence float64
	Method     Method

	Status          Status
	CalendarID      *uuid.UUID
	ExternalEventID *string
	SyncedAt        *time.Time

	ApprovedAt *time.Time
	RejectedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Patch carries optional field overrides applied at approval time. Nil
// fields are left untouched; set fields win over extracted values.
type Patch struct {
	Title      *string     `json:"title,omitempty"`
	Start      *time.Time  `json:"start,omitempty"`
	End        *time.Time  `json:"end,omitempty"`
	AllDay     *bool       `json:"allday,omitempty"`
	Timezone   *string     `json:"timezone,omitempty"`
	Location   *string     `json:"location,omitempty"`
	OnlineURL  *string     `json:"online_url,omitempty"`
	Notes      *string     `json:"notes,omitempty"`
	Attendees  *[]Attendee `json:"attendees,omitempty"`
	Reminders  *[]Reminder `json:"reminders,omitempty"`
	Recurrence *string     `json:"recurrence,omitempty"`
	Labels     *[]string   `json:"labels,omitempty"`
}

// FromDraft builds a persisted event from a validated draft.
func FromDraft(d Draft, userID uuid.UUID, messageID *uuid.UUID, provider string) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:         uuid.New(),
		UserID:     userID,
		Type:       d.Type,
		Title:      d.Title,
		Start:      d.Start,
		End:        d.End,
		AllDay:     d.AllDay,
		Timezone:   d.Timezone,
		Location:   d.Location,
		OnlineURL:  d.OnlineURL,
		Notes:      d.Notes,
		Attendees:  d.Attendees,
		Reminders:  d.Reminders,
		Recurrence: d.Recurrence,
		Labels:     d.Labels,
		MessageID:  messageID,
		Provider:   provider,
		Confidence: d.Confidence,
		Method:     d.Method,
		Status:     StatusPendingApproval,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Draft returns the event's canonical draft shape, used when the
// approval patch is applied and when translating for sync.
func (e *Event) Draft() Draft {
	return Draft{
		Type:       e.Type,
		Title:      e.Title,
		Start:      e.Start,
		End:        e.End,
		AllDay:     e.AllDay,
		Timezone:   e.Timezone,
		Location:   e.Location,
		OnlineURL:  e.OnlineURL,
		Notes:      e.Notes,
		Attendees:  e.Attendees,
		Reminders:  e.Reminders,
		Recurrence: e.Recurrence,
		Labels:     e.Labels,
		Method:     e.Method,
		Confidence: e.Confidence,
	}
}

// HasLabel reports whether the event carries the given label.
func (e *Event) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// StrPtr returns a pointer to s. Convenience for building optionals.
func StrPtr(s string) *string { return &s }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }
