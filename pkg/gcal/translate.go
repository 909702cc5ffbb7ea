// Package gcal is the calendar adapter: it translates canonical events
// to the Google Calendar wire format and performs event CRUD through
// the REST API.
package gcal

import (
	"strings"
	"time"

	"github.com/eventhint/eventhint/pkg/event"
)

// GCalTime is one endpoint of a Google Calendar event: either an
// all-day date or a zoned instant.
type GCalTime struct {
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// GCalAttendee is the provider attendee shape.
type GCalAttendee struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
}

// GCalReminders configures event notifications, always overriding the
// calendar defaults.
type GCalReminders struct {
	UseDefault bool `json:"useDefault"`
	Overrides  []struct {
		Method  string `json:"method"`
		Minutes int    `json:"minutes"`
	} `json:"overrides,omitempty"`
}

// GCalEvent is the Google Calendar event body.
type GCalEvent struct {
	ID          string         `json:"id,omitempty"`
	Summary     string         `json:"summary"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       GCalTime       `json:"start"`
	End         GCalTime       `json:"end"`
	Reminders   *GCalReminders `json:"reminders,omitempty"`
	Recurrence  []string       `json:"recurrence,omitempty"`
	Attendees   []GCalAttendee `json:"attendees,omitempty"`
	ColorID     string         `json:"colorId,omitempty"`
	Status      string         `json:"status,omitempty"`
}

// labelColors maps the first matching label to a Google color id:
// exam red, meeting blue, deadline orange.
var labelColors = []struct {
	label string
	color string
}{
	{"exam", "11"},
	{"meeting", "9"},
	{"deadline", "6"},
}

// Translate converts a canonical event to the provider format. Timed
// events default to a one hour duration when end is absent; all-day
// events default to a single day. The online URL is appended to the
// description since plain events carry no conference field.
func Translate(e *event.Event) *GCalEvent {
	g := &GCalEvent{
		Summary: e.Title,
	}
	if g.Summary == "" {
		g.Summary = "Untitled Event"
	}
	if e.Notes != nil {
		g.Description = *e.Notes
	}
	if e.Location != nil {
		g.Location = *e.Location
	}

	if e.AllDay {
		g.Start = GCalTime{Date: e.Start.Format("2006-01-02")}
		if e.End != nil {
			g.End = GCalTime{Date: e.End.Format("2006-01-02")}
		} else {
			g.End = g.Start
		}
	} else {
		tz := e.Timezone
		if tz == "" {
			tz = "Europe/Budapest"
		}
		g.Start = GCalTime{DateTime: e.Start.Format(time.RFC3339), TimeZone: tz}
		if e.End != nil {
			g.End = GCalTime{DateTime: e.End.Format(time.RFC3339), TimeZone: tz}
		} else {
			g.End = GCalTime{DateTime: e.Start.Add(time.Hour).Format(time.RFC3339), TimeZone: tz}
		}
	}

	if len(e.Reminders) > 0 {
		rem := &GCalReminders{UseDefault: false}
		for _, r := range e.Reminders {
			method := "email"
			if r.Method == event.ReminderPopup {
				method = "popup"
			}
			rem.Overrides = append(rem.Overrides, struct {
				Method  string `json:"method"`
				Minutes int    `json:"minutes"`
			}{Method: method, Minutes: r.Minutes})
		}
		g.Reminders = rem
	}

	if e.Recurrence != nil && *e.Recurrence != "" {
		g.Recurrence = []string{*e.Recurrence}
	}

	if e.OnlineURL != nil && *e.OnlineURL != "" {
		g.Description = strings.TrimSpace(g.Description + "\n\nJoin: " + *e.OnlineURL)
	}

	for _, a := range e.Attendees {
		g.Attendees = append(g.Attendees, GCalAttendee{Email: a.Email, DisplayName: a.Name})
	}

	for _, lc := range labelColors {
		if e.HasLabel(lc.label) {
			g.ColorID = lc.color
			break
		}
	}

	return g
}

// Parse converts a provider event back to a canonical draft, for
// round-trips and future inbound sync.
func Parse(g *GCalEvent) (event.Draft, error) {
	d := event.Draft{
		Type:  event.TypeEvent,
		Title: g.Summary,
	}

	if g.Start.Date != "" {
		d.AllDay = true
		start, err := time.Parse("2006-01-02", g.Start.Date)
		if err != nil {
			return d, err
		}
		d.Start = start
		if g.End.Date != "" && g.End.Date != g.Start.Date {
			end, err := time.Parse("2006-01-02", g.End.Date)
			if err != nil {
				return d, err
			}
			d.End = &end
		}
	} else {
		start, err := time.Parse(time.RFC3339, g.Start.DateTime)
		if err != nil {
			return d, err
		}
		d.Start = start
		d.Timezone = g.Start.TimeZone
		if g.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, g.End.DateTime)
			if err != nil {
				return d, err
			}
			d.End = &end
		}
	}

	if g.Location != "" {
		d.Location = event.StrPtr(g.Location)
	}
	if g.Description != "" {
		d.Notes = event.StrPtr(g.Description)
	}
	if len(g.Recurrence) > 0 {
		d.Recurrence = event.StrPtr(g.Recurrence[0])
	}
	for _, a := range g.Attendees {
		d.Attendees = append(d.Attendees, event.Attendee{Name: a.DisplayName, Email: a.Email})
	}
	if g.Reminders != nil {
		for _, r := range g.Reminders.Overrides {
			method := event.ReminderEmail
			if r.Method == "popup" {
				method = event.ReminderPopup
			}
			d.Reminders = append(d.Reminders, event.Reminder{Method: method, Minutes: r.Minutes})
		}
	}
	return d, nil
}
