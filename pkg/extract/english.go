package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eventhint/eventhint/pkg/event"
)

// English patterns: meetings ("[Title] on DATE at TIME"), flights
// ("AA1234 from ORG to DST on DATE at TIME"), and deadlines
// ("[Task] due DATE"). Dates are month-first.
var (
	meetingRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)meeting[:\s]+([^\.]+?)(?:\s+on\s+|\s+)(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})(?:\s+at\s+|\s+)(\d{1,2}:\d{2}\s*(?:AM|PM)?)`),
		regexp.MustCompile(`(?i)(\w+.*?)\s+meeting\s+(?:on\s+)?(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})\s+(?:at\s+)?(\d{1,2}:\d{2}\s*(?:AM|PM)?)`),
	}

	flightRe = regexp.MustCompile(`(?i)(?:flight\s+)?([A-Z]{2}\s*\d{3,4}).*?(?:from\s+)?([A-Z]{3}).*?(?:to\s+)?([A-Z]{3}).*?(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})\s+(?:at\s+)?(\d{1,2}:\d{2}\s*(?:AM|PM)?)`)

	deadlineRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)([^\.]+?)\s+due\s+(?:on\s+)?(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})`),
		regexp.MustCompile(`(?i)deadline[:\s]+([^\.]+?)\s+(?:on\s+)?(\d{1,2}[\/\-]\d{1,2}[\/\-]\d{2,4})`),
	}

	clockRe = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(AM|PM)?`)
)

// extractEnglish runs the English pattern set over the text.
func extractEnglish(text string, loc *time.Location, tzName string) []event.Draft {
	var drafts []event.Draft
	drafts = append(drafts, extractMeetings(text, loc, tzName)...)
	drafts = append(drafts, extractFlights(text, loc, tzName)...)
	drafts = append(drafts, extractDeadlines(text, loc, tzName)...)
	return drafts
}

func extractMeetings(text string, loc *time.Location, tzName string) []event.Draft {
	var drafts []event.Draft
	for _, re := range meetingRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			title := strings.TrimSpace(m[1])
			start, ok := parseUSDateTime(m[2], m[3], loc)
			if !ok {
				continue
			}
			if !strings.Contains(strings.ToLower(title), "meeting") {
				title = title + " meeting"
			}
			end := start.Add(time.Hour)
			drafts = append(drafts, event.Draft{
				Type:     event.TypeEvent,
				Title:    title,
				Start:    start,
				End:      &end,
				Timezone: tzName,
				Labels:   []string{"meeting"},
				Reminders: []event.Reminder{
					{Method: event.ReminderPopup, Minutes: 15},
				},
				Method: event.MethodDeterministic,
			})
		}
	}
	return drafts
}

func extractFlights(text string, loc *time.Location, tzName string) []event.Draft {
	var drafts []event.Draft
	for _, m := range flightRe.FindAllStringSubmatch(text, -1) {
		flightNumber := strings.TrimSpace(m[1])
		origin := strings.ToUpper(m[2])
		destination := strings.ToUpper(m[3])
		start, ok := parseUSDateTime(m[4], m[5], loc)
		if !ok {
			continue
		}
		end := start.Add(3 * time.Hour)
		notes := fmt.Sprintf("Flight from %s to %s", origin, destination)
		drafts = append(drafts, event.Draft{
			Type:     event.TypeEvent,
			Title:    fmt.Sprintf("Flight %s: %s → %s", flightNumber, origin, destination),
			Start:    start,
			End:      &end,
			Timezone: tzName,
			Notes:    &notes,
			Labels:   []string{"flight", "travel"},
			Reminders: []event.Reminder{
				{Method: event.ReminderPopup, Minutes: 1440},
				{Method: event.ReminderPopup, Minutes: 180},
				{Method: event.ReminderPopup, Minutes: 60},
			},
			Method: event.MethodDeterministic,
		})
	}
	return drafts
}

func extractDeadlines(text string, loc *time.Location, tzName string) []event.Draft {
	var drafts []event.Draft
	for _, re := range deadlineRes {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			task := strings.TrimSpace(m[1])
			start, ok := parseUSDateTime(m[2], "23:59", loc)
			if !ok {
				continue
			}
			drafts = append(drafts, event.Draft{
				Type:     event.TypeTask,
				Title:    task,
				Start:    start,
				AllDay:   true,
				Timezone: tzName,
				Labels:   []string{"deadline"},
				Reminders: []event.Reminder{
					{Method: event.ReminderPopup, Minutes: 1440},
					{Method: event.ReminderPopup, Minutes: 360},
				},
				Method: event.MethodDeterministic,
			})
		}
	}
	return drafts
}

// parseUSDateTime parses month-first dates like "11/04/2025" or
// "11-04-25" combined with a clock time like "2:00 PM" or "06:40".
func parseUSDateTime(dateStr, timeStr string, loc *time.Location) (time.Time, bool) {
	parts := strings.Split(strings.ReplaceAll(dateStr, "-", "/"), "/")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	month, err1 := strconv.Atoi(parts[0])
	day, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	tm := clockRe.FindStringSubmatch(timeStr)
	if tm == nil {
		return time.Time{}, false
	}
	hour, _ := strconv.Atoi(tm[1])
	minute, _ := strconv.Atoi(tm[2])
	switch strings.ToUpper(tm[3]) {
	case "PM":
		if hour < 12 {
			hour += 12
		}
	case "AM":
		if hour == 12 {
			hour = 0
		}
	}
	if hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), true
}
