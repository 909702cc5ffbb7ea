package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eventhint/eventhint/pkg/event"
)

// Hungarian schedule tables use a standalone date header followed by
// one row per student. Example:
//
//	2025.11.04.
//	Balogh Csaba — 8 óra 50 perc
//	Kovács Anna — 9 óra 20 perc
var (
	hunDateHeaderRe = regexp.MustCompile(`(\d{4})\.(\d{2})\.(\d{2})\.`)
	hunTimeRe       = regexp.MustCompile(`(\d{1,2})\s*óra\s*(\d{1,2})\s*perc`)
	hunTimeAltRe    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

	hunRoomRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)terem\s*:?\s*([A-Z0-9\-\.]+)`),
		regexp.MustCompile(`\b([A-Z]{1,2}[\-\.]?\d{2,4})\b`),
	}
)

// examReminders is the preset for exam appointments: one day, two
// hours, and thirty minutes before.
var examReminders = []event.Reminder{
	{Method: event.ReminderPopup, Minutes: 1440},
	{Method: event.ReminderPopup, Minutes: 120},
	{Method: event.ReminderPopup, Minutes: 30},
}

const examDuration = 30 * time.Minute

// hungarianMarkers gate routing to the Hungarian pattern set.
var hungarianMarkers = []string{
	"óra", "perc", "neptun", "vizsga", "évfolyam", "terem", "hallgató",
}

// isLikelyHungarian reports whether the text carries any Hungarian
// schedule markers.
func isLikelyHungarian(text string) bool {
	lower := strings.ToLower(text)
	for _, m := range hungarianMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// extractHungarian extracts exam appointments from Hungarian schedule
// tables. When the hints carry a preferred name or Neptun ID, only rows
// matching the user are emitted; otherwise every time-bearing row is.
func extractHungarian(text string, loc *time.Location, tzName string, hints Hints) []event.Draft {
	header := hunDateHeaderRe.FindStringSubmatch(text)
	if header == nil {
		return nil
	}
	year, _ := strconv.Atoi(header[1])
	month, _ := strconv.Atoi(header[2])
	day, _ := strconv.Atoi(header[3])

	var drafts []event.Draft
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		matchesUser := hints.PreferredName == "" && hints.NeptunID == ""
		if hints.PreferredName != "" &&
			strings.Contains(strings.ToLower(line), strings.ToLower(hints.PreferredName)) {
			matchesUser = true
		}
		if hints.NeptunID != "" &&
			strings.Contains(strings.ToUpper(line), strings.ToUpper(hints.NeptunID)) {
			matchesUser = true
		}
		if !matchesUser {
			continue
		}

		tm := hunTimeRe.FindStringSubmatch(line)
		if tm == nil {
			tm = hunTimeAltRe.FindStringSubmatch(line)
		}
		if tm == nil {
			continue
		}
		hour, _ := strconv.Atoi(tm[1])
		minute, _ := strconv.Atoi(tm[2])
		if hour > 23 || minute > 59 {
			continue
		}

		start := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
		end := start.Add(examDuration)

		notes := "Imported from schedule."
		if namePart, _, found := strings.Cut(line, "—"); found {
			notes = fmt.Sprintf("Imported from schedule. %s", strings.TrimSpace(namePart))
		}

		drafts = append(drafts, event.Draft{
			Type:      event.TypeEvent,
			Title:     "Exam appointment",
			Start:     start,
			End:       &end,
			Timezone:  tzName,
			Location:  roomFromLine(line),
			Notes:     &notes,
			Labels:    []string{"exam"},
			Reminders: append([]event.Reminder(nil), examReminders...),
			Method:    event.MethodDeterministic,
		})
	}
	return drafts
}

// roomFromLine pulls a room token like "Terem: A123" or a bare "B-204"
// out of a schedule row.
func roomFromLine(line string) *string {
	for _, re := range hunRoomRes {
		if m := re.FindStringSubmatch(line); m != nil {
			room := m[1]
			return &room
		}
	}
	return nil
}
