// Package extract turns free text into canonical event drafts. The
// deterministic path is locale-aware pattern matching; the LLM path is
// a best-effort structured-output call. The merger combines both and
// scores confidence.
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eventhint/eventhint/pkg/event"
)

// Hints carry per-user identity used by the locale extractors to pick
// the right rows out of schedule tables.
type Hints struct {
	PreferredName string
	NeptunID      string
	Sender        string
}

const defaultTimezone = "Europe/Budapest"

// Deterministic extracts events with regex and date parsing. The
// Hungarian set runs when the text carries Hungarian schedule markers;
// the English set always runs; a generic date grep is the fallback when
// both come up empty. Extraction is best-effort and never fails.
func Deterministic(text, timezone string, hints Hints) []event.Draft {
	if timezone == "" {
		timezone = defaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		timezone = defaultTimezone
		loc, _ = time.LoadLocation(defaultTimezone)
	}

	var drafts []event.Draft
	if isLikelyHungarian(text) {
		drafts = append(drafts, extractHungarian(text, loc, timezone, hints)...)
	}
	drafts = append(drafts, extractEnglish(text, loc, timezone)...)
	if len(drafts) == 0 {
		drafts = append(drafts, extractGenericDates(text, loc, timezone)...)
	}
	return dedupeBySignature(drafts)
}

// Generic fallback: any line with a recognizable date becomes a draft
// whose title is the line's leading clause.
var (
	genericISODateRe = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	genericUSDateRe  = regexp.MustCompile(`(\d{1,2})[\/\-](\d{1,2})[\/\-](\d{2,4})`)
	genericTitleRe   = regexp.MustCompile(`^([^:;,\.]{5,50})`)
)

func extractGenericDates(text string, loc *time.Location, tzName string) []event.Draft {
	var drafts []event.Draft
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if len(trimmed) < 10 {
			continue
		}

		start, ok := parseGenericDate(trimmed, loc)
		if !ok {
			continue
		}

		title := "Event"
		if m := genericTitleRe.FindStringSubmatch(trimmed); m != nil {
			title = strings.TrimSpace(m[1])
		}

		end := start.Add(time.Hour)
		notes := trimmed
		drafts = append(drafts, event.Draft{
			Type:     event.TypeEvent,
			Title:    title,
			Start:    start,
			End:      &end,
			Timezone: tzName,
			Notes:    &notes,
			Method:   event.MethodDeterministic,
		})
	}
	return drafts
}

func parseGenericDate(line string, loc *time.Location) (time.Time, bool) {
	var year, month, day int
	if m := genericISODateRe.FindStringSubmatch(line); m != nil {
		year, _ = strconv.Atoi(m[1])
		month, _ = strconv.Atoi(m[2])
		day, _ = strconv.Atoi(m[3])
	} else if m := genericUSDateRe.FindStringSubmatch(line); m != nil {
		month, _ = strconv.Atoi(m[1])
		day, _ = strconv.Atoi(m[2])
		year, _ = strconv.Atoi(m[3])
		if year < 100 {
			year += 2000
		}
	} else {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if tm := clockRe.FindStringSubmatch(line); tm != nil {
		hour, _ = strconv.Atoi(tm[1])
		minute, _ = strconv.Atoi(tm[2])
		if strings.EqualFold(tm[3], "PM") && hour < 12 {
			hour += 12
		}
		if hour > 23 || minute > 59 {
			hour, minute = 0, 0
		}
	}
	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), true
}

// dedupeBySignature drops drafts sharing a start instant and title
// prefix. The more specific, domain-labeled patterns run first, so they
// win over the generic fallback.
func dedupeBySignature(drafts []event.Draft) []event.Draft {
	seen := make(map[string]bool, len(drafts))
	out := drafts[:0]
	for _, d := range drafts {
		title := strings.ToLower(strings.TrimSpace(d.Title))
		if len(title) > 20 {
			title = title[:20]
		}
		sig := fmt.Sprintf("%d:%s", d.Start.Unix(), title)
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, d)
	}
	return out
}

// Online meeting URL patterns (Zoom, Meet, Teams).
var onlineURLRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://[a-zA-Z0-9\-\.]+\.zoom\.us/j/[0-9]+[^\s]*`),
	regexp.MustCompile(`(?i)https?://meet\.google\.com/[a-z\-]+`),
	regexp.MustCompile(`(?i)https?://teams\.microsoft\.com/l/meetup-join/[^\s]+`),
}

// OnlineURL finds an online meeting link in the text, if any.
func OnlineURL(text string) *string {
	for _, re := range onlineURLRes {
		if m := re.FindString(text); m != "" {
			return &m
		}
	}
	return nil
}
