package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhint/eventhint/pkg/event"
)

func TestHungarianExamSchedule_MatchesPreferredName(t *testing.T) {
	text := "2025.11.04.\nBalogh Csaba — 8 óra 50 perc\nKovács Anna — 9 óra 20 perc"
	drafts := Deterministic(text, "Europe/Budapest", Hints{PreferredName: "Balogh Csaba"})

	require.Len(t, drafts, 1)
	d := drafts[0]

	budapest, err := time.LoadLocation("Europe/Budapest")
	require.NoError(t, err)

	assert.Equal(t, "Exam appointment", d.Title)
	assert.True(t, d.Start.Equal(time.Date(2025, 11, 4, 8, 50, 0, 0, budapest)))
	require.NotNil(t, d.End)
	assert.True(t, d.End.Equal(time.Date(2025, 11, 4, 9, 20, 0, 0, budapest)))
	assert.Equal(t, []string{"exam"}, d.Labels)
	assert.Nil(t, d.Location)

	minutes := make([]int, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		minutes = append(minutes, r.Minutes)
	}
	assert.ElementsMatch(t, []int{1440, 120, 30}, minutes)
}

func TestHungarianExamSchedule_MatchesNeptunID(t *testing.T) {
	text := "2025.11.04.\nABC123 vizsga — 10 óra 15 perc\nXYZ789 — 11 óra 00 perc"
	drafts := Deterministic(text, "Europe/Budapest", Hints{NeptunID: "abc123"})

	require.Len(t, drafts, 1)
	assert.Equal(t, 10, drafts[0].Start.Hour())
	assert.Equal(t, 15, drafts[0].Start.Minute())
}

func TestHungarianExamSchedule_NoFilterEmitsAll(t *testing.T) {
	text := "2025.11.04.\nBalogh Csaba — 8 óra 50 perc\nKovács Anna — 9 óra 20 perc"
	drafts := Deterministic(text, "Europe/Budapest", Hints{})
	assert.Len(t, drafts, 2)
}

func TestHungarianExamSchedule_RoomLocation(t *testing.T) {
	text := "2025.11.04. vizsga\nBalogh Csaba — 8 óra 50 perc, terem: A123"
	drafts := Deterministic(text, "Europe/Budapest", Hints{PreferredName: "Balogh Csaba"})

	require.Len(t, drafts, 1)
	require.NotNil(t, drafts[0].Location)
	assert.Equal(t, "A123", *drafts[0].Location)
}

func TestHungarianExamSchedule_AltTimeFormat(t *testing.T) {
	text := "2025.11.04. vizsga\nBalogh Csaba 08:50"
	drafts := Deterministic(text, "Europe/Budapest", Hints{PreferredName: "Balogh Csaba"})

	require.Len(t, drafts, 1)
	assert.Equal(t, 8, drafts[0].Start.Hour())
	assert.Equal(t, 50, drafts[0].Start.Minute())
}

// Feeding an extracted schedule row back through extraction yields the
// same start time.
func TestHungarianExtraction_Idempotent(t *testing.T) {
	text := "2025.11.04.\nBalogh Csaba — 8 óra 50 perc"
	first := Deterministic(text, "Europe/Budapest", Hints{PreferredName: "Balogh Csaba"})
	require.Len(t, first, 1)

	again := Deterministic(text, "Europe/Budapest", Hints{PreferredName: "Balogh Csaba"})
	require.Len(t, again, 1)
	assert.True(t, first[0].Start.Equal(again[0].Start))
}

func TestEnglishMeeting(t *testing.T) {
	drafts := Deterministic("Meeting: Q4 review on 11/04/2025 at 2:00 PM", "UTC", Hints{})

	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "Q4 review meeting", d.Title)
	assert.True(t, d.Start.Equal(time.Date(2025, 11, 4, 14, 0, 0, 0, time.UTC)))
	require.NotNil(t, d.End)
	assert.True(t, d.End.Equal(time.Date(2025, 11, 4, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, []string{"meeting"}, d.Labels)
	require.Len(t, d.Reminders, 1)
	assert.Equal(t, event.ReminderPopup, d.Reminders[0].Method)
	assert.Equal(t, 15, d.Reminders[0].Minutes)
}

func TestEnglishFlight(t *testing.T) {
	drafts := Deterministic("LH 1234 from BUD to FRA on 12/01/2025 at 06:40", "UTC", Hints{})

	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, "Flight LH 1234: BUD → FRA", d.Title)
	assert.True(t, d.Start.Equal(time.Date(2025, 12, 1, 6, 40, 0, 0, time.UTC)))
	require.NotNil(t, d.End)
	assert.Equal(t, 3*time.Hour, d.End.Sub(d.Start))
	assert.ElementsMatch(t, []string{"flight", "travel"}, d.Labels)

	minutes := make([]int, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		minutes = append(minutes, r.Minutes)
	}
	assert.ElementsMatch(t, []int{1440, 180, 60}, minutes)
}

func TestEnglishDeadline(t *testing.T) {
	drafts := Deterministic("Project report due 11/30/2025", "UTC", Hints{})

	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, event.TypeTask, d.Type)
	assert.Equal(t, "Project report", d.Title)
	assert.True(t, d.AllDay)
	assert.Equal(t, []string{"deadline"}, d.Labels)

	minutes := make([]int, 0, len(d.Reminders))
	for _, r := range d.Reminders {
		minutes = append(minutes, r.Minutes)
	}
	assert.ElementsMatch(t, []int{1440, 360}, minutes)
}

func TestGenericFallback(t *testing.T) {
	drafts := Deterministic("Company picnic happening 2025-06-15 at 12:30 in the park", "UTC", Hints{})

	require.Len(t, drafts, 1)
	d := drafts[0]
	assert.Equal(t, 2025, d.Start.Year())
	assert.Equal(t, time.June, d.Start.Month())
	assert.Equal(t, 15, d.Start.Day())
	assert.NotEmpty(t, d.Title)
}

func TestDeterministic_NoDates(t *testing.T) {
	drafts := Deterministic("Hello, just checking in. Nothing scheduled.", "UTC", Hints{})
	assert.Empty(t, drafts)
}

func TestDeterministic_InvalidTimezoneFallsBack(t *testing.T) {
	text := "2025.11.04.\nBalogh Csaba — 8 óra 50 perc"
	drafts := Deterministic(text, "Not/AZone", Hints{PreferredName: "Balogh Csaba"})
	require.Len(t, drafts, 1)
	assert.Equal(t, "Europe/Budapest", drafts[0].Timezone)
}

func TestOnlineURL(t *testing.T) {
	url := OnlineURL("join us at https://meet.google.com/abc-defg-hij tomorrow")
	require.NotNil(t, url)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", *url)

	assert.Nil(t, OnlineURL("no links here"))
}
