package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventhint/eventhint/pkg/event"
)

func detDraft(title string, start time.Time) event.Draft {
	return event.Draft{
		Type:   event.TypeEvent,
		Title:  title,
		Start:  start,
		Method: event.MethodDeterministic,
	}
}

func llmDraft(title string, start time.Time) event.Draft {
	return event.Draft{
		Type:   event.TypeEvent,
		Title:  title,
		Start:  start,
		Method: event.MethodLLM,
	}
}

func TestMerge_DedupAcrossSources(t *testing.T) {
	det := []event.Draft{
		detDraft("Exam", time.Date(2025, 11, 4, 8, 50, 0, 0, time.UTC)),
	}
	llm := llmDraft("Exam appointment", time.Date(2025, 11, 4, 8, 53, 0, 0, time.UTC))
	llm.Location = event.StrPtr("Room A")

	merged := Merge(det, []event.Draft{llm}, MergeContext{Timezone: "UTC"})

	require.Len(t, merged, 1)
	m := merged[0]
	assert.True(t, m.Start.Equal(time.Date(2025, 11, 4, 8, 50, 0, 0, time.UTC)),
		"deterministic start wins")
	assert.Equal(t, "Exam", m.Title)
	require.NotNil(t, m.Location)
	assert.Equal(t, "Room A", *m.Location)
	assert.Equal(t, event.MethodHybrid, m.Method)
	assert.GreaterOrEqual(t, m.Confidence, 0.75)
}

func TestMerge_DistinctEventsKept(t *testing.T) {
	det := []event.Draft{
		detDraft("Morning exam", time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)),
		detDraft("Afternoon review", time.Date(2025, 11, 4, 15, 0, 0, 0, time.UTC)),
	}
	merged := Merge(det, nil, MergeContext{Timezone: "UTC"})
	assert.Len(t, merged, 2)
}

func TestMerge_DissimilarTitlesSameBucket(t *testing.T) {
	start := time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC)
	det := []event.Draft{detDraft("Dentist appointment", start)}
	llm := []event.Draft{llmDraft("Standup sync", start.Add(5 * time.Minute))}

	merged := Merge(det, llm, MergeContext{Timezone: "UTC"})
	assert.Len(t, merged, 2, "Jaccard below 0.5 keeps both")
}

func TestMerge_Commutative(t *testing.T) {
	a := detDraft("Budget planning", time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC))
	b := detDraft("Budget review", time.Date(2025, 11, 4, 10, 5, 0, 0, time.UTC))

	ab := Merge([]event.Draft{a, b}, nil, MergeContext{Timezone: "UTC"})
	ba := Merge([]event.Draft{b, a}, nil, MergeContext{Timezone: "UTC"})

	require.Equal(t, len(ab), len(ba))
	for i := range ab {
		assert.Equal(t, ab[i].Title, ba[i].Title)
		assert.True(t, ab[i].Start.Equal(ba[i].Start))
	}
}

func TestMerge_LabelAndReminderUnion(t *testing.T) {
	start := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	det := detDraft("Final exam", start)
	det.Labels = []string{"exam"}
	det.Reminders = []event.Reminder{{Method: event.ReminderPopup, Minutes: 30}}

	llm := llmDraft("Final exam", start)
	llm.Labels = []string{"exam", "school"}
	llm.Reminders = []event.Reminder{
		{Method: event.ReminderPopup, Minutes: 30},
		{Method: event.ReminderEmail, Minutes: 1440},
	}

	merged := Merge([]event.Draft{det}, []event.Draft{llm}, MergeContext{Timezone: "UTC"})

	require.Len(t, merged, 1)
	assert.ElementsMatch(t, []string{"exam", "school"}, merged[0].Labels)
	require.Len(t, merged[0].Reminders, 2)
}

func TestMerge_NotesConcatenate(t *testing.T) {
	start := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	det := detDraft("Sprint demo", start)
	det.Notes = event.StrPtr("from schedule")
	llm := llmDraft("Sprint demo", start)
	llm.Notes = event.StrPtr("bring slides")

	merged := Merge([]event.Draft{det}, []event.Draft{llm}, MergeContext{Timezone: "UTC"})

	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].Notes)
	assert.Equal(t, "from schedule\nbring slides", *merged[0].Notes)
}

func TestMerge_RejectsEmptyTitle(t *testing.T) {
	drafts := []event.Draft{
		detDraft("", time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)),
		detDraft(" x ", time.Date(2025, 11, 4, 11, 0, 0, 0, time.UTC)),
	}
	merged := Merge(drafts, nil, MergeContext{Timezone: "UTC"})
	assert.Empty(t, merged)
}

func TestMerge_RejectsMissingStart(t *testing.T) {
	merged := Merge([]event.Draft{detDraft("Valid title", time.Time{})}, nil,
		MergeContext{Timezone: "UTC"})
	assert.Empty(t, merged)
}

func TestMerge_FillsDefaults(t *testing.T) {
	d := detDraft("Standup", time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC))
	d.Type = ""
	merged := Merge([]event.Draft{d}, nil, MergeContext{Timezone: "America/New_York"})

	require.Len(t, merged, 1)
	m := merged[0]
	assert.Equal(t, event.TypeEvent, m.Type)
	assert.Equal(t, "America/New_York", m.Timezone)
	assert.NotNil(t, m.Attendees)
	assert.NotNil(t, m.Reminders)
	assert.NotNil(t, m.Labels)
	assert.False(t, m.AllDay)
}

func TestMerge_DropsEndBeforeStart(t *testing.T) {
	start := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	d := detDraft("Review", start)
	d.End = event.TimePtr(start.Add(-time.Hour))

	merged := Merge([]event.Draft{d}, nil, MergeContext{Timezone: "UTC"})
	require.Len(t, merged, 1)
	assert.Nil(t, merged[0].End)
}

func TestMerge_DropsInvalidRecurrence(t *testing.T) {
	start := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)
	good := detDraft("Weekly sync", start)
	good.Recurrence = event.StrPtr("FREQ=WEEKLY;BYDAY=TU")
	bad := detDraft("Broken rule", start.Add(2*time.Hour))
	bad.Recurrence = event.StrPtr("FREQ=SOMETIMES")

	merged := Merge([]event.Draft{good, bad}, nil, MergeContext{Timezone: "UTC"})
	require.Len(t, merged, 2)
	for _, m := range merged {
		switch m.Title {
		case "Weekly sync":
			assert.NotNil(t, m.Recurrence)
		case "Broken rule":
			assert.Nil(t, m.Recurrence)
		}
	}
}

func TestTitleJaccard(t *testing.T) {
	assert.InDelta(t, 0.5, titleJaccard("Exam", "Exam appointment"), 1e-9)
	assert.InDelta(t, 1.0, titleJaccard("team sync", "Team Sync"), 1e-9)
	assert.InDelta(t, 0.0, titleJaccard("alpha", "beta"), 1e-9)
	assert.InDelta(t, 0.0, titleJaccard("", "anything"), 1e-9)
}

func TestScore_Bounds(t *testing.T) {
	end := time.Date(2025, 11, 4, 11, 0, 0, 0, time.UTC)
	full := event.Draft{
		Title:    "Quarterly planning",
		Start:    time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC),
		End:      &end,
		Location: event.StrPtr("HQ"),
	}
	score := Score(full, ScoreContext{Method: event.MethodHybrid, TrustedSender: true})
	assert.LessOrEqual(t, score, 1.0)
	assert.GreaterOrEqual(t, score, 0.0)

	assert.Equal(t, 0.0, Score(event.Draft{}, ScoreContext{}))
}

func TestScore_Weights(t *testing.T) {
	start := time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC)

	// start only, short title
	assert.InDelta(t, 0.30, Score(event.Draft{Title: "ab", Start: start}, ScoreContext{}), 1e-9)

	// start + title > 3 chars + deterministic
	assert.InDelta(t, 0.70,
		Score(event.Draft{Title: "Final exam", Start: start},
			ScoreContext{Method: event.MethodDeterministic}), 1e-9)

	// OCR attenuation
	assert.InDelta(t, 0.35,
		Score(event.Draft{Title: "Final exam", Start: start},
			ScoreContext{Method: event.MethodDeterministic, OCRConfidence: 0.5}), 1e-9)
}
