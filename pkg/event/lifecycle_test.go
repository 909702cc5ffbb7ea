package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingEvent() *Event {
	return FromDraft(Draft{
		Type:     TypeEvent,
		Title:    "Team meeting",
		Start:    time.Date(2025, 11, 4, 14, 0, 0, 0, time.UTC),
		Timezone: "UTC",
		Method:   MethodDeterministic,
	}, uuid.New(), nil, "gmail")
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPendingApproval, StatusApproved, true},
		{StatusPendingApproval, StatusRejected, true},
		{StatusPendingApproval, StatusSynced, false},
		{StatusApproved, StatusSynced, true},
		{StatusApproved, StatusError, true},
		{StatusApproved, StatusRejected, false},
		{StatusError, StatusApproved, true},
		{StatusError, StatusSynced, false},
		{StatusSynced, StatusApproved, false},
		{StatusSynced, StatusError, false},
		{StatusRejected, StatusApproved, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestApprove_RecordsTimestamp(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Approve(nil, nil))

	assert.Equal(t, StatusApproved, e.Status)
	require.NotNil(t, e.ApprovedAt)
	assert.WithinDuration(t, time.Now().UTC(), *e.ApprovedAt, time.Minute)
}

func TestApprove_WrongStatus(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Reject())

	err := e.Approve(nil, nil)
	assert.Error(t, err)
}

func TestApprove_PatchWins(t *testing.T) {
	e := newPendingEvent()
	newStart := time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)
	patch := &Patch{
		Title:    StrPtr("Quarterly review"),
		Start:    &newStart,
		Location: StrPtr("Room 12"),
	}
	require.NoError(t, e.Approve(patch, nil))

	assert.Equal(t, "Quarterly review", e.Title)
	assert.Equal(t, newStart, e.Start)
	require.NotNil(t, e.Location)
	assert.Equal(t, "Room 12", *e.Location)
}

func TestApprove_ErrorRetry(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Approve(nil, nil))
	require.NoError(t, e.MarkError())
	assert.Equal(t, StatusError, e.Status)

	require.NoError(t, e.Approve(nil, nil))
	assert.Equal(t, StatusApproved, e.Status)
}

func TestReject_RecordsTimestamp(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Reject())

	assert.Equal(t, StatusRejected, e.Status)
	assert.NotNil(t, e.RejectedAt)
}

func TestMarkSynced(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Approve(nil, nil))
	require.NoError(t, e.MarkSynced("gcal-evt-42"))

	assert.Equal(t, StatusSynced, e.Status)
	require.NotNil(t, e.ExternalEventID)
	assert.Equal(t, "gcal-evt-42", *e.ExternalEventID)
	assert.NotNil(t, e.SyncedAt)

	// Re-syncing a synced event is a state machine violation.
	assert.Error(t, e.MarkSynced("gcal-evt-43"))
}

func TestMarkSynced_RequiresExternalID(t *testing.T) {
	e := newPendingEvent()
	require.NoError(t, e.Approve(nil, nil))
	assert.Error(t, e.MarkSynced(""))
}

func TestShouldAutoApprove(t *testing.T) {
	tests := []struct {
		name string
		in   AutoApproveInput
		want bool
	}{
		{"disabled high confidence", AutoApproveInput{UserAutoApprove: false, Confidence: 0.95}, false},
		{"enabled high confidence", AutoApproveInput{UserAutoApprove: true, Confidence: 0.95}, true},
		{"exactly 0.9 is inclusive", AutoApproveInput{UserAutoApprove: true, Confidence: 0.9}, true},
		{"just below 0.9", AutoApproveInput{UserAutoApprove: true, Confidence: 0.89}, false},
		{"trusted sender at 0.7", AutoApproveInput{UserAutoApprove: true, TrustedSender: true, Confidence: 0.7}, true},
		{"trusted sender below 0.7", AutoApproveInput{UserAutoApprove: true, TrustedSender: true, Confidence: 0.69}, false},
		{"untrusted at 0.7", AutoApproveInput{UserAutoApprove: true, Confidence: 0.7}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldAutoApprove(tt.in))
		})
	}
}
