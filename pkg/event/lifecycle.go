package event

import (
	"time"

	"github.com/google/uuid"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
)

// transitions enumerates the legal status moves. SYNCED and REJECTED are
// terminal; ERROR recovers back through APPROVED on manual retry.
var transitions = map[Status][]Status{
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusSynced, StatusError},
	StatusError:           {StatusApproved},
	StatusSynced:          {},
	StatusRejected:        {},
}

// CanTransition reports whether moving from one status to another is
// legal under the lifecycle state machine.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Approve applies an optional modification patch and moves the event
// from PENDING_APPROVAL (or ERROR, for manual retry) to APPROVED. The
// patch is authoritative: user values overwrite extracted ones.
func (e *Event) Approve(patch *Patch, calendarID *uuid.UUID) error {
	if e.Status != StatusPendingApproval && e.Status != StatusError {
		return eherrors.Ef(eherrors.KindInputInvalid,
			"cannot approve event in status %s", e.Status)
	}
	if patch != nil {
		e.ApplyPatch(patch)
	}
	if calendarID != nil {
		e.CalendarID = calendarID
	}
	now := time.Now().UTC()
	e.Status = StatusApproved
	e.ApprovedAt = &now
	e.UpdatedAt = now
	return nil
}

// Reject moves the event to REJECTED and records the timestamp.
// Rejected events are swept after a retention window.
func (e *Event) Reject() error {
	if !CanTransition(e.Status, StatusRejected) {
		return eherrors.Ef(eherrors.KindInputInvalid,
			"cannot reject event in status %s", e.Status)
	}
	now := time.Now().UTC()
	e.Status = StatusRejected
	e.RejectedAt = &now
	e.UpdatedAt = now
	return nil
}

// MarkSynced records a successful external write. The external event id
// is required; it is the idempotency anchor for retries.
func (e *Event) MarkSynced(externalEventID string) error {
	if !CanTransition(e.Status, StatusSynced) {
		return eherrors.Ef(eherrors.KindInputInvalid,
			"cannot mark event synced from status %s", e.Status)
	}
	if externalEventID == "" {
		return eherrors.E(eherrors.KindInputInvalid, "external event id is required")
	}
	now := time.Now().UTC()
	e.Status = StatusSynced
	e.ExternalEventID = &externalEventID
	e.SyncedAt = &now
	e.UpdatedAt = now
	return nil
}

// MarkError records a failed sync attempt. The event stays recoverable;
// a manual retry re-approves it.
func (e *Event) MarkError() error {
	if !CanTransition(e.Status, StatusError) {
		return eherrors.Ef(eherrors.KindInputInvalid,
			"cannot mark event errored from status %s", e.Status)
	}
	e.Status = StatusError
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// ApplyPatch overwrites event fields with the patch's set values. Nil
// patch fields leave the current value untouched.
func (e *Event) ApplyPatch(p *Patch) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Start != nil {
		e.Start = *p.Start
	}
	if p.End != nil {
		e.End = p.End
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.Timezone != nil {
		e.Timezone = *p.Timezone
	}
	if p.Location != nil {
		e.Location = p.Location
	}
	if p.OnlineURL != nil {
		e.OnlineURL = p.OnlineURL
	}
	if p.Notes != nil {
		e.Notes = p.Notes
	}
	if p.Attendees != nil {
		e.Attendees = *p.Attendees
	}
	if p.Reminders != nil {
		e.Reminders = *p.Reminders
	}
	if p.Recurrence != nil {
		e.Recurrence = p.Recurrence
	}
	if p.Labels != nil {
		e.Labels = *p.Labels
	}
}

// AutoApproveInput carries the signals the auto-approval policy reads.
type AutoApproveInput struct {
	UserAutoApprove bool
	TrustedSender   bool
	Confidence      float64
}

// ShouldAutoApprove decides whether a freshly extracted event skips the
// approval queue. Requires the user opt-in, then either very high
// confidence or a trusted sender with a lower floor. The 0.9 floor is
// inclusive.
func ShouldAutoApprove(in AutoApproveInput) bool {
	if !in.UserAutoApprove {
		return false
	}
	if in.Confidence >= 0.9 {
		return true
	}
	if in.TrustedSender && in.Confidence >= 0.7 {
		return true
	}
	return false
}
