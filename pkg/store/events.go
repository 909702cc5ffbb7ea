package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/event"
	"github.com/eventhint/eventhint/pkg/logging"
)

// EventRepository provides database operations for events.
type EventRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool *pgxpool.Pool, logger logging.Logger) *EventRepository {
	return &EventRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "event_repository")),
	}
}

const eventColumns = `
	id, user_id, type, title, start_at, end_at, allday, timezone,
	location, online_url, notes, attendees, reminders, recurrence, labels,
	message_id, provider, confidence, method,
	status, calendar_id, external_event_id, synced_at,
	approved_at, rejected_at, created_at, updated_at`

// Create inserts one event row.
func (r *EventRepository) Create(ctx context.Context, e *event.Event) error {
	attendees, reminders, labels, err := marshalEventJSON(e)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO events (
			id, user_id, type, title, start_at, end_at, allday, timezone,
			location, online_url, notes, attendees, reminders, recurrence, labels,
			message_id, provider, confidence, method,
			status, calendar_id, external_event_id, synced_at,
			approved_at, rejected_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, NOW(), NOW()
		) RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		e.ID, e.UserID, e.Type, e.Title, e.Start, e.End, e.AllDay, e.Timezone,
		e.Location, e.OnlineURL, e.Notes, attendees, reminders, e.Recurrence, labels,
		e.MessageID, e.Provider, e.Confidence, e.Method,
		e.Status, e.CalendarID, e.ExternalEventID, e.SyncedAt,
		e.ApprovedAt, e.RejectedAt,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}
	return nil
}

// CreateBatch inserts all events inside one transaction. Either every
// row lands or none does.
func (r *EventRepository) CreateBatch(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO events (
			id, user_id, type, title, start_at, end_at, allday, timezone,
			location, online_url, notes, attendees, reminders, recurrence, labels,
			message_id, provider, confidence, method,
			status, calendar_id, external_event_id, synced_at,
			approved_at, rejected_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19,
			$20, $21, $22, $23,
			$24, $25, NOW(), NOW()
		)`

	for _, e := range events {
		attendees, reminders, labels, err := marshalEventJSON(e)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, query,
			e.ID, e.UserID, e.Type, e.Title, e.Start, e.End, e.AllDay, e.Timezone,
			e.Location, e.OnlineURL, e.Notes, attendees, reminders, e.Recurrence, labels,
			e.MessageID, e.Provider, e.Confidence, e.Method,
			e.Status, e.CalendarID, e.ExternalEventID, e.SyncedAt,
			e.ApprovedAt, e.RejectedAt)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID returns the event with the given id.
func (r *EventRepository) GetByID(ctx context.Context, id uuid.UUID) (*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetForUser returns the event only when it belongs to the user.
// Cross-user access comes back as not-found.
func (r *EventRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

// ListByUser returns the user's events, optionally filtered by status,
// ordered by start.
func (r *EventRepository) ListByUser(ctx context.Context, userID uuid.UUID, status event.Status, limit, offset int) ([]*event.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += fmt.Sprintf(` ORDER BY start_at ASC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		e, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListByMessage returns every event extracted from the given message.
func (r *EventRepository) ListByMessage(ctx context.Context, messageID uuid.UUID) ([]*event.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE message_id = $1 ORDER BY start_at ASC`

	rows, err := r.pool.Query(ctx, query, messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events by message: %w", err)
	}
	defer rows.Close()

	var out []*event.Event
	for rows.Next() {
		e, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Update persists the event's mutable fields and lifecycle state.
func (r *EventRepository) Update(ctx context.Context, e *event.Event) error {
	attendees, reminders, labels, err := marshalEventJSON(e)
	if err != nil {
		return err
	}

	query := `
		UPDATE events SET
			type = $2, title = $3, start_at = $4, end_at = $5, allday = $6,
			timezone = $7, location = $8, online_url = $9, notes = $10,
			attendees = $11, reminders = $12, recurrence = $13, labels = $14,
			status = $15, calendar_id = $16, external_event_id = $17, synced_at = $18,
			approved_at = $19, rejected_at = $20, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		e.ID, e.Type, e.Title, e.Start, e.End, e.AllDay,
		e.Timezone, e.Location, e.OnlineURL, e.Notes,
		attendees, reminders, e.Recurrence, labels,
		e.Status, e.CalendarID, e.ExternalEventID, e.SyncedAt,
		e.ApprovedAt, e.RejectedAt)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "event not found")
	}
	return nil
}

// Delete removes the user's event.
func (r *EventRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM events WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "event not found")
	}
	return nil
}

// DeleteRejectedOlderThan removes rejected events older than the cutoff
// and returns the number deleted. Used by the cleanup sweep.
func (r *EventRepository) DeleteRejectedOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM events WHERE status = $1 AND rejected_at < $2`,
		event.StatusRejected, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete rejected events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalEventJSON(e *event.Event) (attendees, reminders, labels []byte, err error) {
	if attendees, err = json.Marshal(e.Attendees); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal attendees: %w", err)
	}
	if reminders, err = json.Marshal(e.Reminders); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal reminders: %w", err)
	}
	if labels, err = json.Marshal(e.Labels); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal labels: %w", err)
	}
	return attendees, reminders, labels, nil
}

func (r *EventRepository) scanOne(row pgx.Row) (*event.Event, error) {
	var e event.Event
	var attendees, reminders, labels []byte
	err := row.Scan(
		&e.ID, &e.UserID, &e.Type, &e.Title, &e.Start, &e.End, &e.AllDay, &e.Timezone,
		&e.Location, &e.OnlineURL, &e.Notes, &attendees, &reminders, &e.Recurrence, &labels,
		&e.MessageID, &e.Provider, &e.Confidence, &e.Method,
		&e.Status, &e.CalendarID, &e.ExternalEventID, &e.SyncedAt,
		&e.ApprovedAt, &e.RejectedAt, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eherrors.E(eherrors.KindNotFound, "event not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	if len(attendees) > 0 {
		if err := json.Unmarshal(attendees, &e.Attendees); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attendees: %w", err)
		}
	}
	if len(reminders) > 0 {
		if err := json.Unmarshal(reminders, &e.Reminders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reminders: %w", err)
		}
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &e.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels: %w", err)
		}
	}
	return &e, nil
}
