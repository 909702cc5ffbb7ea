package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/logging"
)

// MessageRepository provides database operations for messages.
type MessageRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewMessageRepository creates a new message repository.
func NewMessageRepository(pool *pgxpool.Pool, logger logging.Logger) *MessageRepository {
	return &MessageRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "message_repository")),
	}
}

const messageColumns = `
	id, user_id, provider, external_id,
	subject, sender_email, sender_name, received_at,
	body_text, body_html, attachments,
	processed, processed_at, processing_error,
	created_at, updated_at`

// Create inserts a new message.
func (r *MessageRepository) Create(ctx context.Context, m *Message) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		INSERT INTO messages (
			id, user_id, provider, external_id,
			subject, sender_email, sender_name, received_at,
			body_text, body_html, attachments,
			processed, processed_at, processing_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		m.ID, m.UserID, m.Provider, m.ExternalID,
		m.Subject, m.SenderEmail, m.SenderName, m.ReceivedAt,
		m.BodyText, m.BodyHTML, attachments,
		m.Processed, m.ProcessedAt, m.ProcessingError,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// GetByID returns the message with the given id.
func (r *MessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByExternalID returns the user's message with the given provider
// external id. Used to dedup provider pushes.
func (r *MessageRepository) GetByExternalID(ctx context.Context, userID uuid.UUID, provider, externalID string) (*Message, error) {
	query := `SELECT ` + messageColumns + `
		FROM messages WHERE user_id = $1 AND provider = $2 AND external_id = $3`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID, provider, externalID))
}

// Update persists the message's mutable fields, including attachments
// and processing state.
func (r *MessageRepository) Update(ctx context.Context, m *Message) error {
	attachments, err := json.Marshal(m.Attachments)
	if err != nil {
		return fmt.Errorf("failed to marshal attachments: %w", err)
	}

	query := `
		UPDATE messages SET
			subject = $2, sender_email = $3, sender_name = $4,
			body_text = $5, body_html = $6, attachments = $7,
			processed = $8, processed_at = $9, processing_error = $10,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		m.ID, m.Subject, m.SenderEmail, m.SenderName,
		m.BodyText, m.BodyHTML, attachments,
		m.Processed, m.ProcessedAt, m.ProcessingError)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "message not found")
	}
	return nil
}

// ListByUser returns the user's messages, newest first.
func (r *MessageRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + messageColumns + `
		FROM messages WHERE user_id = $1
		ORDER BY received_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MessageRepository) scanOne(row pgx.Row) (*Message, error) {
	var m Message
	var attachments []byte
	err := row.Scan(
		&m.ID, &m.UserID, &m.Provider, &m.ExternalID,
		&m.Subject, &m.SenderEmail, &m.SenderName, &m.ReceivedAt,
		&m.BodyText, &m.BodyHTML, &attachments,
		&m.Processed, &m.ProcessedAt, &m.ProcessingError,
		&m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eherrors.E(eherrors.KindNotFound, "message not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}
	return &m, nil
}
