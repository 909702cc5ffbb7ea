package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	eherrors "github.com/eventhint/eventhint/pkg/errors"
	"github.com/eventhint/eventhint/pkg/logging"
)

// CalendarRepository provides database operations for linked calendars.
type CalendarRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewCalendarRepository creates a new calendar repository.
func NewCalendarRepository(pool *pgxpool.Pool, logger logging.Logger) *CalendarRepository {
	return &CalendarRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "calendar_repository")),
	}
}

const calendarColumns = `
	id, user_id, provider, external_id, name, color,
	access_token_sealed, refresh_token_sealed, token_expiry,
	is_default, is_active, sync_enabled,
	created_at, updated_at`

// Create inserts a new calendar.
func (r *CalendarRepository) Create(ctx context.Context, c *Calendar) error {
	query := `
		INSERT INTO calendars (
			id, user_id, provider, external_id, name, color,
			access_token_sealed, refresh_token_sealed, token_expiry,
			is_default, is_active, sync_enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		RETURNING created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		c.ID, c.UserID, c.Provider, c.ExternalID, c.Name, c.Color,
		c.AccessTokenSealed, c.RefreshTokenSealed, c.TokenExpiry,
		c.IsDefault, c.IsActive, c.SyncEnabled,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create calendar: %w", err)
	}
	return nil
}

// GetForUser returns the calendar only when it belongs to the user.
func (r *CalendarRepository) GetForUser(ctx context.Context, userID, id uuid.UUID) (*Calendar, error) {
	query := `SELECT ` + calendarColumns + ` FROM calendars WHERE id = $1 AND user_id = $2`
	return r.scanOne(r.pool.QueryRow(ctx, query, id, userID))
}

// ListByUser returns the user's calendars, default first.
func (r *CalendarRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Calendar, error) {
	query := `SELECT ` + calendarColumns + `
		FROM calendars WHERE user_id = $1
		ORDER BY is_default DESC, name ASC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	defer rows.Close()

	var out []*Calendar
	for rows.Next() {
		c, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetDefault returns the user's default active calendar.
func (r *CalendarRepository) GetDefault(ctx context.Context, userID uuid.UUID) (*Calendar, error) {
	query := `SELECT ` + calendarColumns + `
		FROM calendars WHERE user_id = $1 AND is_default AND is_active`
	return r.scanOne(r.pool.QueryRow(ctx, query, userID))
}

// SetDefault makes the given calendar the user's default. The clear and
// set run in one transaction so the partial unique index on
// (user_id) WHERE is_default never sees two defaults.
func (r *CalendarRepository) SetDefault(ctx context.Context, userID, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE calendars SET is_default = false, updated_at = NOW()
		 WHERE user_id = $1 AND is_default`, userID); err != nil {
		return fmt.Errorf("failed to clear default calendar: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE calendars SET is_default = true, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to set default calendar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "calendar not found")
	}

	return tx.Commit(ctx)
}

// Update persists mutable calendar fields.
func (r *CalendarRepository) Update(ctx context.Context, c *Calendar) error {
	query := `
		UPDATE calendars SET
			name = $2, color = $3,
			access_token_sealed = $4, refresh_token_sealed = $5, token_expiry = $6,
			is_active = $7, sync_enabled = $8, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		c.ID, c.Name, c.Color,
		c.AccessTokenSealed, c.RefreshTokenSealed, c.TokenExpiry,
		c.IsActive, c.SyncEnabled)
	if err != nil {
		return fmt.Errorf("failed to update calendar: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "calendar not found")
	}
	return nil
}

func (r *CalendarRepository) scanOne(row pgx.Row) (*Calendar, error) {
	var c Calendar
	err := row.Scan(
		&c.ID, &c.UserID, &c.Provider, &c.ExternalID, &c.Name, &c.Color,
		&c.AccessTokenSealed, &c.RefreshTokenSealed, &c.TokenExpiry,
		&c.IsDefault, &c.IsActive, &c.SyncEnabled,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eherrors.E(eherrors.KindNotFound, "calendar not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan calendar: %w", err)
	}
	return &c, nil
}
