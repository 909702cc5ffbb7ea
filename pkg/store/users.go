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

// UserRepository provides database operations for users.
type UserRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewUserRepository creates a new user repository.
func NewUserRepository(pool *pgxpool.Pool, logger logging.Logger) *UserRepository {
	return &UserRepository{
		pool:   pool,
		logger: logger.With(logging.F("component", "user_repository")),
	}
}

const userColumns = `
	id, email, display_name, preferred_name, neptun_id,
	timezone, auto_approve_enabled, trusted_senders,
	access_token_sealed, refresh_token_sealed, token_expiry,
	created_at, updated_at`

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	trusted, err := json.Marshal(u.TrustedSenders)
	if err != nil {
		return fmt.Errorf("failed to marshal trusted senders: %w", err)
	}

	query := `
		INSERT INTO users (
			id, email, display_name, preferred_name, neptun_id,
			timezone, auto_approve_enabled, trusted_senders,
			access_token_sealed, refresh_token_sealed, token_expiry,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		u.ID, u.Email, u.DisplayName, u.PreferredName, u.NeptunID,
		u.Timezone, u.AutoApproveEnabled, trusted,
		u.AccessTokenSealed, u.RefreshTokenSealed, u.TokenExpiry,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID returns the user with the given id.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail returns the user with the given email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

// Update persists mutable user fields.
func (r *UserRepository) Update(ctx context.Context, u *User) error {
	trusted, err := json.Marshal(u.TrustedSenders)
	if err != nil {
		return fmt.Errorf("failed to marshal trusted senders: %w", err)
	}

	query := `
		UPDATE users SET
			display_name = $2, preferred_name = $3, neptun_id = $4,
			timezone = $5, auto_approve_enabled = $6, trusted_senders = $7,
			access_token_sealed = $8, refresh_token_sealed = $9, token_expiry = $10,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		u.ID, u.DisplayName, u.PreferredName, u.NeptunID,
		u.Timezone, u.AutoApproveEnabled, trusted,
		u.AccessTokenSealed, u.RefreshTokenSealed, u.TokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "user not found")
	}
	return nil
}

// UpdateTokens stores refreshed sealed OAuth tokens.
func (r *UserRepository) UpdateTokens(ctx context.Context, u *User) error {
	query := `
		UPDATE users SET
			access_token_sealed = $2, refresh_token_sealed = $3,
			token_expiry = $4, updated_at = NOW()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query,
		u.ID, u.AccessTokenSealed, u.RefreshTokenSealed, u.TokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to update user tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return eherrors.E(eherrors.KindNotFound, "user not found")
	}
	return nil
}

func (r *UserRepository) scanOne(row pgx.Row) (*User, error) {
	var u User
	var trusted []byte
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PreferredName, &u.NeptunID,
		&u.Timezone, &u.AutoApproveEnabled, &trusted,
		&u.AccessTokenSealed, &u.RefreshTokenSealed, &u.TokenExpiry,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eherrors.E(eherrors.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if len(trusted) > 0 {
		if err := json.Unmarshal(trusted, &u.TrustedSenders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trusted senders: %w", err)
		}
	}
	return &u, nil
}
