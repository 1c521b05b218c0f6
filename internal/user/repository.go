// Package user manages service accounts: credentials, assigned tier, and
// the lifetime applied to expiring links the account generates.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Link durations are clamped to this range (seconds).
const (
	MinLinkDuration = 300
	MaxLinkDuration = 30000
)

// User represents a registered account. TierID is nil for users with no
// subscription tier: they get no thumbnails and no original-image access.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	TierID       *int      `json:"tierId,omitempty"`
	LinkDuration int       `json:"linkDuration"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// ErrAlreadyExists is returned when a username is already taken.
var ErrAlreadyExists = errors.New("user already exists")

// Repository handles all user database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new user and returns the created record.
func (r *Repository) Create(ctx context.Context, username, passwordHash string, tierID *int, linkDuration int) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO users (username, password_hash, tier_id, link_duration)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, username, password_hash, tier_id, link_duration, created_at, updated_at`,
		username, passwordHash, tierID, linkDuration,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.TierID, &u.LinkDuration, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID fetches a user by their UUID.
func (r *Repository) GetByID(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByUsername fetches a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *Repository) getBy(ctx context.Context, column, value string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx,
		`SELECT id, username, password_hash, tier_id, link_duration, created_at, updated_at
		 FROM users WHERE `+column+` = $1`,
		value,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.TierID, &u.LinkDuration, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by %s: %w", column, err)
	}
	return u, nil
}

// SetTier assigns (or clears, with nil) the user's tier.
func (r *Repository) SetTier(ctx context.Context, id string, tierID *int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET tier_id = $2, updated_at = NOW() WHERE id = $1`,
		id, tierID,
	)
	if err != nil {
		return fmt.Errorf("set user tier: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetLinkDuration updates the lifetime applied to newly generated links.
func (r *Repository) SetLinkDuration(ctx context.Context, id string, seconds int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET link_duration = $2, updated_at = NOW() WHERE id = $1`,
		id, seconds,
	)
	if err != nil {
		return fmt.Errorf("set link duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation checks whether an error is a PostgreSQL unique_violation (code 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
