package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository implements Store on PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new link Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts a new expiring link.
func (r *Repository) Create(ctx context.Context, l *ExpiringLink) (*ExpiringLink, error) {
	out := &ExpiringLink{}
	err := r.db.QueryRow(ctx,
		`INSERT INTO expiring_links (image_id, token, valid_until)
		 VALUES ($1, $2, $3)
		 RETURNING id, image_id, token, valid_until, created_at`,
		l.ImageID, l.Token, l.ValidUntil,
	).Scan(&out.ID, &out.ImageID, &out.Token, &out.ValidUntil, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create expiring link: %w", err)
	}
	return out, nil
}

// GetByToken fetches a link by its opaque token.
func (r *Repository) GetByToken(ctx context.Context, token string) (*ExpiringLink, error) {
	l := &ExpiringLink{}
	err := r.db.QueryRow(ctx,
		`SELECT id, image_id, token, valid_until, created_at
		 FROM expiring_links WHERE token = $1`,
		token,
	).Scan(&l.ID, &l.ImageID, &l.Token, &l.ValidUntil, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get link by token: %w", err)
	}
	return l, nil
}

// Delete removes the link row, reporting whether this call deleted it.
// Under concurrent expiry only one caller observes true; the rest see false
// and still treat the link as gone.
func (r *Repository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM expiring_links WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete link: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// TokensByImage lists the image's link tokens, newest first. Expired-but-
// unread links are included: they persist until something tries to read them.
func (r *Repository) TokensByImage(ctx context.Context, imageID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT token FROM expiring_links WHERE image_id = $1 ORDER BY created_at DESC`,
		imageID,
	)
	if err != nil {
		return nil, fmt.Errorf("list link tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan link token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
