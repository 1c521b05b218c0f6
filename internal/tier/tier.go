// Package tier manages the subscription tier catalog: which thumbnail
// heights each tier permits and whether it grants original-image access.
package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Well-known tier names. The catalog is extensible, but these three are
// seeded by migration and Enterprise is the gate for binary link access.
const (
	Basic      = "basic"
	Premium    = "premium"
	Enterprise = "enterprise"
)

// ErrNotFound is returned when a tier does not exist.
var ErrNotFound = errors.New("tier not found")

// Tier is a subscription class with its permitted thumbnail heights.
type Tier struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	OriginalAccess bool   `json:"originalAccess"`
	Heights        []int  `json:"heights"`
}

// HeightSet returns the permitted heights as a set.
func (t *Tier) HeightSet() map[int]struct{} {
	set := make(map[int]struct{}, len(t.Heights))
	for _, h := range t.Heights {
		set[h] = struct{}{}
	}
	return set
}

// PermitsHeight reports whether the tier allows thumbnails of the given height.
func (t *Tier) PermitsHeight(height int) bool {
	for _, h := range t.Heights {
		if h == height {
			return true
		}
	}
	return false
}

// Repository handles tier catalog database operations.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new tier Repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// GetByID fetches a tier with its permitted heights.
func (r *Repository) GetByID(ctx context.Context, id int) (*Tier, error) {
	t := &Tier{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, original_access FROM tiers WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Name, &t.OriginalAccess)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tier by id: %w", err)
	}
	if t.Heights, err = r.heights(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

// GetByName fetches a tier by its catalog name.
func (r *Repository) GetByName(ctx context.Context, name string) (*Tier, error) {
	t := &Tier{}
	err := r.db.QueryRow(ctx,
		`SELECT id, name, original_access FROM tiers WHERE name = $1`,
		name,
	).Scan(&t.ID, &t.Name, &t.OriginalAccess)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tier by name: %w", err)
	}
	if t.Heights, err = r.heights(ctx, t.ID); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Repository) heights(ctx context.Context, tierID int) ([]int, error) {
	rows, err := r.db.Query(ctx,
		`SELECT s.height FROM sizes s
		 JOIN tier_sizes ts ON ts.size_id = s.id
		 WHERE ts.tier_id = $1
		 ORDER BY s.height`,
		tierID,
	)
	if err != nil {
		return nil, fmt.Errorf("get tier heights: %w", err)
	}
	defer rows.Close()

	var heights []int
	for rows.Next() {
		var h int
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("scan tier height: %w", err)
		}
		heights = append(heights, h)
	}
	return heights, rows.Err()
}
