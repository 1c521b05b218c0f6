package tier

import (
	"context"
	"fmt"
)

// Store is the catalog's persistence surface, satisfied by *Repository.
type Store interface {
	GetByID(ctx context.Context, id int) (*Tier, error)
	GetByName(ctx context.Context, name string) (*Tier, error)
}

// Catalog resolves tiers for access decisions. Lookups always hit the store
// so that a tier change takes effect on the very next request.
type Catalog struct {
	store Store
}

// NewCatalog creates a Catalog backed by the given store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{store: store}
}

// ForUser resolves the tier referenced by tierID. A nil tierID means the
// user has no tier: the result is nil with no error, and callers must treat
// it as "no heights permitted, no original access".
func (c *Catalog) ForUser(ctx context.Context, tierID *int) (*Tier, error) {
	if tierID == nil {
		return nil, nil
	}
	t, err := c.store.GetByID(ctx, *tierID)
	if err != nil {
		return nil, fmt.Errorf("resolve tier %d: %w", *tierID, err)
	}
	return t, nil
}

// ByName resolves a tier by catalog name, used by the admin bootstrap.
func (c *Catalog) ByName(ctx context.Context, name string) (*Tier, error) {
	return c.store.GetByName(ctx, name)
}
