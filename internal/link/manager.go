package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tierpix/service/internal/token"
	"github.com/tierpix/service/internal/user"
)

// Manager issues and resolves expiring links.
type Manager struct {
	store Store

	// now is swapped in tests to control link expiry.
	now func() time.Time
}

// NewManager creates a link Manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Generate creates a new link for the image, valid for the owner's
// configured link duration. Any number of live links may coexist per image.
func (m *Manager) Generate(ctx context.Context, imageID string, owner *user.User) (*ExpiringLink, error) {
	tok, err := token.Issue()
	if err != nil {
		return nil, fmt.Errorf("issue link token: %w", err)
	}
	return m.store.Create(ctx, &ExpiringLink{
		ImageID:    imageID,
		Token:      tok,
		ValidUntil: m.now().Add(time.Duration(owner.LinkDuration) * time.Second),
	})
}

// Resolve looks up a link by token and validates it. A link past its
// validity is deleted as a side effect and reported as ErrExpired; any
// subsequent lookup of the same token returns ErrNotFound.
func (m *Manager) Resolve(ctx context.Context, tok string) (*ExpiringLink, error) {
	l, err := m.store.GetByToken(ctx, tok)
	if err != nil {
		return nil, err
	}
	if l.ValidUntil.Before(m.now()) {
		if _, err := m.store.Delete(ctx, l.ID); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	return l, nil
}

// TokensByImage lists the image's link tokens. Satisfies image.LinkSource.
func (m *Manager) TokensByImage(ctx context.Context, imageID string) ([]string, error) {
	return m.store.TokensByImage(ctx, imageID)
}

// IsGone reports whether the error means the link is absent or expired.
func IsGone(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrExpired)
}
