// Package link manages expiring binary links: time-bounded, token-addressed
// pointers to an image's original bytes. Expiry is lazy: a stale link is
// deleted the first time someone tries to follow it, not by a sweeper.
package link

import (
	"context"
	"errors"
	"time"
)

// ExpiringLink points at one image and stays valid until ValidUntil.
type ExpiringLink struct {
	ID         string    `json:"id"`
	ImageID    string    `json:"imageId"`
	Token      string    `json:"token"`
	ValidUntil time.Time `json:"validUntil"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ErrNotFound is returned when no link exists for a token.
var ErrNotFound = errors.New("link not found")

// ErrExpired is returned when a link is past its validity; by the time the
// caller sees it, the link row is already gone.
var ErrExpired = errors.New("link expired")

// Store is the persistence surface for links, satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, l *ExpiringLink) (*ExpiringLink, error)
	GetByToken(ctx context.Context, token string) (*ExpiringLink, error)
	Delete(ctx context.Context, id string) (bool, error)
	TokensByImage(ctx context.Context, imageID string) ([]string, error)
}
