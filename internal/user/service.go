package user

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidDuration is returned when a link duration is outside [300, 30000].
var ErrInvalidDuration = fmt.Errorf("link duration must be between %d and %d seconds", MinLinkDuration, MaxLinkDuration)

// Store is the persistence surface the service needs, satisfied by *Repository.
type Store interface {
	Create(ctx context.Context, username, passwordHash string, tierID *int, linkDuration int) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	SetTier(ctx context.Context, id string, tierID *int) error
	SetLinkDuration(ctx context.Context, id string, seconds int) error
}

// Service contains business logic for user management.
type Service struct {
	store Store
}

// NewService creates a new user Service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new account with a bcrypt-hashed password.
func (s *Service) Create(ctx context.Context, username, password string, tierID *int) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.store.Create(ctx, username, string(hash), tierID, MinLinkDuration)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate verifies the username/password pair and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

// GetByID returns a user by their UUID.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	return s.store.GetByID(ctx, id)
}

// GetByUsername returns a user by username.
func (s *Service) GetByUsername(ctx context.Context, username string) (*User, error) {
	return s.store.GetByUsername(ctx, username)
}

// AssignTier moves the user onto the given tier (nil clears it).
func (s *Service) AssignTier(ctx context.Context, id string, tierID *int) error {
	return s.store.SetTier(ctx, id, tierID)
}

// UpdateLinkDuration changes how long the user's future links stay valid.
func (s *Service) UpdateLinkDuration(ctx context.Context, id string, seconds int) error {
	if seconds < MinLinkDuration || seconds > MaxLinkDuration {
		return ErrInvalidDuration
	}
	return s.store.SetLinkDuration(ctx, id, seconds)
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
