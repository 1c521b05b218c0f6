// Package auth handles credential-based login and JWT issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tierpix/service/internal/config"
	"github.com/tierpix/service/internal/tier"
	"github.com/tierpix/service/internal/user"
)

const (
	accessTTL  = 15 * time.Minute
	refreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidCredentials is returned for a bad username/password pair.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrInvalidRefreshToken is returned for a bad or expired refresh token.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// TokenPair is an access/refresh JWT pair.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Service contains the business logic for authentication.
type Service struct {
	userSvc *user.Service
	catalog *tier.Catalog
	cfg     *config.Config
}

// NewService creates a new auth Service.
func NewService(userSvc *user.Service, catalog *tier.Catalog, cfg *config.Config) *Service {
	return &Service{userSvc: userSvc, catalog: catalog, cfg: cfg}
}

// Login verifies credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	u, err := s.userSvc.Authenticate(ctx, username, password)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issuePair(u.ID)
}

// Refresh validates a refresh token and issues a fresh pair.
func (s *Service) Refresh(_ context.Context, refreshToken string) (*TokenPair, error) {
	parsed, err := jwt.Parse(refreshToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidRefreshToken
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidRefreshToken
	}
	if use, _ := claims["use"].(string); use != "refresh" {
		return nil, ErrInvalidRefreshToken
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidRefreshToken
	}
	return s.issuePair(sub)
}

// BootstrapAdmin creates the configured admin account on the enterprise tier
// when it does not exist yet. A no-op when the credentials are unset.
func (s *Service) BootstrapAdmin(ctx context.Context) error {
	if s.cfg.AdminUsername == "" || s.cfg.AdminPassword == "" {
		return nil
	}
	if _, err := s.userSvc.GetByUsername(ctx, s.cfg.AdminUsername); err == nil {
		return nil
	}

	ent, err := s.catalog.ByName(ctx, tier.Enterprise)
	if err != nil {
		return fmt.Errorf("resolve enterprise tier: %w", err)
	}
	u, err := s.userSvc.Create(ctx, s.cfg.AdminUsername, s.cfg.AdminPassword, &ent.ID)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("created admin %q on tier %q", u.Username, ent.Name)
	return nil
}

func (s *Service) issuePair(userID string) (*TokenPair, error) {
	now := time.Now()
	access, err := s.sign(jwt.MapClaims{
		"sub": userID,
		"use": "access",
		"iat": now.Unix(),
		"exp": now.Add(accessTTL).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(jwt.MapClaims{
		"sub": userID,
		"use": "refresh",
		"iat": now.Unix(),
		"exp": now.Add(refreshTTL).Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &TokenPair{Access: access, Refresh: refresh}, nil
}

func (s *Service) sign(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}
