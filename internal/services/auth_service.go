package services

import (
	"context"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/store"
	"qbeAdmin/internal/utils"
)

// UserStore is the user lookup the auth service needs.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	RecordLogin(ctx context.Context, email, name string) (*models.User, error)
}

// AuthService handles authentication business logic
type AuthService struct {
	users  UserStore
	cache  *utils.UserCache
	maxAge int
}

// NewAuthService creates a new authentication service. maxAge is the session
// lifetime in seconds.
func NewAuthService(users UserStore, cache *utils.UserCache, maxAge int) *AuthService {
	return &AuthService{users: users, cache: cache, maxAge: maxAge}
}

// IsAuthenticated checks if a user is authenticated
func (s *AuthService) IsAuthenticated(sessionData *models.SessionData) bool {
	return s.ValidateSession(sessionData) == nil
}

// ValidateSession validates a session
func (s *AuthService) ValidateSession(sessionData *models.SessionData) error {
	if sessionData == nil || !sessionData.Authenticated || sessionData.UserEmail == "" {
		return ErrInvalidSession
	}

	if sessionData.IsExpired(s.maxAge) {
		return ErrExpiredSession
	}

	return nil
}

// ResolveUser turns a valid session into its user, going to the store only
// on a cache miss.
func (s *AuthService) ResolveUser(ctx context.Context, sessionData *models.SessionData) (*models.User, error) {
	if err := s.ValidateSession(sessionData); err != nil {
		return nil, err
	}

	if user, ok := s.cache.Get(sessionData.UserEmail); ok {
		return user, nil
	}

	user, err := s.users.GetByEmail(ctx, sessionData.UserEmail)
	if store.IsNotFound(err) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(user)
	return user, nil
}

// RecordLogin creates or refreshes the user after a successful OAuth callback.
func (s *AuthService) RecordLogin(ctx context.Context, email, name string) (*models.User, error) {
	user, err := s.users.RecordLogin(ctx, email, name)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(email)
	return user, nil
}
