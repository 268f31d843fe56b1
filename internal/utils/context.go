package utils

import (
	"context"
	"net/http"

	"qbeAdmin/internal/models"
)

type contextKey string

const (
	UserKey      contextKey = "user"
	CSRFTokenKey contextKey = "csrf_token"
)

// WithUser stores the authenticated user in ctx
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithCSRFToken stores the session CSRF token in ctx
func WithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, CSRFTokenKey, token)
}

// GetUser extracts the authenticated user from request context
func GetUser(r *http.Request) (*models.User, bool) {
	user, ok := r.Context().Value(UserKey).(*models.User)
	return user, ok && user != nil
}

// GetCSRFToken extracts CSRF token from request context
func GetCSRFToken(r *http.Request) (string, bool) {
	token, ok := r.Context().Value(CSRFTokenKey).(string)
	return token, ok && token != ""
}

// IsAuthenticated checks if user is authenticated
func IsAuthenticated(r *http.Request) bool {
	_, ok := GetUser(r)
	return ok
}
