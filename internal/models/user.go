package models

import "time"

// User represents a person who can sign in to the admin
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	IsStaff     bool       `json:"is_staff"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// CanAccessAdmin reports whether the user may enter the admin at all.
func (u *User) CanAccessAdmin() bool {
	return u != nil && (u.IsStaff || u.IsSuperuser)
}

func (u *User) String() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Group is a named set of users that can receive query grants
type Group struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (g *Group) String() string {
	if g == nil {
		return ""
	}
	return g.Name
}

// SessionData represents the authenticated part of the auth session
type SessionData struct {
	UserEmail     string    `json:"user_email"`
	CSRFToken     string    `json:"csrf_token"`
	Authenticated bool      `json:"authenticated"`
	CreatedAt     time.Time `json:"created_at"`
}

// IsExpired checks if the session has expired
func (s *SessionData) IsExpired(maxAge int) bool {
	return time.Since(s.CreatedAt) > time.Duration(maxAge)*time.Second
}
