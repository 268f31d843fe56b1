package models

import (
	"strconv"
	"time"
)

// SavedQuery is a named, owned query definition built through the QBE form.
type SavedQuery struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	OwnerID     int64           `json:"owner_id"`
	OwnerEmail  string          `json:"owner_email"`
	Description string          `json:"description"`
	DateCreated time.Time       `json:"date_created"`
	QueryData   QueryDefinition `json:"query_data"`
	QueryHash   string          `json:"query_hash"`
}

func (q *SavedQuery) PK() int64 { return q.ID }

func (q *SavedQuery) String() string { return q.Name }

// SavedQueryPermission grants a user or a group the right to run a saved query.
// At least one of UserID or GroupID should be set for the grant to mean anything.
type SavedQueryPermission struct {
	ID        int64  `json:"id"`
	QueryID   int64  `json:"query_id"`
	QueryName string `json:"query_name"`
	UserID    *int64 `json:"user_id,omitempty"`
	UserEmail string `json:"user_email,omitempty"`
	GroupID   *int64 `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	CanRun    bool   `json:"can_run"`
}

func (p *SavedQueryPermission) PK() int64 { return p.ID }

func (p *SavedQueryPermission) String() string {
	subject := p.UserEmail
	if subject == "" {
		subject = "group " + p.GroupName
	}
	return subject + " on " + p.QueryName + " (#" + strconv.FormatInt(p.ID, 10) + ")"
}

// HasSubject reports whether the grant names a user or a group.
func (p *SavedQueryPermission) HasSubject() bool {
	return p.UserID != nil || p.GroupID != nil
}
