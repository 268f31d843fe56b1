package store

import (
	"context"
	"database/sql"
	"time"

	"qbeAdmin/internal/models"
)

// GroupRepo stores groups and their members.
type GroupRepo struct {
	db *sql.DB
}

func NewGroupRepo(db *sql.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

func (r *GroupRepo) Create(ctx context.Context, g *models.Group) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO groups (name, description, created_at) VALUES (?, ?, ?)
	`, g.Name, g.Description, now)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to create group", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to read group id", err)
	}
	g.ID = id
	g.CreatedAt = now
	return nil
}

func (r *GroupRepo) GetByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, description, created_at FROM groups WHERE name = ?
	`, name).Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to get group", err)
	}
	return &g, nil
}

func (r *GroupRepo) List(ctx context.Context) ([]models.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, created_at FROM groups ORDER BY name
	`)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to query groups", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt); err != nil {
			return nil, WrapDatabaseError(ErrTypeConnection, "failed to scan group", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// AddMember puts the user with the given email into the named group.
// Adding an existing member is a no-op.
func (r *GroupRepo) AddMember(ctx context.Context, groupName, email string) error {
	return WithTransaction(ctx, r.db, func(tx *sql.Tx) error {
		var groupID, userID int64
		if err := tx.QueryRowContext(ctx, `SELECT id FROM groups WHERE name = ?`, groupName).Scan(&groupID); err != nil {
			return WrapDatabaseError(ErrTypeConnection, "failed to find group "+groupName, err)
		}
		if err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&userID); err != nil {
			return WrapDatabaseError(ErrTypeConnection, "failed to find user "+email, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)
		`, groupID, userID)
		if err != nil {
			return WrapDatabaseError(ErrTypeConstraint, "failed to add group member", err)
		}
		return nil
	})
}

// IsMember reports whether the user belongs to the group.
func (r *GroupRepo) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?
	`, groupID, userID).Scan(&count)
	if err != nil {
		return false, WrapDatabaseError(ErrTypeConnection, "failed to check group membership", err)
	}
	return count > 0, nil
}
