package store

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"

	"qbeAdmin/internal/models"
)

func permissionSelect() sq.SelectBuilder {
	return psql.Select(
		"p.id", "p.query_id", "q.name", "p.user_id", "COALESCE(u.email, '')",
		"p.group_id", "COALESCE(g.name, '')", "p.can_run",
	).From("saved_query_permissions p").
		Join("saved_queries q ON q.id = p.query_id").
		LeftJoin("users u ON u.id = p.user_id").
		LeftJoin("groups g ON g.id = p.group_id")
}

// PermissionRepo stores saved query grants.
type PermissionRepo struct {
	db *sql.DB
}

func NewPermissionRepo(db *sql.DB) *PermissionRepo {
	return &PermissionRepo{db: db}
}

func (r *PermissionRepo) Create(ctx context.Context, p *models.SavedQueryPermission) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_query_permissions (query_id, user_id, group_id, can_run)
		VALUES (?, ?, ?, ?)
	`, p.QueryID, nullID(p.UserID), nullID(p.GroupID), p.CanRun)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to create permission", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to read permission id", err)
	}
	p.ID = id
	return nil
}

func (r *PermissionRepo) Update(ctx context.Context, p *models.SavedQueryPermission) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE saved_query_permissions
		SET query_id = ?, user_id = ?, group_id = ?, can_run = ?
		WHERE id = ?
	`, p.QueryID, nullID(p.UserID), nullID(p.GroupID), p.CanRun, p.ID)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to update permission", err)
	}
	return requireAffected(res, "permission not found")
}

func (r *PermissionRepo) Get(ctx context.Context, id int64) (*models.SavedQueryPermission, error) {
	query, args, err := permissionSelect().Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	p, err := scanPermission(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to get permission", err)
	}
	return p, nil
}

func (r *PermissionRepo) List(ctx context.Context) ([]models.SavedQueryPermission, error) {
	query, args, err := permissionSelect().OrderBy("q.name", "p.id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to query permissions", err)
	}
	defer rows.Close()

	var perms []models.SavedQueryPermission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, WrapDatabaseError(ErrTypeConnection, "failed to scan permission", err)
		}
		perms = append(perms, *p)
	}
	return perms, rows.Err()
}

func (r *PermissionRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM saved_query_permissions WHERE id = ?`, id)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to delete permission", err)
	}
	return requireAffected(res, "permission not found")
}

// HasRunGrant reports whether a can_run grant on the query exists for the
// user or one of the user's groups. Several matching rows count as one; a
// false row never cancels a true one.
func (r *PermissionRepo) HasRunGrant(ctx context.Context, queryID, userID int64) (bool, error) {
	var found bool
	err := r.db.QueryRowContext(ctx,
		`SELECT `+runGrantPredicate+` FROM saved_queries q WHERE q.id = ?`,
		userID, userID, queryID,
	).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, WrapDatabaseError(ErrTypeConnection, "failed to check run permission", err)
	}
	return found, nil
}

func scanPermission(row rowScanner) (*models.SavedQueryPermission, error) {
	var p models.SavedQueryPermission
	var userID, groupID sql.NullInt64
	if err := row.Scan(&p.ID, &p.QueryID, &p.QueryName, &userID, &p.UserEmail,
		&groupID, &p.GroupName, &p.CanRun); err != nil {
		return nil, err
	}
	if userID.Valid {
		id := userID.Int64
		p.UserID = &id
	}
	if groupID.Valid {
		id := groupID.Int64
		p.GroupID = &id
	}
	return &p, nil
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}
