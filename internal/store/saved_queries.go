package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"qbeAdmin/internal/models"
	"qbeAdmin/internal/qbe"
)

// runGrantPredicate matches grants on saved query q.id that let user ? run it,
// either directly or through one of the user's groups.
const runGrantPredicate = `EXISTS (
	SELECT 1 FROM saved_query_permissions p
	WHERE p.query_id = q.id AND p.can_run = 1
	  AND (p.user_id = ? OR p.group_id IN (SELECT gm.group_id FROM group_members gm WHERE gm.user_id = ?))
)`

func savedQuerySelect() sq.SelectBuilder {
	return psql.Select(
		"q.id", "q.name", "q.owner_id", "u.email", "q.description",
		"q.date_created", "q.query_data", "q.query_hash",
	).From("saved_queries q").Join("users u ON u.id = q.owner_id")
}

// SavedQueryRepo stores saved queries.
type SavedQueryRepo struct {
	db *sql.DB
}

func NewSavedQueryRepo(db *sql.DB) *SavedQueryRepo {
	return &SavedQueryRepo{db: db}
}

// Create inserts q. DateCreated defaults to now.
func (r *SavedQueryRepo) Create(ctx context.Context, q *models.SavedQuery) error {
	data, err := qbe.Encode(q.QueryData)
	if err != nil {
		return WrapDatabaseError(ErrTypeEncoding, "failed to encode query data", err)
	}
	if q.DateCreated.IsZero() {
		q.DateCreated = time.Now().UTC()
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO saved_queries (name, owner_id, description, date_created, query_data, query_hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`, q.Name, q.OwnerID, q.Description, q.DateCreated, string(data), q.QueryHash)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to create saved query", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to read saved query id", err)
	}
	q.ID = id
	return nil
}

// Update rewrites the mutable columns of an existing saved query.
func (r *SavedQueryRepo) Update(ctx context.Context, q *models.SavedQuery) error {
	data, err := qbe.Encode(q.QueryData)
	if err != nil {
		return WrapDatabaseError(ErrTypeEncoding, "failed to encode query data", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE saved_queries
		SET name = ?, description = ?, query_data = ?, query_hash = ?
		WHERE id = ?
	`, q.Name, q.Description, string(data), q.QueryHash, q.ID)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to update saved query", err)
	}
	return requireAffected(res, "saved query not found")
}

func (r *SavedQueryRepo) Get(ctx context.Context, id int64) (*models.SavedQuery, error) {
	query, args, err := savedQuerySelect().Where(sq.Eq{"q.id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	q, err := scanSavedQuery(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to get saved query", err)
	}
	return q, nil
}

// List returns every saved query, newest first.
func (r *SavedQueryRepo) List(ctx context.Context) ([]models.SavedQuery, error) {
	return r.list(ctx, savedQuerySelect())
}

// ListVisible returns the saved queries user may see: all of them for a
// superuser, otherwise the ones they own plus the ones a can_run grant
// covers for them or one of their groups.
func (r *SavedQueryRepo) ListVisible(ctx context.Context, user *models.User) ([]models.SavedQuery, error) {
	builder := savedQuerySelect()
	if !user.IsSuperuser {
		builder = builder.Where(sq.Or{
			sq.Eq{"q.owner_id": user.ID},
			sq.Expr(runGrantPredicate, user.ID, user.ID),
		})
	}
	return r.list(ctx, builder)
}

// Delete removes the saved query; its grants go with it.
func (r *SavedQueryRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE id = ?`, id)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to delete saved query", err)
	}
	return requireAffected(res, "saved query not found")
}

func (r *SavedQueryRepo) list(ctx context.Context, builder sq.SelectBuilder) ([]models.SavedQuery, error) {
	query, args, err := builder.OrderBy("q.date_created DESC", "q.id DESC").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to query saved queries", err)
	}
	defer rows.Close()

	var queries []models.SavedQuery
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, WrapDatabaseError(ErrTypeConnection, "failed to scan saved query", err)
		}
		queries = append(queries, *q)
	}
	return queries, rows.Err()
}

func scanSavedQuery(row rowScanner) (*models.SavedQuery, error) {
	var q models.SavedQuery
	var data string
	if err := row.Scan(&q.ID, &q.Name, &q.OwnerID, &q.OwnerEmail, &q.Description,
		&q.DateCreated, &data, &q.QueryHash); err != nil {
		return nil, err
	}
	def, err := qbe.Decode([]byte(data))
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeEncoding, "failed to decode query data", err)
	}
	q.QueryData = def
	return &q, nil
}
