package store

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"qbeAdmin/internal/models"
)

var userColumns = []string{"id", "email", "name", "is_staff", "is_superuser", "created_at", "last_login_at"}

// UserRepo stores admin users.
type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts a new user and fills in its ID and creation time.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, name, is_staff, is_superuser, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.Email, u.Name, u.IsStaff, u.IsSuperuser, now)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to create user", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to read user id", err)
	}
	u.ID = id
	u.CreatedAt = now
	return nil
}

// RecordLogin creates the user on first sign in and stamps last_login_at.
// Roles of an existing user are left alone.
func (r *UserRepo) RecordLogin(ctx context.Context, email, name string) (*models.User, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (email, name, created_at, last_login_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET last_login_at = excluded.last_login_at
	`, email, name, now, now)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to record login", err)
	}
	return r.GetByEmail(ctx, email)
}

func (r *UserRepo) GetByID(ctx context.Context, id int64) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, sq.Eq{"email": email})
}

// List returns every user ordered by email.
func (r *UserRepo) List(ctx context.Context) ([]models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").OrderBy("email").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to query users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, WrapDatabaseError(ErrTypeConnection, "failed to scan user", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetRoles updates the staff and superuser flags.
func (r *UserRepo) SetRoles(ctx context.Context, id int64, isStaff, isSuperuser bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET is_staff = ?, is_superuser = ? WHERE id = ?`, isStaff, isSuperuser, id)
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to update user roles", err)
	}
	return requireAffected(res, "user not found")
}

func (r *UserRepo) getOne(ctx context.Context, where sq.Sqlizer) (*models.User, error) {
	query, args, err := psql.Select(userColumns...).From("users").Where(where).ToSql()
	if err != nil {
		return nil, err
	}
	u, err := scanUser(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, WrapDatabaseError(ErrTypeConnection, "failed to get user", err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

func requireAffected(res sql.Result, message string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return WrapDatabaseError(ErrTypeConnection, "failed to read affected rows", err)
	}
	if n == 0 {
		return &DatabaseError{Type: ErrTypeNotFound, Message: message, Err: ErrNotFound}
	}
	return nil
}
