package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a lookup by key matches no row.
var ErrNotFound = errors.New("record not found")

// DatabaseError represents different types of database errors
type DatabaseError struct {
	Type    string
	Message string
	Err     error
}

func (e *DatabaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Common database error types
const (
	ErrTypeConnection = "CONNECTION_ERROR"
	ErrTypeNotFound   = "NOT_FOUND"
	ErrTypeConstraint = "CONSTRAINT_VIOLATION"
	ErrTypeEncoding   = "ENCODING_ERROR"
)

// WrapDatabaseError wraps a database error with additional context.
// sql.ErrNoRows becomes a NOT_FOUND error that matches ErrNotFound, SQLite
// constraint failures become CONSTRAINT_VIOLATION and errors that are already
// wrapped keep their type.
func WrapDatabaseError(errType, message string, err error) *DatabaseError {
	if errors.Is(err, sql.ErrNoRows) {
		return &DatabaseError{Type: ErrTypeNotFound, Message: message, Err: ErrNotFound}
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		errType = ErrTypeConstraint
	}
	return &DatabaseError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsNotFound reports whether err is a missing-row error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConstraint reports whether err is a uniqueness or foreign key violation.
func IsConstraint(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr) && dbErr.Type == ErrTypeConstraint
}
