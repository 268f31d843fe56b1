package services

// Error represents a service error
type Error struct {
	message string
}

func NewError(message string) *Error {
	return &Error{message: message}
}

func (e *Error) Error() string {
	return e.message
}

var (
	ErrInvalidSession = NewError("invalid session")
	ErrExpiredSession = NewError("session expired")
	ErrUnknownUser    = NewError("user not registered")

	// ErrMissingSessionData means the pending query a save depends on is not
	// in the session. Nothing is persisted.
	ErrMissingSessionData = NewError("missing session data for query hash")
	ErrHashMismatch       = NewError("session query data does not match its hash")
	ErrNotFound           = NewError("saved query not found")
	ErrForbidden          = NewError("not allowed to modify this saved query")
	ErrInvalidQuery       = NewError("invalid query definition")
)
