package core

import "errors"

// Error codes for domain errors. Each maps onto one class of the command
// failure taxonomy: authentication, authorization, not-found, capacity,
// state and concurrency failures.
const (
	ErrCodeAuthRequired        = "auth_required"
	ErrCodeNotCrown            = "not_crown"
	ErrCodeRoomNotFound        = "room_not_found"
	ErrCodeParticipantNotFound = "participant_not_found"
	ErrCodeRoomFull            = "room_full"
	ErrCodeRoomPrivate         = "room_private"
	ErrCodeSettingsLocked      = "settings_locked"
	ErrCodeAlreadyPublished    = "already_published"
	ErrCodeRoomActive          = "room_active"
	ErrCodeStartRaced          = "start_raced"
	ErrCodeBadRequest          = "bad_request"
	ErrCodeInternal            = "internal"
)

// Error wraps a code and human-readable message. Command handlers report it
// to the originating socket; it never terminates the connection.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func coreError(code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// AsError coerces any error into a client-reportable *Error. Unrecognized
// errors (store failures and the like) surface as an opaque internal error;
// the detail stays in the server log.
func AsError(err error) *Error {
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	return &Error{Code: ErrCodeInternal, Message: "internal error"}
}
