package core

import (
	"errors"
	"fmt"
)

// Error codes for precondition failures. They are replied to the requesting
// session, which keeps running.
const (
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeInvalidCredentials = "invalid_credentials"
	ErrCodeAlreadyLoggedIn    = "already_logged_in"
	ErrCodeUserExists         = "user_exists"
	ErrCodeUserNotFound       = "user_not_found"
	ErrCodeRoomNotFound       = "room_not_found"
	ErrCodeRoomExists         = "room_exists"
	ErrCodeNotInRoom          = "not_in_room"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeUndelivered        = "undelivered"
)

var (
	// ErrSessionClosed is returned when sending to a session that already ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrSlowConsumer is returned when a session's outbound queue is full.
	ErrSlowConsumer = errors.New("outbound queue full")
	// ErrAlreadyLoggedIn is returned by Directory.Insert for a username that
	// already has a live session.
	ErrAlreadyLoggedIn = errors.New("already logged in")

	errDisconnect = errors.New("client requested disconnect")
)

// CoreError wraps a code and the human-readable reply text.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

func coreErrorf(code, format string, args ...any) *CoreError {
	return &CoreError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// isTransportError reports whether err means the session itself can no longer
// be written to.
func isTransportError(err error) bool {
	return errors.Is(err, ErrSlowConsumer) || errors.Is(err, ErrSessionClosed)
}
