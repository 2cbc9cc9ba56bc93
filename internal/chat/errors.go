package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrRoomNotFound is returned when a room id resolves to no stored
	// conversation.
	ErrRoomNotFound = errors.New("room not found")

	// ErrLoginRequired is returned when a realtime action arrives before a
	// successful login on the same connection.
	ErrLoginRequired = errors.New("login required")

	// ErrInvalidToken is returned when an access token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrRoundInProgress is returned by guessr:start while a live round
	// occupies the room's round cell.
	ErrRoundInProgress = errors.New("a round is already in progress")

	// ErrNoQuestions is returned by guessr:start when the question store has
	// nothing to draw from.
	ErrNoQuestions = errors.New("no questions available")
)

// ValidationError marks a client input problem. The realtime layer reports it
// to the offending connection without closing it.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
