package internal

import (
	"context"
	"errors"
)

var (

	// A blocking operation ran past its deadline. Matches context.DeadlineExceeded.
	ErrTimeout = NewClassError("timeout", context.DeadlineExceeded)

	// The run was cancelled from outside. Matches context.Canceled.
	ErrCancelled = NewClassError("cancelled", context.Canceled)
)

// A sentinel error that unwraps to a broader error class.
//
// The message is reported on its own; the class is only visible through
// errors.Is, which lets callers test either the exact sentinel or the class
// (for example with errdefs.IsNotFound).
type classError struct {
	msg   string
	class error
}

// Creates a sentinel error reporting msg and classified as class.
func NewClassError(msg string, class error) error {
	return &classError{msg: msg, class: class}
}

// Returns the sentinel message.
func (e *classError) Error() string {
	return e.msg
}

// Returns the error class.
func (e *classError) Unwrap() error {
	return e.class
}

// Translates the state of a finished context into ErrTimeout or ErrCancelled.
//
// Returns nil while ctx is still live. Callers use it after a blocking call
// fails to report the interruption instead of the secondary error it caused
// (a killed process, a closed connection).
func Interrupted(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	default:
		return ErrCancelled
	}
}

// Returns true if err is ErrTimeout or ErrCancelled.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrCancelled)
}
