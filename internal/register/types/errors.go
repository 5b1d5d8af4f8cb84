package types

import "fmt"

// Error is a stable, machine-readable error class. Two errors match under
// errors.Is when their codes are equal, so callers compare against the
// package-level classes below.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return e.Code
	case e.Message == "":
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func (e *Error) Unwrap() error { return e.Err }

// WithMessage returns a copy of the class carrying a human-readable message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

// Wrap returns a copy of the class with err as its cause.
func (e *Error) Wrap(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Err: err}
}

var (
	// ErrNotFound: the entity, location or operator does not exist or is deactivated.
	ErrNotFound = &Error{Code: "E_NOT_FOUND"}
	// ErrInvalidTransition: double entry or exit without entry. User-correctable.
	ErrInvalidTransition = &Error{Code: "E_INVALID_TRANSITION"}
	// ErrStorage: the persistence layer failed. Never retried by the engine.
	ErrStorage = &Error{Code: "E_STORAGE"}

	ErrInvalidArgument = &Error{Code: "E_INVALID_ARGUMENT"}
	ErrForbidden       = &Error{Code: "E_FORBIDDEN"}
)

// Message returns the human-readable part of a class error, or err.Error()
// for anything else.
func Message(err error) string {
	if e, ok := err.(*Error); ok && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
