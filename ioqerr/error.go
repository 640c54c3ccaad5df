package ioqerr

import "fmt"

// Error is the structured error type returned by every fallible operation
// in this module. It pairs a flat Kind with a POSIX-style Errno and an
// optional wrapped cause, modeled on the ambient TypeError/RangeError shape
// of (Cause error, Message string, Error(), Unwrap()).
type Error struct {
	Kind    Kind
	Errno   Errno
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (%s)", e.Kind, e.Errno)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Errno, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Errno, e.Message)
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error for errno, deriving its Kind automatically, with an
// optional human-readable message.
func New(errno Errno, message string) *Error {
	return &Error{Kind: kindOf(errno), Errno: errno, Message: message}
}

// Wrap builds an *Error for errno around an existing cause, analogous to
// the ambient stack's WrapError(message, cause) helper.
func Wrap(errno Errno, message string, cause error) *Error {
	return &Error{Kind: kindOf(errno), Errno: errno, Message: message, Cause: cause}
}

// Is reports whether target is an *Error with the same Errno, so that
// errors.Is(err, ioqerr.New(ioqerr.EBADF, "")) works as a sentinel-style
// comparison without requiring exact message equality.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Errno == t.Errno
}
