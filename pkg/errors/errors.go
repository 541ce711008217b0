// Package errors contains the error helpers shared by dirmirror. Errors are
// wrapped with short lowercase context strings as they propagate, so that the
// final message reads like a trace, e.g. "initial sync: walk: permission
// denied".
package errors

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// New returns an error with the given message.
func New(msg string) error {
	return pkgerrors.New(msg)
}

// Errorf formats according to a format specifier and returns the string as an
// error.
func Errorf(format string, a ...interface{}) error {
	return pkgerrors.Errorf(format, a...)
}

// WithContext annotates `err` with `context`. It returns nil if `err` is nil.
func WithContext(err error, context string) error {
	return pkgerrors.WithMessage(err, context)
}

// RootCause returns the innermost error that was annotated with WithContext.
func RootCause(err error) error {
	return pkgerrors.Cause(err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return pkgerrors.Is(err, target)
}

// FriendlyError is an error whose message is meant to be shown directly to
// the user, without any of the context used for debugging.
type FriendlyError struct {
	msg string
}

// NewFriendlyError creates a FriendlyError from the format string.
func NewFriendlyError(format string, a ...interface{}) error {
	return FriendlyError{fmt.Sprintf(format, a...)}
}

func (err FriendlyError) Error() string {
	return err.msg
}

// FriendlyMessage returns the message to show the user.
func (err FriendlyError) FriendlyMessage() string {
	return err.msg
}
