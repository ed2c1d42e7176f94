// Package apperr defines the error-kind taxonomy shared by every service
// in the duel stack. A Kind is the only thing that ever crosses the wire;
// the human-readable message is for logs and the response envelope, never
// a stack trace.
package apperr

import "fmt"

// Kind is a machine-readable error category, per spec §7.
type Kind string

const (
	MalformedFrame         Kind = "MalformedFrame"
	UnknownAction          Kind = "UnknownAction"
	Unauthenticated        Kind = "Unauthenticated"
	PermissionDenied       Kind = "PermissionDenied"
	NotFound               Kind = "NotFound"
	Conflict               Kind = "Conflict"
	InvalidCredentials     Kind = "InvalidCredentials"
	InvalidState           Kind = "InvalidState"
	Capacity               Kind = "Capacity"
	LauncherError          Kind = "LauncherError"
	PersistenceUnavailable Kind = "PersistenceUnavailable"
	Timeout                Kind = "Timeout"
	Forfeit                Kind = "Forfeit"
)

// Error pairs a Kind with a human-readable message. It implements the
// standard error interface so it can flow through normal Go error returns
// up to the point where a handler translates it into a wire envelope.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error, keeping it unwrappable.
func Wrap(kind Kind, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Message: msg, cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, returning
// InvalidState as a conservative default otherwise.
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return InvalidState
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Infrastructure reports whether a Kind represents an infrastructure
// failure eligible for bounded retry per spec §7, as opposed to a
// business error that is returned immediately.
func Infrastructure(k Kind) bool {
	return k == PersistenceUnavailable || k == LauncherError
}
