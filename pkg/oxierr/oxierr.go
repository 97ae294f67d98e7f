// Package oxierr defines OxiDB's wire-visible error taxonomy (spec.md §7).
// Every error that crosses the dispatcher boundary is classified into one
// of a small set of stable Kind values so clients can branch on failure
// type without parsing message text.
package oxierr

import "fmt"

// Kind is a stable, wire-visible error classification.
type Kind string

const (
	ParseError     Kind = "parse_error"
	BadRequest     Kind = "bad_request"
	Unauthenticated Kind = "unauthenticated"
	AuthFailed     Kind = "auth_failed"
	Forbidden      Kind = "forbidden"
	NotFound       Kind = "not_found"
	Conflict       Kind = "conflict"
	IOError        Kind = "io_error"
	Corruption     Kind = "corruption"
	Internal       Kind = "internal"
)

// Error is an error carrying a wire-stable Kind alongside the usual
// message/wrapped-cause chain.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error of the given kind with a formatted message.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err, defaulting to Internal for errors
// that were never classified (a defect everywhere except at truly
// unexpected boundaries, per spec.md §7's "any unclassified failure").
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var oe *Error
	if ok := asError(err, &oe); ok {
		return oe.Kind
	}
	return Internal
}

func asError(err error, target **Error) bool {
	for err != nil {
		if oe, ok := err.(*Error); ok {
			*target = oe
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
