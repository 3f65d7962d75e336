// Package apperrors defines the application error taxonomy shared by the
// service and handler layers. Every error carries a stable machine-readable
// kind plus a human-readable message; handlers map kinds to HTTP statuses.
// Errors are never used for ordinary control flow.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind string

const (
	// KindValidation marks malformed or out-of-policy input. Always
	// recoverable client-side; carries the offending field when known.
	KindValidation Kind = "validation"

	// KindAuthorization marks a missing permission or insufficient role
	// level. Checked before any mutation, so it never partially applies.
	KindAuthorization Kind = "authorization"

	// KindNotFound marks an unknown product/record/template id.
	KindNotFound Kind = "not_found"

	// KindConflict marks a duplicate internal lot or a violated
	// state-machine guard (mutating a non-pending record).
	KindConflict Kind = "conflict"

	// KindInternal marks an unexpected storage or infrastructure failure.
	KindInternal Kind = "internal"
)

// Error is the concrete application error type.
type Error struct {
	Kind    Kind   // Stable machine-readable classification
	Field   string // Offending field for validation errors ("" otherwise)
	Message string // Human-readable description, safe to show to users
	Err     error  // Wrapped cause, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Validation builds a validation error naming the offending field.
func Validation(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Authorization builds an authorization error.
func Authorization(format string, args ...any) *Error {
	return &Error{Kind: KindAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a conflict error.
func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure. The original error is preserved for
// logging but the message shown to callers stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf returns the kind of err, or KindInternal when err is not an
// application error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is an application error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
