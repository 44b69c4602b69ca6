// Package apperr defines the engine's error taxonomy. Handlers map each
// class to an HTTP status; the classes also document retry semantics:
// validation and policy failures are the caller's to correct, state
// conflicts are retried once by the caller only for write-write conflicts,
// and consistency warnings never fail the operation that raised them.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Class partitions engine errors by who can fix them and how.
type Class int

const (
	// Validation: malformed or missing fields. Never retried.
	Validation Class = iota

	// Policy: a well-formed request rejected by a risk rule. Surfaced
	// verbatim to the submitting trader. Never retried automatically.
	Policy

	// NotFound: trader or trade absent.
	NotFound

	// Conflict: an illegal state transition (closing a closed trade,
	// deleting outside the window) or a concurrent-write conflict.
	Conflict
)

// Error is a classified engine error.
type Error struct {
	Class Class
	Msg   string
}

func (e *Error) Error() string { return e.Msg }

// Validationf builds a Validation-class error.
func Validationf(format string, args ...any) error {
	return &Error{Class: Validation, Msg: fmt.Sprintf(format, args...)}
}

// Policyf builds a Policy-class error.
func Policyf(format string, args ...any) error {
	return &Error{Class: Policy, Msg: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound-class error.
func NotFoundf(format string, args ...any) error {
	return &Error{Class: NotFound, Msg: fmt.Sprintf(format, args...)}
}

// Conflictf builds a Conflict-class error.
func Conflictf(format string, args ...any) error {
	return &Error{Class: Conflict, Msg: fmt.Sprintf(format, args...)}
}

// ClassOf extracts the class of err, defaulting to Conflict for plain
// persistence errors surfaced mid-transition and Validation for nil-safety
// misuse. Unclassified errors report class -1.
func ClassOf(err error) (Class, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Class, true
	}
	return -1, false
}

// HTTPStatus maps an error to the status code handlers write.
// Unclassified errors map to 500.
func HTTPStatus(err error) int {
	class, ok := ClassOf(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch class {
	case Validation:
		return http.StatusBadRequest
	case Policy:
		return http.StatusUnprocessableEntity
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// IsClass reports whether err carries the given class.
func IsClass(err error, c Class) bool {
	got, ok := ClassOf(err)
	return ok && got == c
}
