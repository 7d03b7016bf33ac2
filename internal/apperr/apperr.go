// Package apperr defines the error kinds shared by the sync core and the API:
// validation, conflict, authorization, not-found and sync failures.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation    = errors.New("validation error")
	ErrConflict      = errors.New("conflict")
	ErrAuthorization = errors.New("authorization error")
	ErrNotFound      = errors.New("not found")
	ErrSync          = errors.New("sync error")
)

// Error carries a kind, a human message and an optional cause.
// CurrentStatus is set on relationship conflicts to the status of the existing edge.
type Error struct {
	Kind          error
	Message       string
	CurrentStatus string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) *Error {
	return &Error{Kind: ErrAuthorization, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an existing record; status is the existing relationship status, if any.
func Conflict(status string, format string, args ...any) *Error {
	return &Error{Kind: ErrConflict, Message: fmt.Sprintf(format, args...), CurrentStatus: status}
}

// Sync wraps a transient backend or network failure seen during reconciliation.
func Sync(cause error, format string, args ...any) *Error {
	return &Error{Kind: ErrSync, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CurrentStatus extracts the existing relationship status from a conflict, or "".
func CurrentStatus(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.CurrentStatus
	}
	return ""
}

// HTTPStatus maps an error to the response code the API uses for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSync):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTP rebuilds an error from an API response code.
// Codes without a terminal kind (5xx, 401, 429, ...) become sync errors.
func FromHTTP(code int, message, currentStatus string) error {
	switch code {
	case http.StatusBadRequest:
		return &Error{Kind: ErrValidation, Message: message}
	case http.StatusConflict:
		return &Error{Kind: ErrConflict, Message: message, CurrentStatus: currentStatus}
	case http.StatusForbidden:
		return &Error{Kind: ErrAuthorization, Message: message}
	case http.StatusNotFound:
		return &Error{Kind: ErrNotFound, Message: message}
	default:
		return &Error{Kind: ErrSync, Message: fmt.Sprintf("unexpected status %d: %s", code, message)}
	}
}
