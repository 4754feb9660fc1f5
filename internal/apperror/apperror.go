// Package apperror defines the error taxonomy shared by every layer.
//
// Services return these errors; handlers translate them to HTTP status codes
// (see handler/response.go). Callers match on the sentinel with errors.Is and
// read the human-readable message with errors.As.
//
//	err := apperror.NotFound("list", id)
//	errors.Is(err, apperror.ErrNotFound) // true
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation error")
	ErrConflict        = errors.New("conflict")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidState    = errors.New("invalid state")
	ErrConfiguration   = errors.New("configuration error")
	ErrTransient       = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // sentinel used for classification
	Message string // human-readable error message
	Field   string // optional: field causing the error
	Cause   error  // optional: underlying driver/network error, for logs only
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes the sentinel, not the Cause. Driver errors must never leak
// into errors.Is matching or into responses.
func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// ConflictMessage is Conflict with a caller-supplied message, for conflicts
// that are not about an id (duplicate email, already friends).
func ConflictMessage(message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// Unauthenticated is returned for bad credentials or a missing session.
func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

// InvalidState is returned when an operation is not legal for the current
// state of the entity, e.g. responding to a request that is no longer pending.
func InvalidState(message string) *AppError {
	return &AppError{
		Err:     ErrInvalidState,
		Message: message,
	}
}

// Configuration is returned when a backend collaborator (auth secret, image
// bucket) has not been configured. The server keeps running; only the
// operations depending on that collaborator fail.
func Configuration(message string) *AppError {
	return &AppError{
		Err:     ErrConfiguration,
		Message: message,
	}
}

// Transient wraps a store or network failure. The cause is kept for logging;
// the message shown to clients is generic.
func Transient(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrTransient,
		Message: fmt.Sprintf("%s failed, please try again", op),
		Cause:   cause,
	}
}
