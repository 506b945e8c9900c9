// Package apperror defines the error classes shared by the engine, the service
// layer and the HTTP handlers.
//
// Every class is a sentinel (ErrXxx) wrapped by an *AppError. Callers branch with
// errors.Is(err, apperror.ErrLaunch) and so on; handlers use errors.As to pull out
// the human-readable Message.
//
// Timeouts and failing user programs are NOT errors here. They are ordinary
// fields of an execution result.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation error")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrStaging             = errors.New("staging failed")
	ErrLaunch              = errors.New("launch failed")
)

type AppError struct {
	Err     error  // sentinel class
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying error, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
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

// UnsupportedLanguage is returned before any filesystem or process work happens.
// HTTP handlers map this to 400 Bad Request.
func UnsupportedLanguage(language string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("unsupported language: %s", language),
		Field:   "language",
	}
}

// StagingFailed wraps a filesystem error raised while preparing a workspace.
func StagingFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrStaging,
		Message: "failed to stage workspace",
		Cause:   cause,
	}
}

// LaunchFailed wraps an error raised before the sandboxed program could run:
// the runtime daemon is unreachable, the image is missing, the invocation was
// rejected. It is an environment problem, not a problem with the user's code.
func LaunchFailed(cause error) *AppError {
	return &AppError{
		Err:     ErrLaunch,
		Message: "failed to launch sandbox",
		Cause:   cause,
	}
}
