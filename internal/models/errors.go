package models

import "fmt"

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Expected race outcomes of concurrent resolution. Callers treat these as
// no-ops and acknowledge the actor informationally; they are never surfaced
// as system errors.
var (
	// ErrUnknownChallenge is returned when a response references a challenge
	// that was already resolved or never existed.
	ErrUnknownChallenge = &AppError{
		Code:    "UNKNOWN_CHALLENGE",
		Message: "challenge already resolved or unknown",
	}

	// ErrNotAPendingParticipant is returned when the responding identity is
	// not in the challenge's pending set.
	ErrNotAPendingParticipant = &AppError{
		Code:    "NOT_A_PENDING_PARTICIPANT",
		Message: "responder is not a pending participant of this challenge",
	}

	// ErrUnknownOrResolvedCase is returned when a decision references a
	// moderation case that has no pending entry.
	ErrUnknownOrResolvedCase = &AppError{
		Code:    "UNKNOWN_OR_RESOLVED_CASE",
		Message: "moderation case already decided or unknown",
	}
)

// NewValidationError returns an AppError for invalid input.
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// NewInternalError wraps an unexpected error.
func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "internal error",
		Err:     err,
	}
}
