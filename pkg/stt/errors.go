package stt

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("stt: API key required")

	// ErrEmptyAudio is returned when the caller passes no audio.
	ErrEmptyAudio = errors.New("stt: audio is empty")

	// ErrEmptyTranscript is returned when the provider succeeded but produced no text.
	ErrEmptyTranscript = errors.New("stt: empty transcript")
)

// APIError represents an error response from a transcription API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("stt [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// TranscriptionError wraps any failure of a transcription call.
type TranscriptionError struct {
	// Provider identifies which provider failed.
	Provider string

	// Reason is a short human readable description.
	Reason string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stt [%s]: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("stt [%s]: %s: %v", e.Provider, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &TranscriptionError{Provider: provider, Reason: reason, Err: err}
}
