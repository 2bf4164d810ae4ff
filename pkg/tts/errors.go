package tts

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("tts: API key required")

	// ErrNoAudioURL is returned when synthesis succeeded without an audio URL.
	ErrNoAudioURL = errors.New("tts: response has no audio URL")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("tts: stream closed")
)

// APIError represents an error response from a TTS API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code from the API (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts [%s]: API error %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// SynthesisError wraps any failure of a synthesis call or stream dial.
type SynthesisError struct {
	Provider string
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *SynthesisError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tts [%s]: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("tts [%s]: %s: %v", e.Provider, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &SynthesisError{Provider: provider, Reason: reason, Err: err}
}

// ProtocolError reports a stream that broke its framing contract: it closed
// before the final marker, or sent a frame that could not be decoded.
type ProtocolError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return "tts stream: " + e.Reason
	}
	return fmt.Sprintf("tts stream: %s: %v", e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}
