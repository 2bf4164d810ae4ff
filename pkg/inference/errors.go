package inference

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when API key is required but missing.
	ErrNoAPIKey = errors.New("inference: API key required")

	// ErrEmptyReply is returned when the provider answered with no text.
	ErrEmptyReply = errors.New("inference: empty reply")

	// ErrProviderUnavailable is returned when a chain has no providers.
	ErrProviderUnavailable = errors.New("inference: no provider available")
)

// APIError represents an error response from an inference API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error status (if provided).
	Code string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("inference [%s]: API error %d (%s): %s",
			e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("inference [%s]: API error %d: %s",
		e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// GenerationError wraps any failure of a generation call.
type GenerationError struct {
	Provider string
	Reason   string
	Err      error
}

// Error implements the error interface.
func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("inference [%s]: %s", e.Provider, e.Reason)
	}
	return fmt.Sprintf("inference [%s]: %s: %v", e.Provider, e.Reason, e.Err)
}

// Unwrap returns the underlying error.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider, reason string, err error) error {
	if err == nil {
		return nil
	}
	return &GenerationError{Provider: provider, Reason: reason, Err: err}
}

// ChainError collects the failures of every provider in a Chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	return fmt.Sprintf("inference: all %d providers failed, last: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap exposes every provider failure to errors.Is and errors.As.
func (e *ChainError) Unwrap() []error {
	return e.Errors
}
