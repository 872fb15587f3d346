// Package errors defines unified error types for chat and storage operations.
// Failures are classified at their point of origin (the Bedrock client or the
// conversation store) into these types; upper layers branch on the
// classification without reinterpreting causes.
package errors

import (
	"fmt"
	"net/http"
	"strings"
)

// ChatError is a classified failure carrying everything needed for failover
// decisions, logging, and the client response.
type ChatError struct {
	StatusCode int      `json:"status_code"`
	Type       string   `json:"type"`
	Message    string   `json:"message"`
	Region     string   `json:"region,omitempty"`
	Regions    []string `json:"regions,omitempty"`
	Retryable  bool     `json:"-"`
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("[%s] %s (region=%s, code=%d)", e.Type, e.Message, e.Region, e.StatusCode)
	}
	return fmt.Sprintf("[%s] %s (code=%d)", e.Type, e.Message, e.StatusCode)
}

// HTTPStatusCode returns the status code to surface to the HTTP layer.
func (e *ChatError) HTTPStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// Error type constants. Throttled and AccessDenied are the only retryable
// kinds: both may be specific to one region, so the dispatcher fails them
// over to the next configured region.
const (
	TypeThrottled        = "throttling_error"
	TypeAccessDenied     = "access_denied_error"
	TypeInvalidRequest   = "invalid_request_error"
	TypeBackend          = "backend_error"
	TypeRegionsExhausted = "regions_exhausted_error"
	TypeStorage          = "storage_error"
	TypeInternal         = "internal_error"
)

// NewThrottledError creates a throttling error (429) for one region.
func NewThrottledError(region, message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusTooManyRequests,
		Type:       TypeThrottled,
		Message:    message,
		Region:     region,
		Retryable:  true,
	}
}

// NewAccessDeniedError creates an access-denied error (403) for one region.
// Access grants can differ per region, so this is retried like throttling.
func NewAccessDeniedError(region, message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusForbidden,
		Type:       TypeAccessDenied,
		Message:    message,
		Region:     region,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates an invalid-request error (400). The request
// itself is malformed, so no region can serve it and no retry happens.
func NewInvalidRequestError(region, message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusBadRequest,
		Type:       TypeInvalidRequest,
		Message:    message,
		Region:     region,
		Retryable:  false,
	}
}

// NewBackendError creates a backend error (500) for an unclassified upstream
// failure. Not retried: the condition is assumed not to be region-specific.
func NewBackendError(region, message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusInternalServerError,
		Type:       TypeBackend,
		Message:    message,
		Region:     region,
		Retryable:  false,
	}
}

// NewRegionsExhaustedError creates the terminal rate-limited error (429)
// returned once every configured region has been attempted without success.
// The message names every region tried.
func NewRegionsExhaustedError(regions []string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusTooManyRequests,
		Type:       TypeRegionsExhausted,
		Message: fmt.Sprintf("all %d regions throttled, wait before retrying (regions tried: %s)",
			len(regions), strings.Join(regions, ", ")),
		Regions:   regions,
		Retryable: false,
	}
}

// NewStorageError creates a storage error (500) for any non-NotFound failure
// of the conversation store.
func NewStorageError(backend, op, message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusInternalServerError,
		Type:       TypeStorage,
		Message:    fmt.Sprintf("%s %s: %s", backend, op, message),
		Retryable:  false,
	}
}

// NewInternalError creates a generic internal error (500) for failures no
// component classified.
func NewInternalError(message string) *ChatError {
	return &ChatError{
		StatusCode: http.StatusInternalServerError,
		Type:       TypeInternal,
		Message:    message,
		Retryable:  false,
	}
}
