package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Error kinds shared by the catalog client, the view and the HTTP layer.
// APIError wraps exactly one of them; match with errors.Is.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRateLimited    = errors.New("rate limited")
)

// APIError is a storefront failure as shown to REST and MCP clients:
// a stable code, a message safe to display, and the HTTP status it maps to.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the same call may succeed.
// Upstream and rate-limit failures are transient; not-found and validation are not.
func (e *APIError) Retryable() bool {
	return errors.Is(e.Err, ErrUpstreamError) || errors.Is(e.Err, ErrRateLimited)
}

// NewNotFoundError reports that resource does not exist. The catalog
// answers 404 when a search matches nothing, which the view treats as an
// empty result; cart operations use it for unknown product ids.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError rejects a request field, e.g. a negative quantity.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewUpstreamError reports a failed call to the catalog service. The
// view keeps showing its last product list and the call may be retried.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewInternalError hides an unexpected error behind a generic message.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewRateLimitError reports that the catalog service throttled us (HTTP 429).
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// IsNotFound reports whether err signals an empty result rather than a failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
