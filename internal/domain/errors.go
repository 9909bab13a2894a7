package domain

import (
	"errors"
	"fmt"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrCodeInvalidInput        = "INVALID_INPUT"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeRegistryUnavailable = "REGISTRY_UNAVAILABLE"
	ErrCodeNoResults           = "NO_RESULTS"
	ErrCodeRateLimit           = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer      = "INTERNAL_SERVER_ERROR"
)

// Pipeline failure sentinels. Callers distinguish them with errors.Is.
var (
	// ErrUpstreamUnavailable means a registry request failed, timed out or was
	// short-circuited by an open breaker.
	ErrUpstreamUnavailable = errors.New("trial registry temporarily unavailable")
	// ErrNoResults means the registry answered but nothing relevant survived filtering.
	ErrNoResults = errors.New("no relevant trials found")
	// ErrNarrativeUnavailable means the text generator failed or is not configured.
	ErrNarrativeUnavailable = errors.New("narrative generator unavailable")
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ErrorCode classifies err into one of the API error codes.
func ErrorCode(err error) string {
	var validationErr *ValidationError
	var apiErr *APIError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &validationErr):
		return ErrCodeValidation
	case errors.Is(err, ErrUpstreamUnavailable):
		return ErrCodeRegistryUnavailable
	case errors.Is(err, ErrNoResults):
		return ErrCodeNoResults
	default:
		return ErrCodeInternalServer
	}
}
