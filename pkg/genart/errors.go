package genart

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoBaseURL is returned when the service URL is missing.
	ErrNoBaseURL = errors.New("genart: base URL required")

	// ErrEmptyImage is returned when a request carries no base image.
	ErrEmptyImage = errors.New("genart: request image is empty")

	// ErrInvalidSector is returned when the target cell is off-grid.
	ErrInvalidSector = errors.New("genart: target sector outside grid")
)

// APIError represents an error response from the generation service.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Detail is the error message from the service.
	Detail string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("genart: service error %d: %s", e.StatusCode, e.Detail)
}

// IsServerError reports whether this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}
