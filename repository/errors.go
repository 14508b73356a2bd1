// Package repository is the data-access layer over the MongoDB connection
// manager. Unlike the cache and rate-limit layers, persistence failures are
// meaningful to the request outcome, so they surface as one typed error
// family instead of being swallowed.
package repository

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("repository: analysis not found")

// Machine-readable codes carried by StoreError.
const (
	CodeUnavailable = "STORE_UNAVAILABLE"
	CodeTimeout     = "STORE_TIMEOUT"
	CodeInternal    = "STORE_ERROR"
)

// StoreError is the single error shape callers handle for any document-store
// failure. Code is machine-readable and Status maps directly onto an HTTP
// response.
type StoreError struct {
	Code   string
	Status int
	Err    error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewUnavailable marks the document store as unreachable (503).
func NewUnavailable(err error) *StoreError {
	return &StoreError{Code: CodeUnavailable, Status: http.StatusServiceUnavailable, Err: err}
}

// NewTimeout marks a document-store call that exceeded its deadline (504).
func NewTimeout(err error) *StoreError {
	return &StoreError{Code: CodeTimeout, Status: http.StatusGatewayTimeout, Err: err}
}

// NewInternal wraps any other document-store failure (500).
func NewInternal(err error) *StoreError {
	return &StoreError{Code: CodeInternal, Status: http.StatusInternalServerError, Err: err}
}
