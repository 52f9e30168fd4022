// Package api implements the gateway's HTTP surface (§6): handlers, the
// canonical error envelope, and request middleware.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorCode is one of spec.md §6's canonical error codes.
type ErrorCode string

const (
	CodeUnauthenticated ErrorCode = "UNAUTHENTICATED"
	CodeForbidden       ErrorCode = "FORBIDDEN"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeConflict        ErrorCode = "CONFLICT"
	CodeRateLimited     ErrorCode = "RATE_LIMITED"
	CodeRoutingError    ErrorCode = "ROUTING_ERROR"
	CodeInternal        ErrorCode = "INTERNAL"
)

// Error is the body of an {error:{code,message,details?}} envelope.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Envelope wraps Error under the top-level "error" key every non-2xx
// response uses.
type Envelope struct {
	Error Error `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var codeStatus = map[ErrorCode]int{
	CodeUnauthenticated: http.StatusUnauthorized,
	CodeForbidden:       http.StatusForbidden,
	CodeNotFound:        http.StatusNotFound,
	CodeValidationError: http.StatusBadRequest,
	CodeConflict:        http.StatusConflict,
	CodeRateLimited:     http.StatusTooManyRequests,
	CodeRoutingError:    http.StatusUnprocessableEntity,
	CodeInternal:        http.StatusInternalServerError,
}

// WriteError writes the canonical {error:{code,message,details?}} envelope.
func WriteError(w http.ResponseWriter, code ErrorCode, message string, details any) {
	status, ok := codeStatus[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Error: Error{Code: code, Message: message, Details: details}})
}

// WriteUnauthorized writes a 401 UNAUTHENTICATED error.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "authentication required"
	}
	WriteError(w, CodeUnauthenticated, message, nil)
}

// WriteForbidden writes a 403 FORBIDDEN error.
func WriteForbidden(w http.ResponseWriter, message string) {
	if message == "" {
		message = "insufficient capability"
	}
	WriteError(w, CodeForbidden, message, nil)
}

// WriteNotFound writes a 404 NOT_FOUND error.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, CodeNotFound, message, nil)
}

// WriteValidationError writes a 400 VALIDATION_ERROR error with field
// details (e.g. schema violation field paths).
func WriteValidationError(w http.ResponseWriter, message string, details any) {
	WriteError(w, CodeValidationError, message, details)
}

// WriteConflict writes a 409 CONFLICT error.
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, CodeConflict, message, nil)
}

// WriteTooManyRequests writes a 429 RATE_LIMITED error with a Retry-After
// header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, CodeRateLimited, "rate limit exceeded", nil)
}

// WriteRoutingError writes a 422 ROUTING_ERROR error: no pool resolvable,
// or no active targets (§4.5 failure model).
func WriteRoutingError(w http.ResponseWriter, message string) {
	WriteError(w, CodeRoutingError, message, nil)
}

// WriteInternal writes a 500 INTERNAL error. err is logged but never
// exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, CodeInternal, "an unexpected error occurred", nil)
}

// WriteJSON writes a 2xx JSON body.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
