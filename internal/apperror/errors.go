// Package apperror provides domain-specific error types for the portal API.
// These errors carry an HTTP status code, a machine-readable type and a
// user-safe message. The Echo error handler maps them to JSON responses.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types. Clients branch on these values, so they are part of the API.
const (
	TypeBadRequest            = "bad_request"
	TypeValidation            = "validation_error"
	TypeNotFound              = "not_found"
	TypeConflict              = "conflict"
	TypeUnauthorized          = "unauthorized"
	TypeForbidden             = "forbidden"
	TypeInvalidCredentials    = "invalid_credentials"
	TypeEmailNotVerified      = "email_not_verified"
	TypeInvalidOrExpiredCode  = "invalid_or_expired_code"
	TypeInvalidOrExpiredToken = "invalid_or_expired_token"
	TypeTooManyAttempts       = "too_many_attempts"
	TypeInvalidToken          = "invalid_token"
	TypeStaleSession          = "stale_session"
	TypeInternal              = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Meta holds extra client-safe fields merged into the JSON body
	// (e.g., retry_after_minutes on lockouts).
	Meta map[string]any `json:"-"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

// WithMeta returns the error with an extra response field attached.
func (e *AppError) WithMeta(key string, value any) *AppError {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// New creates an AppError with an explicit code and type.
func New(code int, errType, message string) *AppError {
	return &AppError{
		Code:    code,
		Type:    errType,
		Message: message,
	}
}

// --- Constructors for common error types ---

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return New(http.StatusNotFound, TypeNotFound, message)
}

// NewBadRequest creates a 400 Bad Request error.
func NewBadRequest(message string) *AppError {
	return New(http.StatusBadRequest, TypeBadRequest, message)
}

// NewValidation creates a 400 error for malformed input. The caller can
// always recover by correcting the submitted data.
func NewValidation(message string) *AppError {
	return New(http.StatusBadRequest, TypeValidation, message)
}

// NewUnauthorized creates a 401 Unauthorized error.
func NewUnauthorized(message string) *AppError {
	return New(http.StatusUnauthorized, TypeUnauthorized, message)
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return New(http.StatusForbidden, TypeForbidden, message)
}

// NewConflict creates a 409 Conflict error.
func NewConflict(message string) *AppError {
	return New(http.StatusConflict, TypeConflict, message)
}

// NewTooManyAttempts creates a 429 error for an active lockout window. The
// remaining minutes are exposed to the client as retry_after_minutes.
func NewTooManyAttempts(minutes int) *AppError {
	return New(http.StatusTooManyRequests, TypeTooManyAttempts,
		fmt.Sprintf("Too many attempts. Try again in ~%dm.", minutes),
	).WithMeta("retry_after_minutes", minutes)
}

// --- Credential lifecycle errors ---

// NewInvalidCredentials is the single login failure for both an unknown
// email and a wrong password.
func NewInvalidCredentials() *AppError {
	return New(http.StatusUnauthorized, TypeInvalidCredentials, "Invalid credentials")
}

// NewEmailNotVerified tells the client to route to the verification screen.
func NewEmailNotVerified() *AppError {
	return New(http.StatusForbidden, TypeEmailNotVerified, "Email not verified").
		WithMeta("verify_required", true)
}

// NewInvalidOrExpiredCode covers a wrong, expired or unknown verification
// code without saying which.
func NewInvalidOrExpiredCode() *AppError {
	return New(http.StatusBadRequest, TypeInvalidOrExpiredCode, "Invalid or expired code")
}

// NewInvalidOrExpiredToken covers a wrong, expired or used reset token
// without saying which.
func NewInvalidOrExpiredToken() *AppError {
	return New(http.StatusBadRequest, TypeInvalidOrExpiredToken, "Invalid or expired token")
}

// NewInvalidToken is returned for a malformed, tampered or expired session
// credential.
func NewInvalidToken() *AppError {
	return New(http.StatusUnauthorized, TypeInvalidToken, "Invalid or expired session")
}

// NewStaleSession is returned when a credential was revoked by a session
// epoch bump or its account no longer exists.
func NewStaleSession() *AppError {
	return New(http.StatusUnauthorized, TypeStaleSession, "Session is no longer valid. Please log in again.")
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// IsType reports whether err is an AppError of the given type.
func IsType(err error, errType string) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return appErr.Type == errType
}

// IsNotFound reports whether err is a 404 AppError.
func IsNotFound(err error) bool {
	return IsType(err, TypeNotFound)
}

// SafeMessage returns the client-safe error message from an error. If the
// error is an AppError, returns its Message field (which is safe to expose).
// For any other error type, returns a generic message to prevent leaking
// internal details like table names, query structure, or stack traces.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
