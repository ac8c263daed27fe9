package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound     = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden    = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict     = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation   = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal     = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss    = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Scan-path errors. Each maps to a distinct failure mode of recordScan so
// clients can show an actionable message and offer a retry where it helps.
var (
	ErrNotEnrolled           = New("NOT_ENROLLED", http.StatusForbidden, "you are not enrolled in this group")
	ErrSessionNotActive      = New("SESSION_NOT_ACTIVE", http.StatusConflict, "the session is no longer active")
	ErrRoundNotActive        = New("ROUND_NOT_ACTIVE", http.StatusConflict, "the attendance round is not active")
	ErrGeofenceMisconfigured = New("GEOFENCE_MISCONFIGURED", http.StatusInternalServerError, "geofence is misconfigured for this round")
	ErrLocationRequired      = New("LOCATION_REQUIRED", http.StatusBadRequest, "location is required for this round")
	ErrOutsideGeofence       = New("OUTSIDE_GEOFENCE", http.StatusForbidden, "you are outside the allowed area")
	ErrInvalidToken          = New("INVALID_TOKEN", http.StatusUnauthorized, "invalid attendance code")
	ErrTokenExpired          = New("TOKEN_EXPIRED", http.StatusGone, "code expired, scan again")
	ErrTokenAlreadyConsumed  = New("TOKEN_ALREADY_CONSUMED", http.StatusConflict, "code already used, scan the new one")
	ErrAlreadyRecorded       = New("ALREADY_RECORDED", http.StatusConflict, "attendance already recorded for this round")
	ErrDuplicateOfflineScan  = New("DUPLICATE_OFFLINE_SCAN", http.StatusConflict, "this scan was already synced")
	ErrInvalidPolicyRules    = New("INVALID_POLICY_RULES", http.StatusBadRequest, "invalid policy rules")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
