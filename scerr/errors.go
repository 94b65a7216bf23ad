// Package scerr defines the error taxonomy shared across session-core.
package scerr

import (
	"errors"
	"fmt"
)

// Code identifies one of the fixed error kinds the core can surface.
type Code string

const (
	MalformedIdentifier    Code = "MALFORMED_IDENTIFIER"
	SessionIsolationError  Code = "SESSION_ISOLATION_ERROR"
	SessionLifecycleError  Code = "SESSION_LIFECYCLE_ERROR"
	ConnectionAcquireError Code = "CONNECTION_ACQUIRE_ERROR"
	CircuitBreakerOpen     Code = "CIRCUIT_BREAKER_OPEN"
	CircuitBreakerHalfOpen Code = "CIRCUIT_BREAKER_HALF_OPEN"
	CircuitBreakerTimeout  Code = "CIRCUIT_BREAKER_TIMEOUT"
	AuthUnavailable        Code = "AUTH_UNAVAILABLE"
	// LoggingFieldMismatch is never constructed at runtime. It names the
	// contract enforced statically by sessionmetrics' single canonical
	// struct and its field-set test.
	LoggingFieldMismatch Code = "LOGGING_FIELD_MISMATCH"
)

// httpStatus gives each kind a typical HTTP status class for adapters.
var httpStatus = map[Code]int{
	MalformedIdentifier:    400,
	SessionIsolationError:  500,
	SessionLifecycleError:  500,
	ConnectionAcquireError: 503,
	CircuitBreakerOpen:     503,
	CircuitBreakerHalfOpen: 503,
	CircuitBreakerTimeout:  504,
	AuthUnavailable:        503,
	LoggingFieldMismatch:   500,
}

// Error is the core's error type. Every error path carries enough
// correlation data for a caller to trace it back to a session/request.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	SessionID  string
	UserID     string
	RequestID  string
	Breaker    string
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err is a *Error carrying the given code.
func Is(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

func newError(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatus[code], Err: cause}
}

// WithSession attaches correlation fields and returns the same error.
func (e *Error) WithSession(sessionID, userID, requestID string) *Error {
	e.SessionID = sessionID
	e.UserID = userID
	e.RequestID = requestID
	return e
}

// WithBreaker attaches a breaker name and returns the same error.
func (e *Error) WithBreaker(name string) *Error {
	e.Breaker = name
	return e
}

func Malformed(message string) *Error {
	return newError(MalformedIdentifier, message, nil)
}

func Isolation(message string) *Error {
	return newError(SessionIsolationError, message, nil)
}

func Lifecycle(message string) *Error {
	return newError(SessionLifecycleError, message, nil)
}

func ConnectionAcquire(cause error) *Error {
	return newError(ConnectionAcquireError, "could not acquire a connection from the provider", cause)
}

func BreakerOpen(name string) *Error {
	return newError(CircuitBreakerOpen, "circuit breaker is open", nil).WithBreaker(name)
}

func BreakerHalfOpen(name string) *Error {
	return newError(CircuitBreakerHalfOpen, "half-open probe concurrency exceeded", nil).WithBreaker(name)
}

func BreakerTimeout(name string) *Error {
	return newError(CircuitBreakerTimeout, "call exceeded its deadline", nil).WithBreaker(name)
}

func AuthUnavail(cause error) *Error {
	return newError(AuthUnavailable, "auth service unreachable and no cached verdict", cause)
}
