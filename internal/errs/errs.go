// Package errs defines the error taxonomy shared across the serving pipeline.
// Every error the API layer surfaces carries a stable machine code and the
// HTTP status it maps to.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes. These appear in JSON error bodies and in terminal
// streaming events, so they must not change between releases.
const (
	CodeValidation    = "validation_error"
	CodeAdmission     = "admission_denied"
	CodeForbidden     = "forbidden"
	CodeUpstream      = "upstream_unavailable"
	CodeConfiguration = "configuration_error"
	CodeNotFound      = "not_found"
	CodeInternal      = "internal_error"
)

// Error is a classified error with a stable code and HTTP status.
type Error struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports bad or missing client input (client-fixable).
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Status: http.StatusBadRequest, Message: message}
}

// NotFound reports an absent document or game.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Status: http.StatusNotFound, Message: message}
}

// Forbidden reports a caller lacking the role a route requires.
func Forbidden(message string) *Error {
	return &Error{Code: CodeForbidden, Status: http.StatusForbidden, Message: message}
}

// Admission reports a rate-limit rejection.
func Admission(message string) *Error {
	return &Error{Code: CodeAdmission, Status: http.StatusTooManyRequests, Message: message}
}

// Upstream reports an unavailable or timed-out provider (embedding, vector
// index, or language model). Never retried inside the core.
func Upstream(message string, err error) *Error {
	return &Error{Code: CodeUpstream, Status: http.StatusBadGateway, Message: message, Err: err}
}

// Configuration reports a fatal configuration problem, such as an embedding
// dimension mismatch. Not recoverable per request.
func Configuration(message string, err error) *Error {
	return &Error{Code: CodeConfiguration, Status: http.StatusInternalServerError, Message: message, Err: err}
}

// CodeOf returns the stable code for err, or CodeInternal for unclassified
// errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// StatusOf returns the HTTP status for err, or 500 for unclassified errors.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// MessageOf returns the user-facing message for err. Unclassified errors are
// reported verbatim.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
