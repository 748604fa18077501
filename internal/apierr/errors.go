// Package apierr defines the typed failures surfaced by the request pipeline.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind is the short machine-readable name of a failure.
type Kind string

const (
	MissingCredential        Kind = "MissingCredential"
	InvalidCredential        Kind = "InvalidCredential"
	InactiveCredential       Kind = "InactiveCredential"
	RateLimited              Kind = "RateLimited"
	TemporarilyBlocked       Kind = "TemporarilyBlocked"
	MalformedBody            Kind = "MalformedBody"
	MissingField             Kind = "MissingField"
	InvalidField             Kind = "InvalidField"
	ReadmeNotFound           Kind = "ReadmeNotFound"
	MetadataUnavailable      Kind = "MetadataUnavailable"
	SummarizationRateLimited Kind = "SummarizationRateLimited"
	SummarizationFailed      Kind = "SummarizationFailed"
	StoreUnavailable         Kind = "StoreUnavailable"
	NotFound                 Kind = "NotFound"
	UnexpectedFailure        Kind = "UnexpectedFailure"
)

var statusByKind = map[Kind]int{
	MissingCredential:        http.StatusBadRequest,
	MalformedBody:            http.StatusBadRequest,
	MissingField:             http.StatusBadRequest,
	InvalidField:             http.StatusBadRequest,
	InvalidCredential:        http.StatusUnauthorized,
	InactiveCredential:       http.StatusUnauthorized,
	RateLimited:              http.StatusTooManyRequests,
	TemporarilyBlocked:       http.StatusTooManyRequests,
	SummarizationRateLimited: http.StatusTooManyRequests,
	ReadmeNotFound:           http.StatusNotFound,
	NotFound:                 http.StatusNotFound,
	MetadataUnavailable:      http.StatusBadGateway,
	SummarizationFailed:      http.StatusBadGateway,
	StoreUnavailable:         http.StatusServiceUnavailable,
	UnexpectedFailure:        http.StatusInternalServerError,
}

// Status returns the HTTP status code for a kind.
func (k Kind) Status() int {
	if code, ok := statusByKind[k]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error is a typed pipeline failure.
type Error struct {
	Kind       Kind
	Message    string
	Field      string
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error.
func (e *Error) Status() int {
	return e.Kind.Status()
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind with an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Field creates a field-level validation error.
func Field(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

// Throttled creates an admission denial carrying a retry-after hint.
func Throttled(kind Kind, reason string, retryAfter time.Duration) *Error {
	msg := "Rate limit exceeded, please retry later"
	if kind == TemporarilyBlocked {
		msg = fmt.Sprintf("Temporarily blocked for repeated violations, retry in %s", retryAfter.Round(time.Second))
	}
	return &Error{Kind: kind, Message: msg, Reason: reason, RetryAfter: retryAfter}
}

// From converts any error into an *Error. Errors that are not typed become
// UnexpectedFailure so callers always receive a structured response.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(UnexpectedFailure, "An unexpected error occurred", err)
}

// IsKind reports whether err is a typed error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
