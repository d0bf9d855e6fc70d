package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a domain error for the transport boundary.
type ErrorKind string

const (
	KindBadRequest   ErrorKind = "Bad Request"
	KindUnauthorized ErrorKind = "Unauthorized"
	KindForbidden    ErrorKind = "Forbidden"
	KindNotFound     ErrorKind = "Not Found"
	KindConflict     ErrorKind = "Conflict"
	KindInternal     ErrorKind = "Internal Server Error"
)

// Error is a tagged domain error: a kind plus a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// NewError creates a tagged domain error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a tagged domain error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// DuplicateSubmissionError reports an idempotency conflict, carrying the
// identity of the submission that already exists.
type DuplicateSubmissionError struct {
	SubmissionID int64
	Status       string
}

func (e *DuplicateSubmissionError) Error() string {
	return "Submission already exists for this season/day/agent"
}

// KindOf extracts the error kind, defaulting to Internal for untagged errors.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	var dup *DuplicateSubmissionError
	if errors.As(err, &dup) {
		return KindConflict
	}
	return KindInternal
}

// HTTPStatus maps an error kind to its HTTP status code. The mapping is
// part of the boundary contract.
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// IsNotFound checks if an error carries the NotFound kind.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
