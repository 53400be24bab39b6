// Package apperr defines the error taxonomy shared by the ingest, query and
// control surfaces. Every error that crosses the HTTP boundary is classified
// as one of the five kinds below; the httpapi layer maps kinds to status
// codes and serializes them as {error, detail} bodies.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies an error class with a fixed HTTP mapping.
type Kind string

const (
	BadRequest          Kind = "BadRequest"
	Unauthorized        Kind = "Unauthorized"
	NotFound            Kind = "NotFound"
	StorageFailure      Kind = "StorageFailure"
	UpstreamUnavailable Kind = "UpstreamUnavailable"
)

// Error carries a kind, a human-readable detail and an optional cause.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with a formatted detail message.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error, keeping it available via Unwrap.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind of a classified error. Unclassified errors
// report StorageFailure so that unexpected failures surface as 5xx.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return StorageFailure
}

// Is lets errors.Is match against a bare kind sentinel.
func Is(err error, kind Kind) bool { return KindOf(err) == kind }

// Status maps a kind to its HTTP status code.
func Status(kind Kind) int {
	switch kind {
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case UpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the outward-facing message of a classified error.
func Detail(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Detail
	}
	return err.Error()
}
