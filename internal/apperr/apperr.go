// Package apperr defines the error taxonomy shared across components.
//
// Components wrap errors with a Kind so the HTTP boundary can translate them
// to a status code in exactly one place. Internals never map to HTTP
// themselves; they only attach kind, component, and detail context.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for boundary translation.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindAuth
	KindForbidden
	KindNotFound
	KindValidation
	KindExternalService
	KindVectorDB
	KindLLM
	KindRateLimit
)

// String returns the lowercase kind name used in logs and responses.
func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAuth:
		return "authentication"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	case KindExternalService:
		return "external_service"
	case KindVectorDB:
		return "vector_db"
	case KindLLM:
		return "llm"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a kind to the status code emitted at the API boundary.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindConfiguration:
		return http.StatusInternalServerError
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindExternalService:
		return http.StatusBadGateway
	case KindVectorDB:
		return http.StatusServiceUnavailable
	case KindLLM:
		return http.StatusBadGateway
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind, the originating component, and a wrapped cause.
type Error struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Component, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Component, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates an Error without a cause.
func New(kind Kind, component, message string) *Error {
	return &Error{Kind: kind, Component: component, Message: message}
}

// Wrap attaches kind and component context to err. Returns nil when err is nil.
func Wrap(kind Kind, component, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Component: component, Message: message, Err: err}
}

// KindOf extracts the kind from err, walking the wrap chain. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
