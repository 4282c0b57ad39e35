// Package errors defines the domain error type shared by the engine, the stores and the API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind is the category of a domain error.
type Kind string

const (
	KindNotFound      Kind = "NOT_FOUND"
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindUnavailable   Kind = "SERVICE_UNAVAILABLE"
	KindValidation    Kind = "VALIDATION_ERROR"
	KindInternal      Kind = "INTERNAL_ERROR"
)

// DomainError carries a kind, a stable code and an optional cause.
type DomainError struct {
	Kind    Kind           `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

// New creates a domain error.
func New(kind Kind, code, message string) *DomainError {
	return &DomainError{Kind: kind, Code: code, Message: message}
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches another DomainError with the same kind and code. An empty code on the
// target matches any code of that kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Code == "" || e.Code == t.Code
}

// WithCause attaches a cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail entry.
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels usable with errors.Is to test only the kind.
var (
	ErrNotFound      = &DomainError{Kind: KindNotFound}
	ErrConfiguration = &DomainError{Kind: KindConfiguration}
	ErrUnavailable   = &DomainError{Kind: KindUnavailable}
	ErrValidation    = &DomainError{Kind: KindValidation}
)

func NotFound(code, format string, args ...any) *DomainError {
	return New(KindNotFound, code, fmt.Sprintf(format, args...))
}

func Configuration(code, format string, args ...any) *DomainError {
	return New(KindConfiguration, code, fmt.Sprintf(format, args...))
}

func Validation(code, format string, args ...any) *DomainError {
	return New(KindValidation, code, fmt.Sprintf(format, args...))
}

// Unavailable wraps a collaborator failure.
func Unavailable(dependency string, cause error) *DomainError {
	return New(KindUnavailable, "DEPENDENCY_UNAVAILABLE", dependency+" unavailable").
		WithCause(cause).
		WithDetail("dependency", dependency)
}

func Internal(format string, args ...any) *DomainError {
	return New(KindInternal, "INTERNAL", fmt.Sprintf(format, args...))
}

// KindOf returns the kind of the first DomainError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error to the response status the API returns for it.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindConfiguration:
		return http.StatusUnprocessableEntity
	case KindUnavailable:
		return http.StatusServiceUnavailable
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
