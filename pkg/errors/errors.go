package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers can choose retry and fallback policy
// without parsing messages.
type Kind string

const (
	KindNetwork    Kind = "NETWORK"
	KindServer     Kind = "SERVER"
	KindCache      Kind = "CACHE"
	KindAuth       Kind = "AUTH"
	KindValidation Kind = "VALIDATION"
)

// Failure provides a structured error that can be rendered to API consumers.
// Message is stable and user-facing; Internal carries the cause for logging.
type Failure struct {
	Kind       Kind   `json:"kind"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}

	if f.Internal != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Internal)
	}

	return f.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.Internal
}

// WithInternal returns a copy of the Failure with an attached internal error.
func (f *Failure) WithInternal(err error) *Failure {
	if f == nil {
		return nil
	}

	cpy := *f
	cpy.Internal = err
	return &cpy
}

// Common failures exposed to the rest of the application. Messages are part
// of the API contract and must not change between releases.
var (
	ErrOffline = &Failure{
		Kind:       KindNetwork,
		Message:    "No internet connection",
		StatusCode: http.StatusServiceUnavailable,
	}

	ErrNoUserData = &Failure{
		Kind:       KindCache,
		Message:    "No user data available",
		StatusCode: http.StatusInternalServerError,
	}

	ErrNotAuthenticated = &Failure{
		Kind:       KindAuth,
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidCredentials = &Failure{
		Kind:       KindAuth,
		Message:    "Invalid username or password",
		StatusCode: http.StatusUnauthorized,
	}
)

// New builds a failure with the provided metadata.
func New(kind Kind, message string, statusCode int) *Failure {
	return &Failure{
		Kind:       kind,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Unexpected turns any error into a server failure with the standard
// user-facing message.
func Unexpected(err error) *Failure {
	detail := "unknown"
	if err != nil {
		detail = err.Error()
	}

	return &Failure{
		Kind:       KindServer,
		Message:    "Unexpected error: " + detail,
		StatusCode: http.StatusBadGateway,
		Internal:   err,
	}
}

// NewValidation wraps input validation problems with a helpful message.
func NewValidation(message string) *Failure {
	return &Failure{
		Kind:       KindValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// FromError converts a generic error into a Failure, defaulting to Unexpected.
func FromError(err error) *Failure {
	if err == nil {
		return nil
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	return Unexpected(err)
}

// KindOf reports the failure kind carried by err, or KindServer when err is
// not a Failure.
func KindOf(err error) Kind {
	if failure := FromError(err); failure != nil {
		return failure.Kind
	}
	return KindServer
}
