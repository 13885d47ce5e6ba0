package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidScope      = errors.New("invalid scope")
	ErrEmptyPrompt       = errors.New("prompt is required")
	ErrProviderTimeout   = errors.New("provider call timed out")
	ErrCloneFailed       = errors.New("repository clone failed")
	ErrMissingCredential = errors.New("missing provider credential")
	ErrJobNotFound       = errors.New("job not found")
	ErrScopeCollision    = errors.New("collection name already bound to another scope")
)

// ValidationError reports a missing or malformed request field.
// Its message is safe to return to clients.
type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid is shorthand for a ValidationError without an underlying sentinel.
func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// ProviderErrorKind classifies failures from the embedding and generative providers.
type ProviderErrorKind string

const (
	ProviderAuth        ProviderErrorKind = "auth"
	ProviderRateLimit   ProviderErrorKind = "rate_limit"
	ProviderTimeout     ProviderErrorKind = "timeout"
	ProviderTransport   ProviderErrorKind = "transport"
	ProviderBadResponse ProviderErrorKind = "bad_response"
)

// ProviderError wraps a failed outbound call to an embedding or generative provider.
type ProviderError struct {
	Provider   string
	Op         string
	Kind       ProviderErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: %s (status %d): %v", e.Provider, e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Provider, e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrProviderTimeout) match timeout-kind provider errors.
func (e *ProviderError) Is(target error) bool {
	return target == ErrProviderTimeout && e.Kind == ProviderTimeout
}

// NewProviderError classifies err. A non-zero status code takes precedence over
// the error value; deadline expiry is always reported as a timeout.
func NewProviderError(provider, op string, status int, err error) *ProviderError {
	kind := ProviderTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ProviderTimeout
	case status != 0:
		kind = KindForStatus(status)
	}
	return &ProviderError{Provider: provider, Op: op, Kind: kind, StatusCode: status, Err: err}
}

// KindForStatus maps an upstream HTTP status to a provider error kind.
func KindForStatus(status int) ProviderErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ProviderAuth
	case status == http.StatusTooManyRequests:
		return ProviderRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return ProviderTimeout
	case status >= 400 && status < 500:
		return ProviderBadResponse
	default:
		return ProviderTransport
	}
}

// HTTPStatus maps an error to the status code returned at the request boundary.
func HTTPStatus(err error) int {
	var verr *ValidationError
	var perr *ProviderError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &perr), errors.Is(err, ErrCloneFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err.
// Provider and internal failures never expose their cause.
func PublicMessage(err error) string {
	var verr *ValidationError
	var perr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.Error()
	case errors.Is(err, ErrJobNotFound):
		return "Job not found."
	case errors.Is(err, ErrProviderTimeout), errors.Is(err, context.DeadlineExceeded):
		return "The language model provider timed out. Please try again."
	case errors.As(err, &perr):
		if perr.Kind == ProviderRateLimit {
			return "The language model provider is rate limiting requests. Please try again shortly."
		}
		return "The language model provider is unavailable. Please try again."
	default:
		return "An internal error occurred."
	}
}
