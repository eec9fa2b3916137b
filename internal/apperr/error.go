// Package apperr defines the error taxonomy shared by every agent and
// external-service adapter in the coordinator. Agents return (result, *Error)
// at their boundary; only the coordinator decides whether a given Kind is
// fatal to the request or degradable into a missing optional field.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how the coordinator and retry layer must treat
// it, independent of which external collaborator produced it.
type Kind string

const (
	// Configuration: a required key is absent. Never retried.
	Configuration Kind = "configuration"
	// UpstreamAuth: 401/403 from any external service. Fail fast.
	UpstreamAuth Kind = "upstream_auth"
	// UpstreamTransient: 5xx, 429, or network failure. Retried with backoff.
	UpstreamTransient Kind = "upstream_transient"
	// UpstreamFatal: 4xx other than auth/rate. Not retried.
	UpstreamFatal Kind = "upstream_fatal"
	// ParseError: JSON unrepairable after the gateway's repair attempts.
	ParseError Kind = "parse_error"
	// Timeout: a request- or stage-level deadline was exceeded.
	Timeout Kind = "timeout"
	// LogicError: an invariant was violated (e.g. budget_min > budget_max).
	LogicError Kind = "logic_error"
)

// Error is the single structured error type threaded through every
// component. Message is always safe to show to an end user; Cause carries
// the underlying error for logs only.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	Retryable  bool
	Provider   string
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind with a default HTTP status and
// retryability inferred from the kind; both can be overridden with the
// With* helpers.
func New(kind Kind, message string) *Error {
	return &Error{
		Kind:       kind,
		Message:    message,
		HTTPStatus: defaultHTTPStatus(kind),
		Retryable:  defaultRetryable(kind),
	}
}

func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func defaultHTTPStatus(kind Kind) int {
	switch kind {
	case Configuration:
		return http.StatusInternalServerError
	case UpstreamAuth:
		return http.StatusUnauthorized
	case UpstreamTransient:
		return http.StatusBadGateway
	case UpstreamFatal:
		return http.StatusBadGateway
	case ParseError:
		return http.StatusUnprocessableEntity
	case Timeout:
		return http.StatusGatewayTimeout
	case LogicError:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func defaultRetryable(kind Kind) bool {
	return kind == UpstreamTransient
}

// FromHTTPStatus classifies a response status from an external collaborator
// into the taxonomy above. Used by C1-C4 and the telephony client so every
// adapter agrees on auth vs. rate vs. fatal vs. transient.
func FromHTTPStatus(provider string, status int, body string) *Error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return New(UpstreamAuth, "authentication failed").
			WithProvider(provider).WithHTTPStatus(status).WithRetryable(false)
	case status == http.StatusTooManyRequests:
		return New(UpstreamTransient, "rate limited").
			WithProvider(provider).WithHTTPStatus(status).WithRetryable(true)
	case status >= 500:
		return New(UpstreamTransient, "upstream server error").
			WithProvider(provider).WithHTTPStatus(status).WithRetryable(true).
			WithCause(errors.New(body))
	case status >= 400:
		return New(UpstreamFatal, "upstream rejected the request").
			WithProvider(provider).WithHTTPStatus(status).WithRetryable(false).
			WithCause(errors.New(body))
	default:
		return nil
	}
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsRetryable reports whether err should be retried by the caller's backoff
// policy. Non-*Error values are treated as non-retryable by default; network
// errors reaching this point have typically already been wrapped as
// UpstreamTransient by the HTTP layer.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// AsError extracts an *Error from err, or builds a generic UpstreamFatal
// wrapping it when err is not already one of ours.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(UpstreamFatal, err.Error()).WithCause(err)
}
