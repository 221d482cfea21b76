package domain

import (
	"fmt"
	"net/http"
)

// Kind classifies a relay failure.
type Kind string

const (
	KindValidation           Kind = "validation_error"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindOriginForbidden      Kind = "origin_forbidden"
	KindNotFound             Kind = "not_found"
	KindRateLimited          Kind = "rate_limited"
	KindAuth                 Kind = "auth_error"
	KindUpstreamNonRetryable Kind = "upstream_non_retryable"
	KindUpstreamExhausted    Kind = "upstream_exhausted"
	KindStreamInterrupted    Kind = "stream_error"
	KindInternal             Kind = "internal_error"
)

// RelayError is a classified pipeline failure. Message is safe to return to
// the caller; Err carries the underlying cause for logs and audit detail.
type RelayError struct {
	Kind    Kind
	Message string
	Timeout bool
	Err     error
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *RelayError) Unwrap() error { return e.Err }

// HTTPStatus maps the error kind onto the pre-stream HTTP status.
func (e *RelayError) HTTPStatus() int {
	switch e.Kind {
	case KindValidation, KindPayloadTooLarge:
		return http.StatusBadRequest
	case KindOriginForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindAuth, KindUpstreamNonRetryable, KindUpstreamExhausted:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Detail returns the underlying cause as a string, for audit records.
func (e *RelayError) Detail() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Errf builds a RelayError wrapping an underlying cause.
func Errf(kind Kind, err error, format string, args ...any) *RelayError {
	return &RelayError{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
