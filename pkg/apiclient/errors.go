// Package apiclient defines the uniform capability every registered endpoint
// implements and the classified error taxonomy the resilience and federation
// layers act on.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind classifies an outbound call failure. The resilience layer retries
// only TransientFailure, RateLimited and Timeout; the executor walks
// fallbacks only for Timeout, CircuitOpen and TransientFailure.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindAuthenticationFailed Kind = "authentication_failed"
	KindNotFound             Kind = "not_found"
	KindRateLimited          Kind = "rate_limited"
	KindTransientFailure     Kind = "transient_failure"
	KindTimeout              Kind = "timeout"
	KindCircuitOpen          Kind = "circuit_open"
	KindCancelled            Kind = "cancelled"
	KindInternalError        Kind = "internal_error"
)

// Error is a classified outbound-call error. EndpointID is the endpoint the
// call targeted; RetryAfter is set for rate-limit responses that carried a
// Retry-After header.
type Error struct {
	Kind       Kind
	EndpointID string
	Message    string
	RetryAfter time.Duration
	cause      error
}

func (e *Error) Error() string {
	if e.EndpointID != "" {
		return fmt.Sprintf("%s: %s: %s", e.EndpointID, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified error wrapping cause (which may be nil).
func NewError(kind Kind, endpointID, message string, cause error) *Error {
	return &Error{Kind: kind, EndpointID: endpointID, Message: message, cause: cause}
}

// KindOf extracts the classified kind from err. Unclassified errors map to
// TransientFailure except context errors, which map to Cancelled/Timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransientFailure
	}
	return KindTransientFailure
}

// Retryable reports whether the resilience layer may retry a call that
// failed with this kind.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransientFailure, KindRateLimited, KindTimeout:
		return true
	}
	return false
}

// FallbackEligible reports whether the executor may try a fallback endpoint
// after this kind of terminal failure.
func (k Kind) FallbackEligible() bool {
	switch k {
	case KindTimeout, KindCircuitOpen, KindTransientFailure:
		return true
	}
	return false
}

// RetryAfterOf returns the Retry-After hint carried by err, or zero.
func RetryAfterOf(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}
