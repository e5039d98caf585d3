package apiclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "fake net error" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Kind("")},
		{"classified", NewError(KindNotFound, "pncp", "gone", nil), KindNotFound},
		{"wrapped classified", fmt.Errorf("stage: %w", NewError(KindRateLimited, "pncp", "slow down", nil)), KindRateLimited},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeout},
		{"net timeout", &fakeNetError{timeout: true}, KindTimeout},
		{"net non-timeout", &fakeNetError{}, KindTransientFailure},
		{"plain error", errors.New("boom"), KindTransientFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, KindOf(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	retryable := map[Kind]bool{
		KindTransientFailure:     true,
		KindRateLimited:          true,
		KindTimeout:              true,
		KindInvalidRequest:       false,
		KindAuthenticationFailed: false,
		KindNotFound:             false,
		KindCircuitOpen:          false,
		KindCancelled:            false,
		KindInternalError:        false,
	}
	for kind, want := range retryable {
		assert.Equal(t, want, kind.Retryable(), "kind %s", kind)
	}
}

func TestFallbackEligible(t *testing.T) {
	eligible := map[Kind]bool{
		KindTimeout:              true,
		KindCircuitOpen:          true,
		KindTransientFailure:     true,
		KindRateLimited:          false,
		KindInvalidRequest:       false,
		KindAuthenticationFailed: false,
		KindNotFound:             false,
		KindCancelled:            false,
		KindInternalError:        false,
	}
	for kind, want := range eligible {
		assert.Equal(t, want, kind.FallbackEligible(), "kind %s", kind)
	}
}

func TestErrorFormatting(t *testing.T) {
	withEndpoint := NewError(KindTimeout, "tce-sp", "deadline exceeded", nil)
	assert.Equal(t, "tce-sp: timeout: deadline exceeded", withEndpoint.Error())

	bare := NewError(KindInternalError, "", "panic recovered", nil)
	assert.Equal(t, "internal_error: panic recovered", bare.Error())
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewError(KindTransientFailure, "pncp", "call failed", cause)
	assert.ErrorIs(t, err, cause)
}

func TestRetryAfterOf(t *testing.T) {
	e := NewError(KindRateLimited, "pncp", "slow down", nil)
	e.RetryAfter = 30 * time.Second

	assert.Equal(t, 30*time.Second, RetryAfterOf(fmt.Errorf("wrapped: %w", e)))
	assert.Zero(t, RetryAfterOf(errors.New("plain")))
	assert.Zero(t, RetryAfterOf(nil))
}
