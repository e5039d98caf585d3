package apiclient

import (
	"context"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// Client is the uniform capability a registered endpoint implements.
// Implementations must never panic, must honor ctx cancellation, and must
// convert protocol errors into classified *Error values.
type Client interface {
	// Invoke performs one call against the endpoint. method is the
	// capability operation; params are capability-specific.
	Invoke(ctx context.Context, method string, params map[string]any) (*models.RawResult, error)
}

// Func adapts a function to the Client interface. Used heavily in tests
// and for simple endpoint adapters.
type Func func(ctx context.Context, method string, params map[string]any) (*models.RawResult, error)

// Invoke implements Client.
func (f Func) Invoke(ctx context.Context, method string, params map[string]any) (*models.RawResult, error) {
	return f(ctx, method, params)
}
