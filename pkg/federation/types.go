// Package federation executes a plan over the federated API registry:
// dependency-driven scheduling across stages, bounded concurrency, fallback
// walking, partial-failure accounting, and progress events.
package federation

import (
	"errors"
	"fmt"
	"time"

	"github.com/transparencia-br/fiscal/pkg/apiclient"
)

// ClientRegistry resolves the capability client for an endpoint. Per-API
// client modules register here; the executor never builds clients itself.
type ClientRegistry interface {
	ClientFor(endpointID string) (apiclient.Client, bool)
}

// StaticClients is a fixed endpoint-to-client table.
type StaticClients map[string]apiclient.Client

// ClientFor implements ClientRegistry.
func (s StaticClients) ClientFor(endpointID string) (apiclient.Client, bool) {
	c, ok := s[endpointID]
	return c, ok
}

// Config bounds the executor. Zero values fall back to the documented
// defaults.
type Config struct {
	MaxInFlightStages        int
	MaxInFlightPerEndpoint   int
	DefaultStageTimeout      time.Duration
	DefaultInvocationTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxInFlightStages:        8,
		MaxInFlightPerEndpoint:   4,
		DefaultStageTimeout:      30 * time.Second,
		DefaultInvocationTimeout: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxInFlightStages <= 0 {
		c.MaxInFlightStages = d.MaxInFlightStages
	}
	if c.MaxInFlightPerEndpoint <= 0 {
		c.MaxInFlightPerEndpoint = d.MaxInFlightPerEndpoint
	}
	if c.DefaultStageTimeout <= 0 {
		c.DefaultStageTimeout = d.DefaultStageTimeout
	}
	if c.DefaultInvocationTimeout <= 0 {
		c.DefaultInvocationTimeout = d.DefaultInvocationTimeout
	}
	return c
}

// ErrCancelled is returned by Execute when the investigation's context was
// cancelled before the plan finished.
var ErrCancelled = errors.New("execution cancelled")

// CriticalStageError marks a plan-critical stage that terminally failed.
type CriticalStageError struct {
	StageID string
}

func (e *CriticalStageError) Error() string {
	return fmt.Sprintf("critical stage %q failed", e.StageID)
}
