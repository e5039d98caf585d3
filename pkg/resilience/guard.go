package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/transparencia-br/fiscal/pkg/apiclient"
	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// breakerWindow is the rolling window in which consecutive failures are
// counted while the breaker is closed.
const breakerWindow = 60 * time.Second

// Guard is the per-endpoint limiter/breaker pair. One Guard exists per
// endpoint process-wide; it serializes nothing across I/O — the limiter
// wait and the breaker bookkeeping are the only synchronization points.
type Guard struct {
	endpointID string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	retry      RetryConfig
	metrics    *metrics.Metrics
}

func newGuard(ep *registry.Endpoint, cfg Config, m *metrics.Metrics) *Guard {
	threshold := ep.CircuitThreshold
	if threshold <= 0 {
		threshold = cfg.Circuit.FailureThreshold
	}

	g := &Guard{
		endpointID: ep.ID,
		// Token bucket: capacity ratePerMinute, refilled at rpm/60 per second.
		limiter: rate.NewLimiter(rate.Limit(float64(ep.RatePerMinute)/60.0), ep.RatePerMinute),
		retry:   cfg.Retry,
		metrics: m,
	}

	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        ep.ID,
		MaxRequests: 1, // one probe in half-open; success closes, failure reopens
		Interval:    breakerWindow,
		Timeout:     cfg.Circuit.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			m.SetBreakerState(name, breakerStateValue(to))
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Caller mistakes and absent resources say nothing about the
			// endpoint's health. Cancellation is the caller's deadline.
			switch apiclient.KindOf(err) {
			case apiclient.KindInvalidRequest, apiclient.KindNotFound, apiclient.KindCancelled:
				return true
			}
			return false
		},
	})

	return g
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State returns the breaker state for observability and tests.
func (g *Guard) State() gobreaker.State { return g.breaker.State() }

// Do invokes the client through the limiter, breaker and retry loop.
// It returns the result, the number of attempts issued, and a classified
// error on terminal failure. retry overrides, when non-nil, replace the
// guard's retry defaults for this call (per-stage policy).
func (g *Guard) Do(
	ctx context.Context,
	client apiclient.Client,
	method string,
	params map[string]any,
	retry *RetryConfig,
) (*models.RawResult, int, error) {
	policy := g.retry
	if retry != nil {
		policy = *retry
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.BaseBackoff
	bo.MaxInterval = policy.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0 // attempts are the bound, not elapsed time
	bo.Reset()

	var lastErr error
	attempts := 0
	for attempts < policy.MaxAttempts {
		// Every attempt, retries included, waits for a rate token. The
		// token wait blocks up to the call's deadline; the deadline
		// expiring while queued is reported as Timeout.
		if err := g.limiter.Wait(ctx); err != nil {
			if ctx.Err() == context.Canceled {
				return nil, attempts, apiclient.NewError(apiclient.KindCancelled, g.endpointID, "cancelled waiting for rate token", err)
			}
			return nil, attempts, apiclient.NewError(apiclient.KindTimeout, g.endpointID, "deadline expired waiting for rate token", err)
		}
		attempts++

		start := time.Now()
		res, err := g.executeOnce(ctx, client, method, params)
		kind := apiclient.KindOf(err)
		outcome := "ok"
		if err != nil {
			outcome = string(kind)
		}
		g.metrics.ObserveInvoke(g.endpointID, outcome, time.Since(start).Seconds())

		if err == nil {
			return res, attempts, nil
		}
		lastErr = err

		if !kind.Retryable() || attempts >= policy.MaxAttempts {
			break
		}

		wait := bo.NextBackOff()
		if ra := apiclient.RetryAfterOf(err); ra > 0 {
			wait = ra
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, attempts, apiclient.NewError(
				classifyCtx(ctx), g.endpointID, "aborted during retry backoff", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, attempts, lastErr
}

// executeOnce runs one breaker-gated invocation.
func (g *Guard) executeOnce(
	ctx context.Context,
	client apiclient.Client,
	method string,
	params map[string]any,
) (*models.RawResult, error) {
	out, err := g.breaker.Execute(func() (any, error) {
		return client.Invoke(ctx, method, params)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, apiclient.NewError(apiclient.KindCircuitOpen, g.endpointID, "circuit open", err)
		}
		return nil, err
	}
	res, ok := out.(*models.RawResult)
	if !ok {
		return nil, apiclient.NewError(apiclient.KindInternalError, g.endpointID,
			fmt.Sprintf("client returned unexpected type %T", out), nil)
	}
	return res, nil
}

func classifyCtx(ctx context.Context) apiclient.Kind {
	if ctx.Err() == context.DeadlineExceeded {
		return apiclient.KindTimeout
	}
	return apiclient.KindCancelled
}
