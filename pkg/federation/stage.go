package federation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/transparencia-br/fiscal/pkg/apiclient"
	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/progress"
	"github.com/transparencia-br/fiscal/pkg/resilience"
)

// runStage executes one stage to a terminal status. A panic anywhere inside
// is contained here and surfaces as a failed stage, never as a crashed
// investigation.
func (e *Executor) runStage(
	ctx context.Context,
	st *models.ExecutionStage,
	sink *progress.Sink,
) (res models.StageResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("stage panicked",
				"stage_id", st.ID, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			res = models.StageResult{
				StageID:   st.ID,
				Status:    models.StageFailed,
				StartedAt: e.now().UTC(),
				Errors: []models.ErrorRecord{{
					Kind:    string(apiclient.KindInternalError),
					Message: fmt.Sprintf("stage panicked: %v", r),
				}},
			}
			e.observeStage(ctx, st, res, sink)
		}
	}()

	if err := e.stageSem.Acquire(ctx, 1); err != nil {
		res = models.StageResult{
			StageID:   st.ID,
			Status:    models.StageFailed,
			StartedAt: e.now().UTC(),
			Errors: []models.ErrorRecord{{
				Kind:    string(ctxKind(ctx)),
				Message: "cancelled before stage admission",
			}},
		}
		e.observeStage(ctx, st, res, sink)
		return res
	}
	defer e.stageSem.Release(1)

	start := e.now().UTC()
	res = models.StageResult{StageID: st.ID, StartedAt: start}

	timeout := st.TimeoutOverride
	if timeout <= 0 {
		timeout = e.cfg.DefaultStageTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	candidates := e.candidates(st)
	sink.Publish(ctx, &progress.StageStartedEvent{
		BaseEvent: progress.BaseEvent{Type: progress.EventStageStarted},
		StageID:   st.ID,
		Endpoints: candidates,
	})

	if len(candidates) == 0 {
		res.Status = models.StageFailed
		res.Errors = append(res.Errors, models.ErrorRecord{
			Kind:    string(apiclient.KindInvalidRequest),
			Message: fmt.Sprintf("no endpoint provides capability %q", st.Capability),
		})
		res.Duration = e.now().Sub(start)
		e.observeStage(ctx, st, res, sink)
		return res
	}

	// Walk the candidate chain: the primary endpoint first, then its
	// registered fallbacks. A fallback is only consulted when the previous
	// endpoint yielded nothing and failed for a reason a different provider
	// could plausibly fix.
	for _, epID := range candidates {
		inv := e.invokeEndpoint(sctx, st, epID, sink)
		res.EndpointsInvoked = append(res.EndpointsInvoked, epID)
		res.Attempts += inv.attempts
		res.Records = append(res.Records, inv.records...)
		res.Errors = append(res.Errors, inv.errors...)

		if len(res.Records) > 0 || !inv.fallbackEligible {
			break
		}
	}

	res.Duration = e.now().Sub(start)
	res.Status = classifyStage(res)
	e.observeStage(ctx, st, res, sink)
	return res
}

// candidates returns the primary endpoint followed by its fallback chain,
// deduplicated, keeping only endpoints that still exist in the registry.
func (e *Executor) candidates(st *models.ExecutionStage) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		if _, err := e.registry.Lookup(id); err != nil {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range st.Endpoints {
		add(id)
		for _, fb := range e.registry.FallbacksFor(id) {
			add(fb)
		}
	}
	return out
}

type invocationSet struct {
	records  []models.RawResult
	errors   []models.ErrorRecord
	attempts int
	// fallbackEligible is true when any failure's kind justifies
	// consulting the next endpoint in the chain.
	fallbackEligible bool
}

// invokeEndpoint issues the stage's invocations against one endpoint. Fan-out
// invocations run concurrently, bounded by the endpoint's shared in-flight
// limit; every call goes through the endpoint's guard.
func (e *Executor) invokeEndpoint(
	ctx context.Context,
	st *models.ExecutionStage,
	endpointID string,
	sink *progress.Sink,
) invocationSet {
	var out invocationSet

	ep, err := e.registry.Lookup(endpointID)
	if err != nil {
		out.errors = append(out.errors, models.ErrorRecord{
			Kind:       string(apiclient.KindInvalidRequest),
			EndpointID: endpointID,
			Message:    err.Error(),
		})
		return out
	}
	client, ok := e.clients.ClientFor(endpointID)
	if !ok {
		out.errors = append(out.errors, models.ErrorRecord{
			Kind:       string(apiclient.KindInvalidRequest),
			EndpointID: endpointID,
			Message:    "no client registered for endpoint",
		})
		return out
	}

	guard := e.guards.GuardFor(ep)
	retry := retryOverride(st.Retry)
	sem := e.endpointSem(endpointID)

	fanOut := st.FanOut
	if fanOut < 1 {
		fanOut = 1
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			params := cloneParams(st.Params)
			if fanOut > 1 {
				params["page"] = slot + 1
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				mu.Lock()
				out.errors = append(out.errors, models.ErrorRecord{
					Kind:       string(ctxKind(ctx)),
					EndpointID: endpointID,
					Message:    "aborted waiting for endpoint slot",
				})
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			ictx, cancel := context.WithTimeout(ctx, e.cfg.DefaultInvocationTimeout)
			rec, attempts, err := guard.Do(ictx, client, st.Capability, params, retry)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			out.attempts += attempts
			if err != nil {
				kind := apiclient.KindOf(err)
				out.errors = append(out.errors, models.ErrorRecord{
					Kind:       string(kind),
					EndpointID: endpointID,
					Message:    err.Error(),
				})
				out.fallbackEligible = out.fallbackEligible || kind.FallbackEligible()
				return
			}
			out.records = append(out.records, *rec)
			sink.Publish(ctx, &progress.StageRecordEvent{
				BaseEvent: progress.BaseEvent{Type: progress.EventStageRecord},
				StageID:   st.ID,
				Record: progress.RecordDigest{
					ID:    fmt.Sprintf("%s/%s/%d", st.ID, endpointID, slot),
					Type:  st.Capability,
					Label: endpointID,
				},
			})
		}(i)
	}
	wg.Wait()

	return out
}

// classifyStage derives the terminal status from what the stage collected.
// Any records with no errors is completed; records alongside errors is
// partial; nothing collected is failed.
func classifyStage(res models.StageResult) models.StageStatus {
	switch {
	case len(res.Records) > 0 && len(res.Errors) == 0:
		return models.StageCompleted
	case len(res.Records) > 0:
		return models.StagePartial
	default:
		return models.StageFailed
	}
}

// observeStage records metrics and publishes the stage.completed event.
func (e *Executor) observeStage(
	ctx context.Context,
	st *models.ExecutionStage,
	res models.StageResult,
	sink *progress.Sink,
) {
	e.metrics.ObserveStage(string(st.Type), string(res.Status), res.Duration.Seconds())
	e.logger.Info("stage finished",
		"stage_id", st.ID,
		"status", string(res.Status),
		"records", len(res.Records),
		"errors", len(res.Errors),
		"attempts", res.Attempts,
		"duration", res.Duration)
	sink.Publish(ctx, &progress.StageCompletedEvent{
		BaseEvent: progress.BaseEvent{Type: progress.EventStageCompleted},
		StageID:   st.ID,
		Status:    res.Status,
		Duration:  res.Duration,
	})
	for _, rec := range res.Errors {
		sink.Publish(ctx, &progress.ErrorEvent{
			BaseEvent: progress.BaseEvent{Type: progress.EventError},
			Where:     st.ID,
			Kind:      rec.Kind,
		})
	}
}

func retryOverride(p *models.RetryPolicy) *resilience.RetryConfig {
	if p == nil {
		return nil
	}
	return &resilience.RetryConfig{
		MaxAttempts: p.MaxAttempts,
		BaseBackoff: p.BaseBackoff,
		MaxBackoff:  p.MaxBackoff,
	}
}

func cloneParams(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func ctxKind(ctx context.Context) apiclient.Kind {
	if ctx.Err() == context.DeadlineExceeded {
		return apiclient.KindTimeout
	}
	return apiclient.KindCancelled
}
