package federation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/planner"
	"github.com/transparencia-br/fiscal/pkg/progress"
	"github.com/transparencia-br/fiscal/pkg/registry"
	"github.com/transparencia-br/fiscal/pkg/resilience"
)

// Executor runs execution plans against the federated registry. One Executor
// serves the whole process; the per-endpoint in-flight bounds and the guard
// registry it holds are shared across concurrent investigations.
type Executor struct {
	registry *registry.Registry
	guards   *resilience.Registry
	clients  ClientRegistry
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger

	stageSem *semaphore.Weighted

	epMu   sync.Mutex
	epSems map[string]*semaphore.Weighted

	now func() time.Time
}

// NewExecutor builds the executor. m and logger may be nil.
func NewExecutor(
	reg *registry.Registry,
	guards *resilience.Registry,
	clients ClientRegistry,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Executor {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: reg,
		guards:   guards,
		clients:  clients,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.With("component", "federation"),
		stageSem: semaphore.NewWeighted(int64(cfg.MaxInFlightStages)),
		epSems:   make(map[string]*semaphore.Weighted),
		now:      time.Now,
	}
}

// endpointSem returns the shared in-flight bound for one endpoint.
func (e *Executor) endpointSem(endpointID string) *semaphore.Weighted {
	e.epMu.Lock()
	defer e.epMu.Unlock()
	sem, ok := e.epSems[endpointID]
	if !ok {
		sem = semaphore.NewWeighted(int64(e.cfg.MaxInFlightPerEndpoint))
		e.epSems[endpointID] = sem
	}
	return sem
}

type stageOutcome struct {
	index  int
	result models.StageResult
}

// Execute runs every stage of the plan to a terminal status and returns the
// stage results ordered by start time. The returned error is non-nil only
// when the context was cancelled mid-plan or a critical stage failed; in
// both cases the partial results are still returned.
//
// Stages never started because of cancellation do not appear in the results.
// Stages skipped because a dependency failed do, with status skipped.
func (e *Executor) Execute(
	ctx context.Context,
	plan *models.ExecutionPlan,
	sink *progress.Sink,
) ([]models.StageResult, error) {
	if err := planner.Validate(plan); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}
	if plan.Parallelism == models.ParallelismSequential {
		return e.executeSequential(ctx, plan, sink)
	}

	status := make(map[string]models.StageStatus, len(plan.Stages))
	launched := make(map[string]bool, len(plan.Stages))
	results := make([]models.StageResult, 0, len(plan.Stages))
	done := make(chan stageOutcome)
	running := 0

	for {
		// Launch everything whose dependencies reached a terminal status.
		// Skips resolve inline and can unblock further stages, so sweep
		// until a pass makes no progress.
		for progressed := true; progressed; {
			progressed = false
			if ctx.Err() != nil {
				break
			}
			for i := range plan.Stages {
				st := &plan.Stages[i]
				if launched[st.ID] {
					continue
				}
				ready, skip := depState(st, status)
				switch {
				case skip:
					launched[st.ID] = true
					status[st.ID] = models.StageSkipped
					res := e.skippedResult(st)
					results = append(results, res)
					e.observeStage(ctx, st, res, sink)
					progressed = true
				case ready:
					launched[st.ID] = true
					running++
					go func(idx int, st *models.ExecutionStage) {
						done <- stageOutcome{index: idx, result: e.runStage(ctx, st, sink)}
					}(i, st)
				}
			}
		}

		if running == 0 {
			break
		}
		out := <-done
		running--
		status[out.result.StageID] = out.result.Status
		results = append(results, out.result)
	}

	sortResults(results, plan)

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return results, criticalFailure(plan, status)
}

// executeSequential runs stages one at a time in plan order.
func (e *Executor) executeSequential(
	ctx context.Context,
	plan *models.ExecutionPlan,
	sink *progress.Sink,
) ([]models.StageResult, error) {
	status := make(map[string]models.StageStatus, len(plan.Stages))
	results := make([]models.StageResult, 0, len(plan.Stages))

	for i := range plan.Stages {
		if ctx.Err() != nil {
			sortResults(results, plan)
			return results, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		st := &plan.Stages[i]
		_, skip := depState(st, status)
		var res models.StageResult
		if skip {
			res = e.skippedResult(st)
			e.observeStage(ctx, st, res, sink)
		} else {
			res = e.runStage(ctx, st, sink)
		}
		status[st.ID] = res.Status
		results = append(results, res)
	}

	sortResults(results, plan)
	return results, criticalFailure(plan, status)
}

// depState reports whether a stage is ready to run or must be skipped.
// A stage waits until every dependency is terminal; a non-independent stage
// whose dependency did not succeed is skipped, an independent one still runs.
func depState(st *models.ExecutionStage, status map[string]models.StageStatus) (ready, skip bool) {
	for _, dep := range st.Dependencies {
		s, terminal := status[dep]
		if !terminal {
			return false, false
		}
		if !s.Succeeded() && !st.Independent {
			return false, true
		}
	}
	return true, false
}

func (e *Executor) skippedResult(st *models.ExecutionStage) models.StageResult {
	return models.StageResult{
		StageID:   st.ID,
		Status:    models.StageSkipped,
		StartedAt: e.now().UTC(),
	}
}

// criticalFailure returns an error for the first critical stage that ended
// failed or skipped, in plan order.
func criticalFailure(plan *models.ExecutionPlan, status map[string]models.StageStatus) error {
	for i := range plan.Stages {
		st := &plan.Stages[i]
		if !st.Critical {
			continue
		}
		if s, ok := status[st.ID]; ok && !s.Succeeded() {
			return &CriticalStageError{StageID: st.ID}
		}
	}
	return nil
}

// sortResults orders results by start time, breaking ties by plan order so
// the ordering is deterministic under a fake clock.
func sortResults(results []models.StageResult, plan *models.ExecutionPlan) {
	order := make(map[string]int, len(plan.Stages))
	for i := range plan.Stages {
		order[plan.Stages[i].ID] = i
	}
	sort.SliceStable(results, func(i, j int) bool {
		if !results[i].StartedAt.Equal(results[j].StartedAt) {
			return results[i].StartedAt.Before(results[j].StartedAt)
		}
		return order[results[i].StageID] < order[results[j].StageID]
	})
}
