// Package orchestrator drives one investigation end to end: classify and
// extract concurrently, plan, execute the plan, build the frozen graph, run
// the detectors, and assemble the sanitized result with its provenance.
package orchestrator

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/transparencia-br/fiscal/pkg/analyzer"
	"github.com/transparencia-br/fiscal/pkg/apiclient"
	"github.com/transparencia-br/fiscal/pkg/classifier"
	"github.com/transparencia-br/fiscal/pkg/extractor"
	"github.com/transparencia-br/fiscal/pkg/federation"
	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/planner"
	"github.com/transparencia-br/fiscal/pkg/progress"
	"github.com/transparencia-br/fiscal/pkg/registry"
	"github.com/transparencia-br/fiscal/pkg/sanitize"
	"github.com/transparencia-br/fiscal/pkg/trace"
)

// analyzedIntents gates the detector pass: only these investigation classes
// run the anomaly detectors after collection.
var analyzedIntents = map[models.Intent]bool{
	models.IntentContractAnomalyDetection: true,
	models.IntentCorruptionIndicators:     true,
	models.IntentSupplierInvestigation:    true,
	models.IntentNetworkAnalysis:          true,
}

// Orchestrator composes the engine. One instance serves the whole process
// and is safe for concurrent investigations.
type Orchestrator struct {
	classifier *classifier.Classifier
	extractor  *extractor.Extractor
	planner    *planner.Planner
	executor   *federation.Executor
	builder    *graph.Builder
	analyzers  *analyzer.Runner
	sanitizer  *sanitize.Sanitizer

	progressCfg progress.Config
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// Deps carries the orchestrator's collaborators. Executor and Registry are
// required; nil optional fields get defaults.
type Deps struct {
	Registry    *registry.Registry
	Executor    *federation.Executor
	Builder     *graph.Builder
	Analyzers   *analyzer.Runner
	Sanitizer   *sanitize.Sanitizer
	ProgressCfg progress.Config
	Metrics     *metrics.Metrics
	Logger      *slog.Logger

	// DefaultStageEstimate seeds plan duration estimates for endpoints
	// without their own.
	DefaultStageEstimate time.Duration
}

// New wires an orchestrator.
func New(d Deps) *Orchestrator {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	builder := d.Builder
	if builder == nil {
		builder = graph.NewBuilder(graph.DefaultMappers())
	}
	analyzers := d.Analyzers
	if analyzers == nil {
		analyzers = analyzer.NewRunner(analyzer.DefaultSet(), analyzer.DefaultConfig(), d.Metrics, logger)
	}
	sanitizer := d.Sanitizer
	if sanitizer == nil {
		sanitizer = sanitize.New()
	}
	return &Orchestrator{
		classifier:  classifier.New(),
		extractor:   extractor.New(),
		planner:     planner.New(d.Registry, d.DefaultStageEstimate),
		executor:    d.Executor,
		builder:     builder,
		analyzers:   analyzers,
		sanitizer:   sanitizer,
		progressCfg: d.ProgressCfg,
		metrics:     d.Metrics,
		logger:      logger.With("component", "orchestrator"),
		now:         time.Now,
	}
}

// Classify exposes intent classification on its own.
func (o *Orchestrator) Classify(query string) models.Classification {
	return o.classifier.Classify(query)
}

// Extract exposes entity extraction on its own. ref anchors relative dates.
func (o *Orchestrator) Extract(query string, ref time.Time) *models.Entities {
	return o.extractor.Extract(query, ref)
}

// Plan classifies, extracts and plans without executing.
func (o *Orchestrator) Plan(query string, ref time.Time) (*models.ExecutionPlan, error) {
	cls, entities := o.understand(query, ref)
	return o.planner.Plan(cls.Intent, entities, ref)
}

// Investigate runs one investigation without a consumer for the progress
// stream; events are drained and discarded.
func (o *Orchestrator) Investigate(ctx context.Context, ic models.Context) (*models.InvestigationResult, error) {
	sink := progress.NewSink(ic.InvestigationID, o.progressCfg, o.metrics)
	go func() {
		for range sink.Events() {
		}
	}()
	return o.InvestigateStream(ctx, ic, sink)
}

// InvestigateStream runs one investigation, publishing progress events to
// sink. The sink is closed before returning; the result is already
// sanitized. The error return is reserved for caller mistakes — execution
// failures are reported inside the result.
func (o *Orchestrator) InvestigateStream(ctx context.Context, ic models.Context, sink *progress.Sink) (*models.InvestigationResult, error) {
	defer sink.Close()

	if ic.InvestigationID == "" {
		ic.InvestigationID = NewInvestigationID()
	}
	if ic.ReferenceTime.IsZero() {
		ic.ReferenceTime = o.now().UTC()
	}
	started := o.now().UTC()
	logger := o.logger.With("investigation_id", ic.InvestigationID)
	logger.Info("investigation started", "query_len", len(ic.Query))

	res := &models.InvestigationResult{
		InvestigationID: ic.InvestigationID,
		Context:         ic,
		Status:          models.InvestigationRunning,
	}

	cls, entities := o.understand(ic.Query, ic.ReferenceTime)
	res.Intent = cls.Intent
	res.Confidence = cls.Confidence
	res.Entities = *entities

	plan, err := o.planner.Plan(cls.Intent, entities, ic.ReferenceTime)
	var insufficient *planner.InsufficientContextError
	if errors.As(err, &insufficient) {
		return o.finishInsufficient(ctx, res, insufficient, sink, started), nil
	}
	if err != nil {
		res.Status = models.InvestigationFailed
		res.Error = &models.InvestigationError{
			Kind:    string(apiclient.KindInternalError),
			Message: err.Error(),
		}
		return o.finish(ctx, res, sink, started), nil
	}
	res.Plan = plan

	sink.Publish(ctx, &progress.PlanCreatedEvent{
		BaseEvent: progress.BaseEvent{Type: progress.EventPlanCreated},
		Plan:      plan,
	})

	stages, execErr := o.executor.Execute(ctx, plan, sink)
	res.StageResults = stages

	g, mapErrs := o.builder.BuildWith(plan, stages, o.unresolvedSuppliers(plan, stages, entities), ic.ReferenceTime)
	res.GraphSummary = graph.Summary(g)

	var failedAnalyzers []models.AnomalyKind
	if analyzedIntents[cls.Intent] && ctx.Err() == nil {
		res.Anomalies, failedAnalyzers = o.analyzers.Run(ctx, g, sink)
	}
	if res.Anomalies == nil {
		res.Anomalies = []models.Anomaly{}
	}

	res.Traceability = trace.Build(stages, failedAnalyzers, started)
	if len(mapErrs) > 0 && len(res.StageResults) > 0 {
		// Mapper failures are recorded against the stage ledger, not lost.
		last := len(res.Traceability.StageDetails) - 1
		res.Traceability.StageDetails[last].Errors = append(res.Traceability.StageDetails[last].Errors, mapErrs...)
	}

	res.Status, res.Error = o.terminalStatus(plan, stages, execErr)
	return o.finish(ctx, res, sink, started), nil
}

// understand runs classification and extraction concurrently.
func (o *Orchestrator) understand(query string, ref time.Time) (models.Classification, *models.Entities) {
	var (
		wg       sync.WaitGroup
		cls      models.Classification
		entities *models.Entities
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		cls = o.classifier.Classify(query)
	}()
	go func() {
		defer wg.Done()
		entities = o.extractor.Extract(query, ref)
	}()
	wg.Wait()
	return cls, entities
}

// unresolvedSuppliers maps each query CNPJ that no succeeded lookup stage
// resolved to the endpoint that was attempted for it.
func (o *Orchestrator) unresolvedSuppliers(plan *models.ExecutionPlan, stages []models.StageResult, entities *models.Entities) map[string]string {
	if len(entities.CNPJs) == 0 {
		return nil
	}
	attempted := make(map[string]string)
	for _, sr := range stages {
		st := plan.Stage(sr.StageID)
		if st == nil || st.Capability != registry.CapLookupCNPJ || sr.Status.Succeeded() {
			continue
		}
		endpoint := ""
		if len(sr.EndpointsInvoked) > 0 {
			endpoint = sr.EndpointsInvoked[len(sr.EndpointsInvoked)-1]
		}
		for _, cnpj := range entities.CNPJs {
			attempted[cnpj] = endpoint
		}
	}
	if len(attempted) == 0 {
		return nil
	}
	return attempted
}

// terminalStatus derives the investigation's terminal state. Stage failures
// alone never fail the investigation; cancellation and critical-stage
// failure do.
func (o *Orchestrator) terminalStatus(plan *models.ExecutionPlan, stages []models.StageResult, execErr error) (models.InvestigationStatus, *models.InvestigationError) {
	if execErr == nil {
		return models.InvestigationCompleted, nil
	}
	if errors.Is(execErr, federation.ErrCancelled) {
		return models.InvestigationFailed, &models.InvestigationError{
			Kind:    string(apiclient.KindCancelled),
			Message: "investigation cancelled",
		}
	}
	var critical *federation.CriticalStageError
	if errors.As(execErr, &critical) {
		kind := string(apiclient.KindInternalError)
		for _, sr := range stages {
			if sr.StageID == critical.StageID && len(sr.Errors) > 0 {
				kind = sr.Errors[0].Kind
				break
			}
		}
		return models.InvestigationFailed, &models.InvestigationError{
			Kind:    kind,
			Message: execErr.Error(),
		}
	}
	return models.InvestigationFailed, &models.InvestigationError{
		Kind:    string(apiclient.KindInternalError),
		Message: execErr.Error(),
	}
}

// finishInsufficient closes out a query the planner could not serve for
// lack of entities: completed, no data collected, the missing fields
// recorded in the ledger.
func (o *Orchestrator) finishInsufficient(ctx context.Context, res *models.InvestigationResult, insufficient *planner.InsufficientContextError, sink *progress.Sink, started time.Time) *models.InvestigationResult {
	res.Status = models.InvestigationCompleted
	res.Anomalies = []models.Anomaly{}
	res.Traceability = models.Traceability{
		StartedAt: started,
		StageDetails: []models.StageDetail{{
			StageID: "clarification",
			Status:  models.StageSkipped,
			Errors: []models.ErrorRecord{{
				Kind:    string(apiclient.KindInvalidRequest),
				Message: insufficient.Error(),
			}},
		}},
	}
	return o.finish(ctx, res, sink, started)
}

// finish stamps, sanitizes and announces the terminal result.
func (o *Orchestrator) finish(ctx context.Context, res *models.InvestigationResult, sink *progress.Sink, started time.Time) *models.InvestigationResult {
	elapsed := o.now().UTC().Sub(started)
	res.TotalDurationSec = elapsed.Seconds()
	o.sanitizer.Result(res)

	sink.Publish(ctx, &progress.InvestigationCompletedEvent{
		BaseEvent:    progress.BaseEvent{Type: progress.EventInvestigationCompleted},
		Status:       res.Status,
		AnomalyCount: len(res.Anomalies),
		GraphSummary: res.GraphSummary,
		Duration:     elapsed,
	})
	res.DroppedEvents = sink.Dropped()

	o.logger.Info("investigation finished",
		"investigation_id", res.InvestigationID,
		"status", string(res.Status),
		"intent", string(res.Intent),
		"stages", len(res.StageResults),
		"anomalies", len(res.Anomalies),
		"dropped_events", res.DroppedEvents,
		"duration", elapsed)
	return res
}

// NewInvestigationID returns a ULID, 26 characters and sortable by
// creation time.
func NewInvestigationID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}
