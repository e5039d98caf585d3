package models

import (
	"encoding/json"
	"time"
)

// StageType partitions plan stages into the three execution waves.
type StageType string

const (
	StageTypeFetch   StageType = "fetch"
	StageTypeEnrich  StageType = "enrich"
	StageTypeAnalyze StageType = "analyze"
)

// ParallelismPolicy controls how the executor schedules independent stages.
type ParallelismPolicy string

const (
	// ParallelismDependencyDriven runs every stage whose dependencies are
	// satisfied concurrently, bounded by the executor's in-flight limits.
	ParallelismDependencyDriven ParallelismPolicy = "dependency-driven"
	// ParallelismSequential runs stages one at a time in plan order.
	ParallelismSequential ParallelismPolicy = "strictly-sequential"
)

// RetryPolicy overrides the resilience layer's retry defaults for one stage.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts"`
	BaseBackoff time.Duration `json:"base_backoff"`
	MaxBackoff  time.Duration `json:"max_backoff"`
}

// ExecutionStage is one unit of work in a plan: a capability invoked across
// one or more endpoints, gated on the completion of its dependencies.
type ExecutionStage struct {
	ID              string         `json:"id"`
	Type            StageType      `json:"type"`
	Capability      string         `json:"capability"`
	Params          map[string]any `json:"params,omitempty"`
	Dependencies    []string       `json:"dependencies,omitempty"`
	Endpoints       []string       `json:"endpoints,omitempty"`
	TimeoutOverride time.Duration  `json:"timeout_override,omitempty"`
	Retry           *RetryPolicy   `json:"retry,omitempty"`

	// Critical stages fail the whole investigation when they fail.
	Critical bool `json:"critical,omitempty"`
	// Independent stages run even when a dependency failed (the dependency
	// still orders them but its failure does not skip them).
	Independent bool `json:"independent,omitempty"`
	// FanOut is the number of inner invocations per endpoint. Zero or one
	// means a single call.
	FanOut int `json:"fan_out,omitempty"`
}

// ExecutionPlan is a DAG of stages over the federated API registry. Stages
// are listed in a topological order.
type ExecutionPlan struct {
	PlanID            string            `json:"plan_id"`
	Intent            Intent            `json:"intent"`
	Stages            []ExecutionStage  `json:"stages"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	Parallelism       ParallelismPolicy `json:"parallelism"`
}

// Stage returns the stage with the given id, or nil.
func (p *ExecutionPlan) Stage(id string) *ExecutionStage {
	for i := range p.Stages {
		if p.Stages[i].ID == id {
			return &p.Stages[i]
		}
	}
	return nil
}

// StageStatus is the terminal state of one executed stage.
type StageStatus string

const (
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
	StagePartial   StageStatus = "partial"
)

// Succeeded reports whether the status satisfies downstream dependencies.
func (s StageStatus) Succeeded() bool {
	return s == StageCompleted || s == StagePartial
}

// RawResult is one opaque per-API payload. The federation layer never
// unifies schemas; the graph builder's shape mappers do.
type RawResult struct {
	SourceEndpointID string          `json:"source_endpoint_id"`
	FetchedAt        time.Time       `json:"fetched_at"`
	Payload          json.RawMessage `json:"payload"`
}

// ErrorRecord is one classified error captured during stage execution.
type ErrorRecord struct {
	Kind       string `json:"kind"`
	EndpointID string `json:"endpoint_id,omitempty"`
	Message    string `json:"message"`
}

// StageResult is the outcome of executing one stage.
type StageResult struct {
	StageID          string        `json:"stage_id"`
	Status           StageStatus   `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	Duration         time.Duration `json:"duration"`
	Attempts         int           `json:"attempts"`
	EndpointsInvoked []string      `json:"endpoints"`
	Records          []RawResult   `json:"records,omitempty"`
	Errors           []ErrorRecord `json:"errors,omitempty"`
}
