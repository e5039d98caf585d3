// Package progress delivers incremental investigation events to callers
// through a bounded sink. Events are strictly serialized per investigation;
// non-data events are dropped (and counted) when the consumer cannot keep
// up, data events never are.
package progress

import (
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// Event type tags. Consumers must ignore unknown fields; the tag plus the
// RFC 3339 UTC "ts" field are the stable envelope.
const (
	EventPlanCreated            = "plan.created"
	EventStageStarted           = "stage.started"
	EventStageRecord            = "stage.record"
	EventStageCompleted         = "stage.completed"
	EventAnalyzerCompleted      = "analyzer.completed"
	EventInvestigationCompleted = "investigation.completed"
	EventError                  = "error"
)

// BaseEvent is the envelope shared by every event kind.
type BaseEvent struct {
	Type            string    `json:"type"`
	TS              time.Time `json:"ts"`
	InvestigationID string    `json:"investigation_id"`
}

// Event is any serializable progress event.
type Event interface {
	// EventType returns the envelope's type tag.
	EventType() string
	envelope() *BaseEvent
	// data events are never dropped by the sink's bounded send.
	data() bool
}

func (b *BaseEvent) envelope() *BaseEvent { return b }

// EventType returns the envelope's type tag.
func (b *BaseEvent) EventType() string { return b.Type }

// RecordDigest is the small JSON-safe projection of a collected record —
// never the raw payload.
type RecordDigest struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

// PlanCreatedEvent announces the execution plan.
type PlanCreatedEvent struct {
	BaseEvent
	Plan *models.ExecutionPlan `json:"plan"`
}

func (*PlanCreatedEvent) data() bool { return false }

// StageStartedEvent announces a stage entering execution.
type StageStartedEvent struct {
	BaseEvent
	StageID   string   `json:"stage_id"`
	Endpoints []string `json:"endpoints"`
}

func (*StageStartedEvent) data() bool { return false }

// StageRecordEvent carries one collected record digest.
type StageRecordEvent struct {
	BaseEvent
	StageID string       `json:"stage_id"`
	Record  RecordDigest `json:"record"`
}

func (*StageRecordEvent) data() bool { return true }

// StageCompletedEvent announces a stage's terminal status.
type StageCompletedEvent struct {
	BaseEvent
	StageID  string             `json:"stage_id"`
	Status   models.StageStatus `json:"status"`
	Duration time.Duration      `json:"duration"`
}

func (*StageCompletedEvent) data() bool { return false }

// AnalyzerCompletedEvent announces one analyzer finishing.
type AnalyzerCompletedEvent struct {
	BaseEvent
	Kind         models.AnomalyKind `json:"kind"`
	AnomalyCount int                `json:"anomaly_count"`
}

func (*AnalyzerCompletedEvent) data() bool { return false }

// InvestigationCompletedEvent closes the stream with the result summary.
type InvestigationCompletedEvent struct {
	BaseEvent
	Status       models.InvestigationStatus `json:"status"`
	AnomalyCount int                        `json:"anomaly_count"`
	GraphSummary models.GraphSummary        `json:"graph_summary"`
	Duration     time.Duration              `json:"duration"`
}

func (*InvestigationCompletedEvent) data() bool { return true }

// ErrorEvent surfaces a classified error as it happens.
type ErrorEvent struct {
	BaseEvent
	Where string `json:"where"`
	Kind  string `json:"error_kind"`
}

func (*ErrorEvent) data() bool { return false }
