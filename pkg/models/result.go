package models

import "time"

// InvestigationStatus is the lifecycle state of an investigation.
// Results are immutable once a terminal status is set.
type InvestigationStatus string

const (
	InvestigationPending   InvestigationStatus = "pending"
	InvestigationRunning   InvestigationStatus = "running"
	InvestigationCompleted InvestigationStatus = "completed"
	InvestigationFailed    InvestigationStatus = "failed"
)

// Terminal reports whether the status is final.
func (s InvestigationStatus) Terminal() bool {
	return s == InvestigationCompleted || s == InvestigationFailed
}

// Context carries caller identity and the clock reference for one
// investigation. ReferenceTime anchors relative date expressions
// ("últimos 6 meses") so extraction is reproducible.
type Context struct {
	InvestigationID string    `json:"investigation_id"`
	UserID          string    `json:"user_id,omitempty"`
	SessionID       string    `json:"session_id,omitempty"`
	Query           string    `json:"query"`
	ReferenceTime   time.Time `json:"reference_time"`
}

// StageDetail is the per-stage provenance entry in the traceability record.
type StageDetail struct {
	StageID   string        `json:"stage_id"`
	Status    StageStatus   `json:"status"`
	Duration  time.Duration `json:"duration"`
	Endpoints []string      `json:"endpoints"`
	Errors    []ErrorRecord `json:"errors,omitempty"`
}

// Traceability is the structured provenance attached to a result. It must
// never contain secrets, auth tokens, or internal network identifiers; the
// sanitize package enforces this before results leave the engine.
type Traceability struct {
	DataSources       []string      `json:"data_sources"`
	APIsCalledByStage [][]string    `json:"apis_called_by_stage"`
	StageDetails      []StageDetail `json:"stage_details"`
	// TotalAPICalls counts distinct endpoints consulted across all stages.
	// TotalAttempts counts every upstream invocation issued, retries and
	// fan-out pages included.
	TotalAPICalls   int           `json:"total_api_calls"`
	TotalAttempts   int           `json:"total_attempts"`
	FailedAnalyzers []AnomalyKind `json:"failed_analyzers,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
}

// GraphSummary is the external projection of a frozen entity graph.
type GraphSummary struct {
	NodeCount  int            `json:"node_count"`
	EdgeCount  int            `json:"edge_count"`
	ByNodeType map[string]int `json:"by_node_type,omitempty"`
	ByEdgeType map[string]int `json:"by_edge_type,omitempty"`
}

// InvestigationError is the top-level error, set only when the whole
// investigation is terminal-failed.
type InvestigationError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// InvestigationResult is the complete outcome of one investigation.
type InvestigationResult struct {
	InvestigationID  string              `json:"investigation_id"`
	Context          Context             `json:"context"`
	Intent           Intent              `json:"intent"`
	Confidence       float64             `json:"confidence"`
	Entities         Entities            `json:"entities"`
	Plan             *ExecutionPlan      `json:"plan,omitempty"`
	StageResults     []StageResult       `json:"stage_results"`
	GraphSummary     GraphSummary        `json:"graph_summary"`
	Anomalies        []Anomaly           `json:"anomalies"`
	TotalDurationSec float64             `json:"total_duration_sec"`
	Status           InvestigationStatus `json:"status"`
	Error            *InvestigationError `json:"error,omitempty"`
	Traceability     Traceability        `json:"traceability"`
	DroppedEvents    int                 `json:"dropped_events,omitempty"`
}
