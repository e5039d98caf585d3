package models

import "github.com/shopspring/decimal"

// AnomalyKind identifies the detector family that produced an anomaly.
type AnomalyKind string

const (
	AnomalyPriceDeviation      AnomalyKind = "price_deviation"
	AnomalyVendorConcentration AnomalyKind = "vendor_concentration"
	AnomalyTemporalSpike       AnomalyKind = "temporal_spike"
	AnomalyDuplicateContract   AnomalyKind = "duplicate_contract"
	AnomalyPaymentMismatch     AnomalyKind = "payment_mismatch"
	AnomalyBenfordViolation    AnomalyKind = "benford_violation"
	AnomalyCartelClique        AnomalyKind = "cartel_clique"
)

// Severity ranks anomalies for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AtLeast reports whether s ranks at or above other.
func (s Severity) AtLeast(other Severity) bool {
	return severityRank(s) >= severityRank(other)
}

func severityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Anomaly is one finding produced by an analyzer over the frozen graph.
type Anomaly struct {
	AnomalyID       string           `json:"anomaly_id"`
	Kind            AnomalyKind      `json:"kind"`
	Severity        Severity         `json:"severity"`
	Confidence      float64          `json:"confidence"`
	AffectedNodes   []string         `json:"affected_nodes"`
	Evidence        map[string]any   `json:"evidence,omitempty"`
	Recommendation  string           `json:"recommendation,omitempty"`
	EstimatedImpact *decimal.Decimal `json:"estimated_impact,omitempty"`
}
