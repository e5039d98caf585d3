package models

// Intent is the closed set of investigation classes a query can map to.
type Intent string

const (
	IntentContractAnomalyDetection Intent = "contract_anomaly_detection"
	IntentSupplierInvestigation    Intent = "supplier_investigation"
	IntentBudgetAnalysis           Intent = "budget_analysis"
	IntentCorruptionIndicators     Intent = "corruption_indicators"
	IntentGeographicAnalysis       Intent = "geographic_analysis"
	IntentTemporalAnalysis         Intent = "temporal_analysis"
	IntentNetworkAnalysis          Intent = "network_analysis"
	IntentGeneralInvestigation     Intent = "general_investigation"
)

// AllIntents lists every intent in a stable order (used for deterministic
// scoring iteration and for validation).
var AllIntents = []Intent{
	IntentContractAnomalyDetection,
	IntentSupplierInvestigation,
	IntentBudgetAnalysis,
	IntentCorruptionIndicators,
	IntentGeographicAnalysis,
	IntentTemporalAnalysis,
	IntentNetworkAnalysis,
	IntentGeneralInvestigation,
}

// Valid reports whether the intent is a member of the closed set.
func (i Intent) Valid() bool {
	for _, known := range AllIntents {
		if i == known {
			return true
		}
	}
	return false
}

// IntentScore is an alternative intent with its normalized confidence.
type IntentScore struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classification is the output of the intent classifier: one primary intent
// plus zero or more alternatives, confidences in [0,1].
type Classification struct {
	Intent       Intent        `json:"intent"`
	Confidence   float64       `json:"confidence"`
	Alternatives []IntentScore `json:"alternatives,omitempty"`
}
