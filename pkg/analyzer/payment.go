package analyzer

import (
	"context"
	"math"

	"github.com/shopspring/decimal"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// PaymentMismatch flags contracts whose paid value diverges from the
// contracted value by more than the configured ratio.
type PaymentMismatch struct{}

func (*PaymentMismatch) Kind() models.AnomalyKind { return models.AnomalyPaymentMismatch }

func (*PaymentMismatch) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	var out []models.Anomaly
	for _, c := range g.NodesByType(graph.NodeContract) {
		value, okV := attrFloat(c, "value")
		paid, okP := attrFloat(c, "paid_value")
		if !okV || !okP || value <= 0 {
			continue
		}
		ratio := math.Abs(paid-value) / value
		if ratio <= cfg.PaymentMismatchRatio {
			continue
		}
		impact := decimal.NewFromFloat(math.Abs(paid - value)).Round(2)
		out = append(out, models.Anomaly{
			AnomalyID:     anomalyID(models.AnomalyPaymentMismatch, []string{c.ID}, ""),
			Kind:          models.AnomalyPaymentMismatch,
			Severity:      mismatchSeverity(ratio),
			Confidence:    clamp01(ratio / (ratio + 1)),
			AffectedNodes: []string{c.ID},
			Evidence: map[string]any{
				"contracted": value,
				"paid":       paid,
				"ratio":      ratio,
			},
			Recommendation:  "reconcile payment records against the contracted amount",
			EstimatedImpact: &impact,
		})
	}
	return out, nil
}

// mismatchSeverity bands the mismatch ratio (0.5 means 50%).
func mismatchSeverity(ratio float64) models.Severity {
	switch {
	case ratio > 5:
		return models.SeverityCritical
	case ratio > 2:
		return models.SeverityHigh
	case ratio > 1:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
