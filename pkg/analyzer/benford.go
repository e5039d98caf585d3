package analyzer

import (
	"context"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// BenfordViolation tests each organization's contract amounts against the
// leading-digit distribution predicted by Benford's law. Only organizations
// with enough records in scope are tested; the chi-square statistic has
// eight degrees of freedom.
type BenfordViolation struct{}

func (*BenfordViolation) Kind() models.AnomalyKind { return models.AnomalyBenfordViolation }

func (*BenfordViolation) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	var out []models.Anomaly
	for _, org := range g.NodesByType(graph.NodeOrganization) {
		var counts [10]int
		n := 0
		for _, c := range orgContracts(g, org.ID) {
			for _, key := range []string{"value", "paid_value"} {
				v, ok := attrFloat(c, key)
				if !ok {
					continue
				}
				if d := leadingDigit(v); d > 0 {
					counts[d]++
					n++
				}
			}
		}
		if n < cfg.BenfordMinSamples {
			continue
		}
		chi := chiSquareBenford(counts, n)
		if chi <= cfg.BenfordChiSquare {
			continue
		}
		severity, confidence := benfordBand(chi)
		out = append(out, models.Anomaly{
			AnomalyID:     anomalyID(models.AnomalyBenfordViolation, []string{org.ID}, ""),
			Kind:          models.AnomalyBenfordViolation,
			Severity:      severity,
			Confidence:    confidence,
			AffectedNodes: []string{org.ID},
			Evidence: map[string]any{
				"samples":    n,
				"chi_square": chi,
				"digits":     counts[1:],
			},
			Recommendation: "audit the organization's amount records for fabricated or rounded figures",
		})
	}
	return out, nil
}

// benfordBand maps the chi-square statistic (df=8) to a severity and an
// approximate confidence. 15.51, 20.09 and 26.12 are the 0.05, 0.01 and
// 0.001 critical values.
func benfordBand(chi float64) (models.Severity, float64) {
	switch {
	case chi > 26.12:
		return models.SeverityCritical, 0.999
	case chi > 20.09:
		return models.SeverityHigh, 0.99
	default:
		return models.SeverityMedium, 0.95
	}
}
