package analyzer

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// PriceDeviation flags contracts whose per-unit price deviates from the
// robust center of their cohort (same category, year and UF) by more than
// the configured multiple of the median absolute deviation.
type PriceDeviation struct{}

func (*PriceDeviation) Kind() models.AnomalyKind { return models.AnomalyPriceDeviation }

func (*PriceDeviation) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	type member struct {
		node  *graph.Node
		price float64
	}
	cohorts := make(map[string][]member)

	for _, n := range g.NodesByType(graph.NodeContract) {
		price, ok := attrFloat(n, "unit_price")
		if !ok || price <= 0 {
			continue
		}
		category := attrString(n, "category")
		if category == "" {
			continue
		}
		year, _ := attrInt(n, "year")
		key := fmt.Sprintf("%s|%d|%s", category, year, attrString(n, "uf"))
		cohorts[key] = append(cohorts[key], member{node: n, price: price})
	}

	keys := make([]string, 0, len(cohorts))
	for k := range cohorts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []models.Anomaly
	for _, key := range keys {
		members := cohorts[key]
		if len(members) < 3 {
			continue
		}
		prices := make([]float64, len(members))
		for i, m := range members {
			prices[i] = m.price
		}
		med := median(prices)
		dispersion := mad(prices, med)
		if dispersion == 0 {
			continue
		}

		confidence := clamp01(1 - 1/float64(len(members)))
		for _, m := range members {
			factor := math.Abs(m.price-med) / dispersion
			if factor <= cfg.PriceMADFactor {
				continue
			}
			anomaly := models.Anomaly{
				AnomalyID:     anomalyID(models.AnomalyPriceDeviation, []string{m.node.ID}, key),
				Kind:          models.AnomalyPriceDeviation,
				Severity:      priceSeverity(factor),
				Confidence:    confidence,
				AffectedNodes: []string{m.node.ID},
				Evidence: map[string]any{
					"cohort":        key,
					"cohort_size":   len(members),
					"unit_price":    m.price,
					"cohort_median": med,
					"mad":           dispersion,
					"mad_factor":    factor,
				},
				Recommendation: "review unit pricing against comparable contracts in the same category, year and state",
			}
			if value, ok := attrFloat(m.node, "value"); ok && m.price > med {
				excess := decimal.NewFromFloat(value * (1 - med/m.price)).Round(2)
				anomaly.EstimatedImpact = &excess
			}
			out = append(out, anomaly)
		}
	}
	return out, nil
}

// priceSeverity bands the MAD multiple.
func priceSeverity(factor float64) models.Severity {
	switch {
	case factor > 5:
		return models.SeverityCritical
	case factor > 4:
		return models.SeverityHigh
	case factor > 3:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
