package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// TemporalSpike flags months in which an organization signed an unusual
// number of contracts relative to the trailing twelve months.
type TemporalSpike struct{}

func (*TemporalSpike) Kind() models.AnomalyKind { return models.AnomalyTemporalSpike }

func (*TemporalSpike) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	var out []models.Anomaly

	for _, org := range g.NodesByType(graph.NodeOrganization) {
		counts := make(map[string]int)
		monthContracts := make(map[string][]string)
		for _, c := range orgContracts(g, org.ID) {
			t, ok := signedAt(c)
			if !ok {
				continue
			}
			key := t.Format("2006-01")
			counts[key]++
			monthContracts[key] = append(monthContracts[key], c.ID)
		}
		if len(counts) < 3 {
			continue
		}

		months := make([]string, 0, len(counts))
		for m := range counts {
			months = append(months, m)
		}
		sort.Strings(months)

		for _, month := range months {
			trailing := trailingCounts(counts, month, 12)
			if len(trailing) < 3 {
				continue
			}
			mean, stddev := meanStddev(trailing)
			if stddev == 0 {
				continue
			}
			z := (float64(counts[month]) - mean) / stddev
			if z <= cfg.SpikeZ {
				continue
			}
			out = append(out, models.Anomaly{
				AnomalyID:     anomalyID(models.AnomalyTemporalSpike, []string{org.ID}, month),
				Kind:          models.AnomalyTemporalSpike,
				Severity:      spikeSeverity(z),
				Confidence:    clamp01(1 - 1/float64(len(trailing))),
				AffectedNodes: append([]string{org.ID}, monthContracts[month]...),
				Evidence: map[string]any{
					"month":         month,
					"count":         counts[month],
					"trailing_mean": mean,
					"trailing_std":  stddev,
					"z_score":       z,
				},
				Recommendation: fmt.Sprintf("inspect the surge of contracts signed in %s", month),
			})
		}
	}
	return out, nil
}

// trailingCounts returns the contract counts of the n months preceding
// month, absent months counting as zero.
func trailingCounts(counts map[string]int, month string, n int) []float64 {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return nil
	}
	var out []float64
	seenAny := false
	for i := 1; i <= n; i++ {
		key := t.AddDate(0, -i, 0).Format("2006-01")
		c, ok := counts[key]
		if ok {
			seenAny = true
		}
		out = append(out, float64(c))
	}
	if !seenAny {
		return nil
	}
	return out
}

func spikeSeverity(z float64) models.Severity {
	switch {
	case z > 5:
		return models.SeverityCritical
	case z > 4:
		return models.SeverityHigh
	case z > 3:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
