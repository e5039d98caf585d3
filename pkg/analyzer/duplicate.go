package analyzer

import (
	"context"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// DuplicateContract flags near-identical contract pairs inside the same
// organization and year: values within the configured tolerance and object
// descriptions whose token sets overlap above the Jaccard threshold.
type DuplicateContract struct{}

func (*DuplicateContract) Kind() models.AnomalyKind { return models.AnomalyDuplicateContract }

func (*DuplicateContract) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	type candidate struct {
		node   *graph.Node
		value  float64
		tokens map[string]bool
	}

	var out []models.Anomaly
	for _, org := range g.NodesByType(graph.NodeOrganization) {
		byYear := make(map[int][]candidate)
		for _, c := range orgContracts(g, org.ID) {
			value, ok := attrFloat(c, "value")
			if !ok || value <= 0 {
				continue
			}
			object := attrString(c, "object")
			if object == "" {
				continue
			}
			year, _ := attrInt(c, "year")
			byYear[year] = append(byYear[year], candidate{node: c, value: value, tokens: tokens(object)})
		}

		for year, group := range byYear {
			for i := 0; i < len(group); i++ {
				for j := i + 1; j < len(group); j++ {
					a, b := group[i], group[j]
					larger := math.Max(a.value, b.value)
					if larger == 0 || math.Abs(a.value-b.value)/larger > cfg.DuplicateValueTolerance {
						continue
					}
					sim := jaccard(a.tokens, b.tokens)
					if sim <= cfg.DuplicateJaccard {
						continue
					}
					impact := decimal.NewFromFloat(math.Min(a.value, b.value)).Round(2)
					pair := []string{a.node.ID, b.node.ID}
					out = append(out, models.Anomaly{
						AnomalyID:     anomalyID(models.AnomalyDuplicateContract, pair, fmt.Sprintf("%d", year)),
						Kind:          models.AnomalyDuplicateContract,
						Severity:      models.SeverityHigh,
						Confidence:    sim,
						AffectedNodes: append([]string{org.ID}, pair...),
						Evidence: map[string]any{
							"year":       year,
							"value_a":    a.value,
							"value_b":    b.value,
							"similarity": sim,
						},
						Recommendation:  "check whether the two contracts cover the same delivery",
						EstimatedImpact: &impact,
					})
				}
			}
		}
	}
	return out, nil
}
