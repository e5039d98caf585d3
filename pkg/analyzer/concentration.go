package analyzer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// VendorConcentration flags organizations that awarded more than the
// configured share of their contract value to a single supplier within a
// rolling 12-month window ending at the organization's latest contract.
type VendorConcentration struct{}

func (*VendorConcentration) Kind() models.AnomalyKind { return models.AnomalyVendorConcentration }

func (*VendorConcentration) Analyze(_ context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error) {
	var out []models.Anomaly

	for _, org := range g.NodesByType(graph.NodeOrganization) {
		contracts := orgContracts(g, org.ID)
		if len(contracts) < 2 {
			continue
		}

		// Window anchor: the newest signed date among the org's contracts.
		// Undated contracts are window-exempt and always count.
		var anchor time.Time
		for _, c := range contracts {
			if t, ok := signedAt(c); ok && t.After(anchor) {
				anchor = t
			}
		}
		windowStart := anchor.AddDate(0, -12, 0)

		total := 0.0
		bySupplier := make(map[string]float64)
		supplierContracts := make(map[string][]string)
		for _, c := range contracts {
			if t, ok := signedAt(c); ok && !anchor.IsZero() && t.Before(windowStart) {
				continue
			}
			value, ok := attrFloat(c, "value")
			if !ok || value <= 0 {
				continue
			}
			sup := contractSupplier(g, c.ID)
			if sup == nil {
				continue
			}
			total += value
			bySupplier[sup.ID] += value
			supplierContracts[sup.ID] = append(supplierContracts[sup.ID], c.ID)
		}
		if total <= 0 || len(bySupplier) == 0 {
			continue
		}

		topID, topValue := "", 0.0
		for id, v := range bySupplier {
			if v > topValue || (v == topValue && id < topID) {
				topID, topValue = id, v
			}
		}
		share := topValue / total
		if share <= cfg.ConcentrationShare {
			continue
		}

		affected := append([]string{org.ID, topID}, supplierContracts[topID]...)
		impact := decimal.NewFromFloat(topValue).Round(2)
		out = append(out, models.Anomaly{
			AnomalyID:     anomalyID(models.AnomalyVendorConcentration, []string{org.ID, topID}, ""),
			Kind:          models.AnomalyVendorConcentration,
			Severity:      concentrationSeverity(share),
			Confidence:    clamp01(1 - 1/float64(len(contracts))),
			AffectedNodes: affected,
			Evidence: map[string]any{
				"top_supplier":   topID,
				"share":          share,
				"window_value":   total,
				"supplier_value": topValue,
				"window_months":  12,
			},
			Recommendation:  "verify competitive procurement for the dominant supplier's awards",
			EstimatedImpact: &impact,
		})
	}
	return out, nil
}

func concentrationSeverity(share float64) models.Severity {
	switch {
	case share > 0.90:
		return models.SeverityCritical
	case share > 0.80:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}
