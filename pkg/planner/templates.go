package planner

import (
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// paramFill injects entity values into stage params. It returns the params
// and the names of required fields that were missing.
type paramFill func(e *models.Entities, ref time.Time) (map[string]any, []string)

// stageSpec is one stage in an intent's plan template.
type stageSpec struct {
	id         string
	typ        models.StageType
	capability string
	deps       []string
	fill       paramFill
	// optional stages are dropped (not planned) when their required
	// parameters are missing; non-optional stages trigger
	// InsufficientContext instead.
	optional bool
	critical bool
	// independent stages survive upstream failure (ordering only).
	independent bool
}

// templates maps each intent to its ordered stage specifications. The order
// is already topological; the planner preserves it.
var templates = map[models.Intent][]stageSpec{
	models.IntentContractAnomalyDetection: {
		{
			id: "fetch-contracts", typ: models.StageTypeFetch,
			capability: registry.CapSearchContracts,
			fill:       fillContractSearch,
		},
		{
			id: "enrich-demographics", typ: models.StageTypeEnrich,
			capability: registry.CapFetchPopulation,
			deps:       []string{"fetch-contracts"},
			fill:       fillDemographics,
			optional:   true, independent: true,
		},
		{
			id: "analyze-sanctions", typ: models.StageTypeAnalyze,
			capability: registry.CapSearchSanctions,
			deps:       []string{"fetch-contracts"},
			fill:       fillSupplierRef,
		},
	},
	models.IntentSupplierInvestigation: {
		{
			id: "lookup-supplier", typ: models.StageTypeFetch,
			capability: registry.CapLookupCNPJ,
			fill:       fillCNPJ, critical: false,
		},
		{
			id: "fetch-supplier-contracts", typ: models.StageTypeFetch,
			capability: registry.CapSearchContracts,
			deps:       []string{"lookup-supplier"},
			fill:       fillContractSearch, independent: true,
		},
		{
			id: "analyze-sanctions", typ: models.StageTypeAnalyze,
			capability: registry.CapSearchSanctions,
			deps:       []string{"lookup-supplier"},
			fill:       fillSupplierRef, independent: true,
		},
	},
	models.IntentBudgetAnalysis: {
		{
			id: "fetch-expenses", typ: models.StageTypeFetch,
			capability: registry.CapSearchExpenses,
			fill:       fillContractSearch,
		},
		{
			id: "fetch-agreements", typ: models.StageTypeFetch,
			capability: registry.CapSearchAgreements,
			fill:       fillContractSearch,
		},
		{
			id: "enrich-demographics", typ: models.StageTypeEnrich,
			capability: registry.CapFetchPopulation,
			deps:       []string{"fetch-expenses"},
			fill:       fillDemographics,
			optional:   true, independent: true,
		},
	},
	models.IntentCorruptionIndicators: {
		{
			id: "fetch-contracts", typ: models.StageTypeFetch,
			capability: registry.CapSearchContracts,
			fill:       fillContractSearch,
		},
		{
			id: "fetch-bidding", typ: models.StageTypeFetch,
			capability: registry.CapSearchBidding,
			fill:       fillContractSearch,
		},
		{
			id: "analyze-sanctions", typ: models.StageTypeAnalyze,
			capability: registry.CapSearchSanctions,
			deps:       []string{"fetch-contracts", "fetch-bidding"},
			fill:       fillSupplierRef, independent: true,
		},
	},
	models.IntentGeographicAnalysis: {
		{
			id: "fetch-contracts", typ: models.StageTypeFetch,
			capability: registry.CapSearchContracts,
			fill:       fillGeographic,
		},
		{
			id: "enrich-demographics", typ: models.StageTypeEnrich,
			capability: registry.CapFetchPopulation,
			deps:       []string{"fetch-contracts"},
			fill:       fillDemographics,
		},
	},
	models.IntentTemporalAnalysis: {
		{
			id: "fetch-contracts", typ: models.StageTypeFetch,
			capability: registry.CapSearchContracts,
			fill:       fillTemporal,
		},
		{
			id: "fetch-expenses", typ: models.StageTypeFetch,
			capability: registry.CapSearchExpenses,
			fill:       fillTemporal,
		},
	},
	models.IntentNetworkAnalysis: {
		{
			id: "fetch-bidding", typ: models.StageTypeFetch,
			capability: registry.CapSearchBidding,
			fill:       fillContractSearch,
		},
		{
			id: "lookup-supplier", typ: models.StageTypeFetch,
			capability: registry.CapLookupCNPJ,
			fill:       fillCNPJ, optional: true,
		},
		{
			id: "analyze-sanctions", typ: models.StageTypeAnalyze,
			capability: registry.CapSearchSanctions,
			deps:       []string{"fetch-bidding"},
			fill:       fillSupplierRef, independent: true,
		},
	},
	models.IntentGeneralInvestigation: {
		{
			id: "general-info", typ: models.StageTypeFetch,
			capability: registry.CapGeneralInfo,
			fill:       fillGeneral,
		},
	},
}

const dateLayout = "2006-01-02"

// fillContractSearch injects whatever search filters the query provided.
// Nothing is required: a bare query searches wide.
func fillContractSearch(e *models.Entities, _ time.Time) (map[string]any, []string) {
	params := map[string]any{}
	if e.DateRange != nil {
		params["start_date"] = e.DateRange.Start.Format(dateLayout)
		params["end_date"] = e.DateRange.End.Format(dateLayout)
	}
	if len(e.Locations) > 0 {
		params["uf"] = e.Locations[0].UF
		if e.Locations[0].Municipality != "" {
			params["municipality"] = e.Locations[0].Municipality
		}
	}
	if len(e.Categories) > 0 {
		params["category"] = e.Categories[0]
	}
	if min := e.MinMoney(); min.IsPositive() {
		params["min_value"] = min.String()
	}
	if len(e.CNPJs) > 0 {
		params["cnpj"] = e.CNPJs[0]
	}
	if len(e.Organizations) > 0 {
		params["organization"] = e.Organizations[0]
	}
	return params, nil
}

// fillCNPJ requires an identified company.
func fillCNPJ(e *models.Entities, _ time.Time) (map[string]any, []string) {
	if len(e.CNPJs) == 0 {
		return nil, []string{"cnpj"}
	}
	return map[string]any{"cnpj": e.CNPJs[0]}, nil
}

// fillSupplierRef passes supplier identity when known; the sanctions search
// degrades to organization-level queries otherwise.
func fillSupplierRef(e *models.Entities, _ time.Time) (map[string]any, []string) {
	params := map[string]any{}
	if len(e.CNPJs) > 0 {
		params["cnpj"] = e.CNPJs[0]
	}
	if len(e.Organizations) > 0 {
		params["organization"] = e.Organizations[0]
	}
	return params, nil
}

// fillDemographics requires a location to resolve population for.
func fillDemographics(e *models.Entities, _ time.Time) (map[string]any, []string) {
	if len(e.Locations) == 0 {
		return nil, []string{"location"}
	}
	params := map[string]any{"uf": e.Locations[0].UF}
	if e.Locations[0].Municipality != "" {
		params["municipality"] = e.Locations[0].Municipality
	}
	return params, nil
}

// fillGeographic requires a location: a geographic analysis with no place
// named is unanswerable.
func fillGeographic(e *models.Entities, ref time.Time) (map[string]any, []string) {
	if len(e.Locations) == 0 {
		return nil, []string{"location"}
	}
	params, _ := fillContractSearch(e, ref)
	return params, nil
}

// fillTemporal defaults the window to the trailing 12 months when the query
// names no dates.
func fillTemporal(e *models.Entities, ref time.Time) (map[string]any, []string) {
	params, _ := fillContractSearch(e, ref)
	if e.DateRange == nil {
		end := ref.UTC().Truncate(24 * time.Hour)
		params["start_date"] = end.AddDate(-1, 0, 0).Format(dateLayout)
		params["end_date"] = end.Format(dateLayout)
	}
	return params, nil
}

func fillGeneral(e *models.Entities, _ time.Time) (map[string]any, []string) {
	return map[string]any{}, nil
}
