package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

var refTime = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	eps := []registry.Endpoint{
		{
			ID: "pncp", Category: registry.CategoryFederal,
			Capabilities:  []string{registry.CapSearchContracts, registry.CapSearchBidding},
			RatePerMinute: 60, Timeout: 10 * time.Second,
			StageEstimate: 4 * time.Second,
		},
		{
			ID: "portal-transparencia", Category: registry.CategoryPortal,
			Capabilities:  []string{registry.CapSearchContracts, registry.CapSearchExpenses, registry.CapSearchSanctions, registry.CapSearchAgreements, registry.CapGeneralInfo},
			RatePerMinute: 90, Timeout: 10 * time.Second,
			StageEstimate: 6 * time.Second,
		},
		{
			ID: "receita-ws", Category: registry.CategoryExternal,
			Capabilities:  []string{registry.CapLookupCNPJ},
			RatePerMinute: 3, Timeout: 15 * time.Second,
			StageEstimate: 5 * time.Second,
		},
		{
			ID: "ibge", Category: registry.CategoryExternal,
			Capabilities:  []string{registry.CapFetchPopulation},
			RatePerMinute: 30, Timeout: 10 * time.Second,
			StageEstimate: 3 * time.Second,
		},
		{
			ID: "tce-sp", Category: registry.CategoryStateTCE, UF: "SP",
			Capabilities:  []string{registry.CapSearchContracts},
			RatePerMinute: 30, Timeout: 10 * time.Second,
		},
	}
	r, err := registry.New(eps, nil)
	require.NoError(t, err)
	return r
}

func TestPlanContractAnomaly(t *testing.T) {
	p := New(testRegistry(t), 0)
	entities := &models.Entities{
		Locations:  []models.Location{{UF: "SP"}},
		Categories: []string{"saúde"},
	}

	plan, err := p.Plan(models.IntentContractAnomalyDetection, entities, refTime)
	require.NoError(t, err)

	assert.Equal(t, models.IntentContractAnomalyDetection, plan.Intent)
	assert.Equal(t, models.ParallelismDependencyDriven, plan.Parallelism)
	assert.NotEmpty(t, plan.PlanID)
	require.NoError(t, Validate(plan))

	fetch := plan.Stage("fetch-contracts")
	require.NotNil(t, fetch)
	assert.Equal(t, models.StageTypeFetch, fetch.Type)
	assert.Equal(t, "SP", fetch.Params["uf"])
	assert.Equal(t, "saúde", fetch.Params["category"])
	// Federal first, then the state endpoint matching the query's UF.
	assert.Equal(t, []string{"pncp", "tce-sp", "portal-transparencia"}, fetch.Endpoints)

	enrich := plan.Stage("enrich-demographics")
	require.NotNil(t, enrich)
	assert.Equal(t, []string{"fetch-contracts"}, enrich.Dependencies)
	assert.True(t, enrich.Independent)

	analyze := plan.Stage("analyze-sanctions")
	require.NotNil(t, analyze)
	assert.Equal(t, []string{"fetch-contracts"}, analyze.Dependencies)
}

func TestPlanStateEndpointFiltering(t *testing.T) {
	p := New(testRegistry(t), 0)

	t.Run("other uf excludes state endpoint", func(t *testing.T) {
		plan, err := p.Plan(models.IntentContractAnomalyDetection, &models.Entities{
			Locations: []models.Location{{UF: "CE"}},
		}, refTime)
		require.NoError(t, err)
		assert.NotContains(t, plan.Stage("fetch-contracts").Endpoints, "tce-sp")
	})

	t.Run("no location keeps state endpoint", func(t *testing.T) {
		plan, err := p.Plan(models.IntentContractAnomalyDetection, &models.Entities{}, refTime)
		require.NoError(t, err)
		assert.Contains(t, plan.Stage("fetch-contracts").Endpoints, "tce-sp")
	})
}

func TestPlanOptionalStageDropped(t *testing.T) {
	p := New(testRegistry(t), 0)

	// No location, so the optional demographics enrichment cannot fill its
	// params and is dropped rather than failing the plan.
	plan, err := p.Plan(models.IntentContractAnomalyDetection, &models.Entities{}, refTime)
	require.NoError(t, err)

	assert.Nil(t, plan.Stage("enrich-demographics"))
	require.NotNil(t, plan.Stage("analyze-sanctions"))
	require.NoError(t, Validate(plan))
}

func TestPlanInsufficientContext(t *testing.T) {
	p := New(testRegistry(t), 0)

	t.Run("supplier investigation without cnpj", func(t *testing.T) {
		_, err := p.Plan(models.IntentSupplierInvestigation, &models.Entities{}, refTime)
		var ice *InsufficientContextError
		require.ErrorAs(t, err, &ice)
		assert.Equal(t, models.IntentSupplierInvestigation, ice.Intent)
		assert.Contains(t, ice.Missing, "cnpj")
	})

	t.Run("geographic analysis without location", func(t *testing.T) {
		_, err := p.Plan(models.IntentGeographicAnalysis, &models.Entities{}, refTime)
		var ice *InsufficientContextError
		require.ErrorAs(t, err, &ice)
		assert.Contains(t, ice.Missing, "location")
	})
}

func TestPlanMissingCapability(t *testing.T) {
	// Registry without a sanctions source: the required analyze stage cannot
	// be placed.
	r, err := registry.New([]registry.Endpoint{
		{
			ID: "pncp", Category: registry.CategoryFederal,
			Capabilities:  []string{registry.CapSearchContracts},
			RatePerMinute: 60, Timeout: 10 * time.Second,
		},
	}, nil)
	require.NoError(t, err)
	p := New(r, 0)

	_, err = p.Plan(models.IntentContractAnomalyDetection, &models.Entities{}, refTime)
	var ice *InsufficientContextError
	require.ErrorAs(t, err, &ice)
	assert.Contains(t, ice.Missing, "capability:"+registry.CapSearchSanctions)
}

func TestPlanUnknownIntentFallsBack(t *testing.T) {
	p := New(testRegistry(t), 0)

	plan, err := p.Plan(models.Intent("made-up"), &models.Entities{}, refTime)
	require.NoError(t, err)
	assert.Equal(t, models.IntentGeneralInvestigation, plan.Intent)
	require.Len(t, plan.Stages, 1)
	assert.Equal(t, "general-info", plan.Stages[0].ID)
}

func TestPlanDroppedDependencyPruned(t *testing.T) {
	p := New(testRegistry(t), 0)

	// Network analysis without a CNPJ drops the optional lookup-supplier
	// stage; nothing may still reference it.
	plan, err := p.Plan(models.IntentNetworkAnalysis, &models.Entities{}, refTime)
	require.NoError(t, err)
	assert.Nil(t, plan.Stage("lookup-supplier"))
	for _, st := range plan.Stages {
		assert.NotContains(t, st.Dependencies, "lookup-supplier")
	}
	require.NoError(t, Validate(plan))
}

func TestPlanTemporalDefaultWindow(t *testing.T) {
	p := New(testRegistry(t), 0)

	plan, err := p.Plan(models.IntentTemporalAnalysis, &models.Entities{}, refTime)
	require.NoError(t, err)

	fetch := plan.Stage("fetch-contracts")
	require.NotNil(t, fetch)
	assert.Equal(t, "2023-06-15", fetch.Params["start_date"])
	assert.Equal(t, "2024-06-15", fetch.Params["end_date"])
}

func TestPlanDeterministicID(t *testing.T) {
	p := New(testRegistry(t), 0)
	entities := &models.Entities{Locations: []models.Location{{UF: "SP"}}}

	first, err := p.Plan(models.IntentContractAnomalyDetection, entities, refTime)
	require.NoError(t, err)
	second, err := p.Plan(models.IntentContractAnomalyDetection, entities, refTime)
	require.NoError(t, err)
	assert.Equal(t, first.PlanID, second.PlanID)

	other, err := p.Plan(models.IntentContractAnomalyDetection, &models.Entities{
		Locations: []models.Location{{UF: "CE"}},
	}, refTime)
	require.NoError(t, err)
	assert.NotEqual(t, first.PlanID, other.PlanID)
}

func TestPlanEstimatedDuration(t *testing.T) {
	p := New(testRegistry(t), 0)

	plan, err := p.Plan(models.IntentContractAnomalyDetection, &models.Entities{
		Locations: []models.Location{{UF: "SP"}},
	}, refTime)
	require.NoError(t, err)

	// Fetch wave 4s (pncp), enrich wave 3s (ibge), analyze wave 6s
	// (portal-transparencia).
	assert.Equal(t, 13*time.Second, plan.EstimatedDuration)
}

func TestValidate(t *testing.T) {
	stage := func(id string, deps ...string) models.ExecutionStage {
		return models.ExecutionStage{ID: id, Type: models.StageTypeFetch, Dependencies: deps}
	}

	t.Run("valid dag", func(t *testing.T) {
		plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{
			stage("a"), stage("b", "a"), stage("c", "a", "b"),
		}}
		assert.NoError(t, Validate(plan))
	})

	t.Run("duplicate id", func(t *testing.T) {
		plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{stage("a"), stage("a")}}
		assert.ErrorContains(t, Validate(plan), "duplicate")
	})

	t.Run("self dependency", func(t *testing.T) {
		plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{stage("a", "a")}}
		assert.ErrorContains(t, Validate(plan), "depends on itself")
	})

	t.Run("unknown dependency", func(t *testing.T) {
		plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{stage("a", "ghost")}}
		assert.ErrorContains(t, Validate(plan), "unknown stage")
	})

	t.Run("cycle", func(t *testing.T) {
		plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{
			stage("a", "c"), stage("b", "a"), stage("c", "b"),
		}}
		assert.ErrorContains(t, Validate(plan), "cycle")
	})
}
