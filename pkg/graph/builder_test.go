package graph

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

func contractPayload(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal([]map[string]any{
		{
			"number": "42", "year": 2023,
			"org_code": "26000", "org_name": "Ministério da Saúde",
			"cnpj": "12345678000195", "supplier": "Alfa Ltda",
			"value": 150000.0, "unit_price": 12.5,
			"object": "aquisição de medicamentos", "category": "saúde",
			"uf": "SP", "municipality": "São Paulo",
			"signed_at": "2023-03-10",
		},
		{
			"number": "43", "year": 2023,
			"org_code": "26000", "cnpj": "12345678000195",
			"value": 80000.0,
		},
	})
	require.NoError(t, err)
	return payload
}

func testPlan() *models.ExecutionPlan {
	return &models.ExecutionPlan{
		Stages: []models.ExecutionStage{
			{ID: "fetch-contracts", Capability: registry.CapSearchContracts},
			{ID: "lookup-supplier", Capability: registry.CapLookupCNPJ},
		},
	}
}

func TestBuildContracts(t *testing.T) {
	b := NewBuilder(nil)
	fetchedAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	results := []models.StageResult{{
		StageID: "fetch-contracts",
		Status:  models.StageCompleted,
		Records: []models.RawResult{{
			SourceEndpointID: "pncp",
			FetchedAt:        fetchedAt,
			Payload:          contractPayload(t),
		}},
	}}

	g, errs := b.Build(testPlan(), results)
	assert.Empty(t, errs)
	assert.True(t, g.Frozen())

	assert.Len(t, g.NodesByType(NodeContract), 2)
	assert.Len(t, g.NodesByType(NodeSupplier), 1)
	assert.Len(t, g.NodesByType(NodeOrganization), 1)
	assert.Len(t, g.NodesByType(NodeLocation), 1)

	sup := g.Node(NodeID(NodeSupplier, "12345678000195"))
	require.NotNil(t, sup)
	assert.Equal(t, "Alfa Ltda", sup.Attributes["name"])

	// Supplier links to both the organization and each contract.
	neighbors := g.Neighbors(sup.ID, RelSuppliedTo)
	assert.Len(t, neighbors, 3)

	con := g.Node(NodeID(NodeContract, "26000", "2023", "42"))
	require.NotNil(t, con)
	assert.Equal(t, "2023-03-10", con.Attributes["signed_at"])
	assert.Equal(t, []string{"pncp"}, con.Provenance)
}

func TestBuildSkipsUnsucceededStages(t *testing.T) {
	b := NewBuilder(nil)

	results := []models.StageResult{
		{
			StageID: "fetch-contracts",
			Status:  models.StageFailed,
			Records: []models.RawResult{{
				SourceEndpointID: "pncp",
				Payload:          contractPayload(t),
			}},
		},
		{StageID: "lookup-supplier", Status: models.StageSkipped},
	}

	g, errs := b.Build(testPlan(), results)
	assert.Empty(t, errs)
	assert.Zero(t, g.NodeCount())
}

func TestBuildRecordsMapperErrors(t *testing.T) {
	b := NewBuilder(nil)

	results := []models.StageResult{{
		StageID: "fetch-contracts",
		Status:  models.StagePartial,
		Records: []models.RawResult{
			{SourceEndpointID: "pncp", Payload: json.RawMessage(`not json`)},
			{SourceEndpointID: "portal", Payload: contractPayload(t)},
		},
	}}

	g, errs := b.Build(testPlan(), results)
	require.Len(t, errs, 1)
	assert.Equal(t, "pncp", errs[0].EndpointID)
	assert.Equal(t, "internal_error", errs[0].Kind)
	// The good record was still ingested.
	assert.Positive(t, g.NodeCount())
}

func TestBuildUnknownCapability(t *testing.T) {
	b := NewBuilder(nil)

	plan := &models.ExecutionPlan{Stages: []models.ExecutionStage{
		{ID: "odd", Capability: "nonexistent_capability"},
	}}
	results := []models.StageResult{{
		StageID: "odd",
		Status:  models.StageCompleted,
		Records: []models.RawResult{{SourceEndpointID: "x", Payload: json.RawMessage(`[]`)}},
	}}

	_, errs := b.Build(plan, results)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "no shape mapper")
}

func TestBuildWithProvisionalSuppliers(t *testing.T) {
	b := NewBuilder(nil)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	g, errs := b.BuildWith(testPlan(), nil, map[string]string{
		"99999999000191": "receita-ws",
	}, at)
	assert.Empty(t, errs)

	node := g.Node(NodeID(NodeSupplier, "99999999000191"))
	require.NotNil(t, node)
	assert.Equal(t, true, node.Attributes["provisional"])
	assert.Equal(t, []string{"receita-ws"}, node.Provenance)
}

func TestBuildCompanyWithPartners(t *testing.T) {
	b := NewBuilder(nil)
	payload, err := json.Marshal(map[string]any{
		"cnpj": "12345678000195", "name": "Alfa Ltda", "uf": "SP",
		"partners": []map[string]any{
			{"cpf": "52998224725", "name": "Maria"},
			{"cpf": "11144477735", "name": "João"},
		},
	})
	require.NoError(t, err)

	results := []models.StageResult{{
		StageID: "lookup-supplier",
		Status:  models.StageCompleted,
		Records: []models.RawResult{{SourceEndpointID: "receita-ws", Payload: payload}},
	}}

	g, errs := b.Build(testPlan(), results)
	assert.Empty(t, errs)
	assert.Len(t, g.NodesByType(NodePerson), 2)

	sup := NodeID(NodeSupplier, "12345678000195")
	assert.Len(t, g.Neighbors(sup, RelPartnerOf), 2)
}

func TestSummary(t *testing.T) {
	b := NewBuilder(nil)
	results := []models.StageResult{{
		StageID: "fetch-contracts",
		Status:  models.StageCompleted,
		Records: []models.RawResult{{SourceEndpointID: "pncp", Payload: contractPayload(t)}},
	}}
	g, _ := b.Build(testPlan(), results)

	sum := Summary(g)
	assert.Equal(t, g.NodeCount(), sum.NodeCount)
	assert.Equal(t, g.EdgeCount(), sum.EdgeCount)
	assert.Equal(t, 2, sum.ByNodeType[string(NodeContract)])
	assert.Positive(t, sum.ByEdgeType[string(RelSuppliedTo)])
}
