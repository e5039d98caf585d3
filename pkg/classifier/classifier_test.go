package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/models"
)

func TestClassifySingleVocabulary(t *testing.T) {
	c := New()

	got := c.Classify("contratos suspeitos de superfaturamento na saúde")

	assert.Equal(t, models.IntentContractAnomalyDetection, got.Intent)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)
	assert.Empty(t, got.Alternatives)
}

func TestClassifyEmptyAndUnmatched(t *testing.T) {
	c := New()

	t.Run("empty query", func(t *testing.T) {
		got := c.Classify("")
		assert.Equal(t, models.IntentGeneralInvestigation, got.Intent)
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	})

	t.Run("whitespace only", func(t *testing.T) {
		got := c.Classify("   \t ")
		assert.Equal(t, models.IntentGeneralInvestigation, got.Intent)
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
	})

	t.Run("no vocabulary hit", func(t *testing.T) {
		got := c.Classify("obras municipais concluidas")
		assert.Equal(t, models.IntentGeneralInvestigation, got.Intent)
		assert.InDelta(t, 0.5, got.Confidence, 1e-9)
		assert.Empty(t, got.Alternatives)
	})
}

func TestClassifyCNPJBoostsSupplier(t *testing.T) {
	c := New()

	// contratos scores 3 for the contract intent; empresa scores 2 for the
	// supplier intent, and the valid CNPJ adds 4 more.
	got := c.Classify("contratos da empresa 12.345.678/0001-95")

	assert.Equal(t, models.IntentSupplierInvestigation, got.Intent)
	require.Len(t, got.Alternatives, 1)
	assert.Equal(t, models.IntentContractAnomalyDetection, got.Alternatives[0].Intent)
	assert.Greater(t, got.Confidence, got.Alternatives[0].Confidence)
	assert.InDelta(t, 1.0, got.Confidence+got.Alternatives[0].Confidence, 1e-9)
}

func TestClassifyInvalidCNPJDoesNotBoost(t *testing.T) {
	c := New()

	// Bad check digits: the CNPJ is ignored, so contratos alone wins.
	got := c.Classify("contratos da empresa 12.345.678/0001-96")

	assert.Equal(t, models.IntentContractAnomalyDetection, got.Intent)
}

func TestClassifyContractSupplierPrecedence(t *testing.T) {
	c := New()

	// Both vocabularies fire and no company is identified, so the contract
	// reading is nudged above the supplier one.
	got := c.Classify("contratos com fornecedores irregulares")

	assert.Equal(t, models.IntentContractAnomalyDetection, got.Intent)
	require.NotEmpty(t, got.Alternatives)
	assert.Equal(t, models.IntentSupplierInvestigation, got.Alternatives[0].Intent)
}

func TestClassifyScenarios(t *testing.T) {
	c := New()

	cases := []struct {
		name  string
		query string
		want  models.Intent
	}{
		{"temporal", "evolução dos gastos ao longo dos anos", models.IntentTemporalAnalysis},
		{"network", "rede de sócios e vínculos entre empresas", models.IntentNetworkAnalysis},
		{"corruption", "indícios de fraude e desvio de verbas na prefeitura", models.IntentCorruptionIndicators},
		{"budget", "análise do orçamento e das emendas parlamentares", models.IntentBudgetAnalysis},
		{"geographic", "distribuição regional dos repasses por município", models.IntentGeographicAnalysis},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := c.Classify(tc.query)
			assert.Equal(t, tc.want, got.Intent, "query %q", tc.query)
		})
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New()
	query := "superfaturamento em contratos de fornecedores com vínculos"

	first := c.Classify(query)
	second := c.Classify(query)

	assert.Equal(t, first, second)
}

func TestClassifyAlternativesSumToOne(t *testing.T) {
	c := New()

	got := c.Classify("fraude em contratos e repasses mensais")

	sum := got.Confidence
	for _, alt := range got.Alternatives {
		sum += alt.Confidence
		assert.Greater(t, got.Confidence, 0.0)
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}
