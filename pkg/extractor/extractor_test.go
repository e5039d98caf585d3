package extractor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transparencia-br/fiscal/pkg/models"
)

var ref = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func TestExtractCNPJ(t *testing.T) {
	x := New()

	t.Run("formatted CNPJ is canonicalized", func(t *testing.T) {
		e := x.Extract("contratos da empresa 12.345.678/0001-95", ref)
		require.Len(t, e.CNPJs, 1)
		assert.Equal(t, "12345678000195", e.CNPJs[0])
	})

	t.Run("bare digits with valid checksum", func(t *testing.T) {
		e := x.Extract("fornecedor 12345678000195 em foco", ref)
		require.Len(t, e.CNPJs, 1)
		assert.Equal(t, "12345678000195", e.CNPJs[0])
	})

	t.Run("invalid checksum is rejected", func(t *testing.T) {
		e := x.Extract("empresa 12.345.678/0001-96", ref)
		assert.Empty(t, e.CNPJs)
	})

	t.Run("repeated digits are rejected", func(t *testing.T) {
		e := x.Extract("cnpj 11.111.111/1111-11", ref)
		assert.Empty(t, e.CNPJs)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		e := x.Extract("12.345.678/0001-95 e tambem 12345678000195", ref)
		assert.Len(t, e.CNPJs, 1)
	})
}

func TestExtractCPF(t *testing.T) {
	x := New()

	t.Run("valid CPF", func(t *testing.T) {
		e := x.Extract("socio com cpf 529.982.247-25", ref)
		require.Len(t, e.CPFs, 1)
		assert.Equal(t, "52998224725", e.CPFs[0])
	})

	t.Run("invalid CPF checksum", func(t *testing.T) {
		e := x.Extract("cpf 529.982.247-26", ref)
		assert.Empty(t, e.CPFs)
	})
}

func TestExtractDates(t *testing.T) {
	x := New()

	t.Run("relative months anchor on reference time", func(t *testing.T) {
		e := x.Extract("licitações dos últimos 6 meses", ref)
		require.NotNil(t, e.DateRange)
		assert.Equal(t, ref.AddDate(0, -6, 0).Truncate(24*time.Hour), e.DateRange.Start)
		assert.Equal(t, ref.Truncate(24*time.Hour), e.DateRange.End)
	})

	t.Run("explicit dmy range", func(t *testing.T) {
		e := x.Extract("gastos de 01/01/2023 até 31/03/2023", ref)
		require.NotNil(t, e.DateRange)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), e.DateRange.Start)
		assert.Equal(t, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), e.DateRange.End)
	})

	t.Run("bare year expands to full year", func(t *testing.T) {
		e := x.Extract("contratos de 2023", ref)
		require.NotNil(t, e.DateRange)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), e.DateRange.Start)
		assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), e.DateRange.End)
	})

	t.Run("invalid calendar date degrades to bare year", func(t *testing.T) {
		e := x.Extract("em 31/02/2023 nada aconteceu", ref)
		require.NotNil(t, e.DateRange)
		assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), e.DateRange.Start)
		assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), e.DateRange.End)
	})
}

func TestExtractMoney(t *testing.T) {
	x := New()

	t.Run("brl with multiplier", func(t *testing.T) {
		e := x.Extract("contratos acima de R$ 1,5 milhão", ref)
		require.Len(t, e.Money, 1)
		assert.True(t, e.Money[0].Equal(decimal.RequireFromString("1500000")))
	})

	t.Run("plain brl amount", func(t *testing.T) {
		e := x.Extract("valor de R$ 2.500,75 pago", ref)
		require.Len(t, e.Money, 1)
		assert.True(t, e.Money[0].Equal(decimal.RequireFromString("2500.75")))
	})

	t.Run("bare number without currency marker ignored", func(t *testing.T) {
		e := x.Extract("processo numero 1500000", ref)
		assert.Empty(t, e.Money)
	})
}

func TestExtractLocations(t *testing.T) {
	x := New()

	t.Run("uf code uppercase only", func(t *testing.T) {
		e := x.Extract("obras em SP no ano passado", ref)
		require.NotEmpty(t, e.Locations)
		assert.Contains(t, e.Locations, models.Location{UF: "SP"})
	})

	t.Run("state name with diacritics folded", func(t *testing.T) {
		e := x.Extract("hospitais do Ceará", ref)
		assert.Contains(t, e.Locations, models.Location{UF: "CE"})
	})

	t.Run("capital resolves to municipality", func(t *testing.T) {
		e := x.Extract("merenda escolar em Fortaleza", ref)
		assert.Contains(t, e.Locations, models.Location{UF: "CE", Municipality: "Fortaleza"})
	})
}

func TestExtractVocabulary(t *testing.T) {
	x := New()

	t.Run("spending category", func(t *testing.T) {
		e := x.Extract("compras de medicamentos superfaturadas", ref)
		assert.Contains(t, e.Categories, "saúde")
	})

	t.Run("organization pattern", func(t *testing.T) {
		e := x.Extract("contratos do Ministério da Saúde", ref)
		assert.Contains(t, e.Organizations, "Ministério da Saúde")
	})
}

func TestExtractEmptyQuery(t *testing.T) {
	e := New().Extract("", ref)
	assert.True(t, e.Empty())
}
