// Package classifier maps free-text queries onto the closed investigation
// intent set. Scoring is rule-based and deterministic: weighted keyword
// matching over folded text, precedence rules for overlapping vocabularies,
// then a softmax over the nonzero scores.
package classifier

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/transparencia-br/fiscal/pkg/extractor"
	"github.com/transparencia-br/fiscal/pkg/models"
)

// keyword is one weighted trigger. Multi-word triggers match as phrases.
type keyword struct {
	phrase string
	weight float64
}

// vocabulary holds the per-intent trigger sets. GeneralInvestigation has no
// triggers; it is the zero-score fallback.
var vocabulary = map[models.Intent][]keyword{
	models.IntentContractAnomalyDetection: {
		{"contrato", 3}, {"contratos", 3}, {"licitacao", 3}, {"licitacoes", 3},
		{"pregao", 2}, {"superfaturamento", 4}, {"sobrepreco", 4},
		{"irregularidade", 3}, {"irregularidades", 3}, {"anomalia", 3},
		{"anomalias", 3}, {"suspeito", 2}, {"suspeitos", 2}, {"analise", 1},
		{"analisar", 1},
	},
	models.IntentSupplierInvestigation: {
		{"fornecedor", 4}, {"fornecedores", 4}, {"empresa", 2},
		{"empresas", 2}, {"contratada", 2}, {"contratadas", 2},
		{"cnpj", 3},
	},
	models.IntentBudgetAnalysis: {
		{"orcamento", 4}, {"orcamentario", 4}, {"orcamentaria", 4},
		{"despesa", 2}, {"despesas", 2}, {"gasto", 2}, {"gastos", 2},
		{"verba", 3}, {"verbas", 3}, {"repasse", 3}, {"repasses", 3},
		{"emenda", 3}, {"emendas", 3},
	},
	models.IntentCorruptionIndicators: {
		{"corrupcao", 5}, {"fraude", 4}, {"fraudes", 4}, {"desvio", 4},
		{"desvios", 4}, {"propina", 5}, {"lavagem", 4}, {"conluio", 4},
		{"cartel", 3}, {"nepotismo", 4},
	},
	models.IntentGeographicAnalysis: {
		{"regiao", 3}, {"regioes", 3}, {"geografico", 4}, {"geografica", 4},
		{"mapa", 3}, {"per capita", 3}, {"distribuicao regional", 4},
		{"por municipio", 3}, {"por estado", 3},
	},
	models.IntentTemporalAnalysis: {
		{"evolucao", 3}, {"tendencia", 3}, {"tendencias", 3},
		{"historico", 3}, {"historica", 3}, {"ao longo", 3},
		{"serie temporal", 4}, {"crescimento", 2}, {"mensal", 2},
		{"anual", 2}, {"trimestral", 2},
	},
	models.IntentNetworkAnalysis: {
		{"rede", 4}, {"redes", 4}, {"vinculo", 4}, {"vinculos", 4},
		{"relacionamento", 3}, {"relacionamentos", 3}, {"conexao", 3},
		{"conexoes", 3}, {"socios", 3}, {"socio", 3}, {"ligacao", 3},
		{"ligacoes", 3}, {"grafo", 4},
	},
}

// cnpjSupplierBoost is added to SupplierInvestigation when a checksum-valid
// CNPJ is present: an identified company makes the query a supplier probe.
const cnpjSupplierBoost = 4

var punctuation = regexp.MustCompile(`[!?;:()\[\]{}"']`)
var whitespace = regexp.MustCompile(`\s+`)

// Classifier is stateless and safe for concurrent use.
type Classifier struct{}

// New returns a Classifier.
func New() *Classifier { return &Classifier{} }

// Classify scores the query against every intent vocabulary and returns the
// primary intent with its confidence and all nonzero alternatives. Equal
// inputs (modulo Unicode normalization) yield identical output.
func (c *Classifier) Classify(query string) models.Classification {
	normalized := normalize(query)
	if normalized == "" {
		return models.Classification{
			Intent:     models.IntentGeneralInvestigation,
			Confidence: 0.5,
		}
	}

	hasCNPJ := extractor.HasCNPJ(query)

	scores := make(map[models.Intent]float64, len(vocabulary))
	for _, intent := range models.AllIntents {
		total := 0.0
		for _, kw := range vocabulary[intent] {
			total += float64(countPhrase(normalized, kw.phrase)) * kw.weight
		}
		if total > 0 {
			scores[intent] = total
		}
	}

	applyPrecedence(scores, normalized, hasCNPJ)

	if len(scores) == 0 {
		return models.Classification{
			Intent:     models.IntentGeneralInvestigation,
			Confidence: 0.5,
		}
	}

	ranked := softmax(scores)
	primary := ranked[0]
	return models.Classification{
		Intent:       primary.Intent,
		Confidence:   primary.Confidence,
		Alternatives: ranked[1:],
	}
}

// applyPrecedence disambiguates overlapping vocabularies. A query naming
// both contracts and suppliers is a supplier investigation only when it
// identifies a company; otherwise the contract reading wins.
func applyPrecedence(scores map[models.Intent]float64, normalized string, hasCNPJ bool) {
	if hasCNPJ {
		scores[models.IntentSupplierInvestigation] += cnpjSupplierBoost
	}

	hasContract := countPhrase(normalized, "contrato") > 0 || countPhrase(normalized, "contratos") > 0
	hasSupplier := countPhrase(normalized, "fornecedor") > 0 || countPhrase(normalized, "fornecedores") > 0
	if hasContract && hasSupplier && !hasCNPJ {
		// Nudge the contract reading above the supplier one without
		// erasing the supplier signal from the alternatives.
		if scores[models.IntentSupplierInvestigation] >= scores[models.IntentContractAnomalyDetection] {
			scores[models.IntentContractAnomalyDetection] = scores[models.IntentSupplierInvestigation] + 1
		}
	}
}

// softmax converts raw scores into confidences summing to 1, ordered by
// confidence descending with intent order as the deterministic tiebreak.
func softmax(scores map[models.Intent]float64) []models.IntentScore {
	// Shift by the max score before exponentiating for numeric stability.
	max := math.Inf(-1)
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	var sum float64
	exp := make(map[models.Intent]float64, len(scores))
	for intent, s := range scores {
		e := math.Exp(s - max)
		exp[intent] = e
		sum += e
	}

	out := make([]models.IntentScore, 0, len(scores))
	for _, intent := range models.AllIntents {
		if e, ok := exp[intent]; ok {
			out = append(out, models.IntentScore{Intent: intent, Confidence: e / sum})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// normalize folds case and diacritics, strips most punctuation, and
// collapses whitespace.
func normalize(query string) string {
	s := extractor.Fold(query)
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// countPhrase counts word-boundary occurrences of phrase in text.
func countPhrase(text, phrase string) int {
	count := 0
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return count
		}
		start := idx + i
		end := start + len(phrase)
		beforeOK := start == 0 || text[start-1] == ' '
		afterOK := end == len(text) || text[end] == ' ' || !isLetter(text[end])
		if beforeOK && afterOK {
			count++
		}
		idx = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
