package extractor

import (
	"regexp"
	"sort"
	"strings"
)

// spendingCategories maps folded category triggers to the canonical
// category label used downstream by the planner and analyzers.
var spendingCategories = map[string]string{
	"saude":              "saúde",
	"hospital":           "saúde",
	"medicamento":        "saúde",
	"medicamentos":       "saúde",
	"educacao":           "educação",
	"escola":             "educação",
	"escolas":            "educação",
	"merenda":            "educação",
	"infraestrutura":     "infraestrutura",
	"obra":               "infraestrutura",
	"obras":              "infraestrutura",
	"pavimentacao":       "infraestrutura",
	"seguranca":          "segurança",
	"policiamento":       "segurança",
	"transporte":         "transporte",
	"saneamento":         "saneamento",
	"esgoto":             "saneamento",
	"tecnologia":         "tecnologia",
	"informatica":        "tecnologia",
	"software":           "tecnologia",
	"cultura":            "cultura",
	"esporte":            "esporte",
	"assistencia social": "assistência social",
	"meio ambiente":      "meio ambiente",
	"agricultura":        "agricultura",
	"habitacao":          "habitação",
	"energia":            "energia",
	"alimentacao":        "alimentação",
}

// organizationPatterns match institutional names in the original (unfolded)
// text so display casing is preserved. The trailing group stops at
// punctuation or a lowercase connective run ending the proper name.
var organizationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(Minist[ée]rio\s+(?:d[aeo]s?\s+)?[A-ZÀ-Ú][\wÀ-ú]*(?:\s+(?:d[aeo]s?|e)\s+[A-ZÀ-Ú][\wÀ-ú]*|\s+[A-ZÀ-Ú][\wÀ-ú]*)*)`),
	regexp.MustCompile(`\b(Secretaria\s+(?:d[aeo]s?\s+)?[A-ZÀ-Ú][\wÀ-ú]*(?:\s+(?:d[aeo]s?|e)\s+[A-ZÀ-Ú][\wÀ-ú]*|\s+[A-ZÀ-Ú][\wÀ-ú]*)*)`),
	regexp.MustCompile(`\b(Prefeitura\s+de\s+[A-ZÀ-Ú][\wÀ-ú]*(?:\s+(?:d[aeo]s?|e)\s+[A-ZÀ-Ú][\wÀ-ú]*|\s+[A-ZÀ-Ú][\wÀ-ú]*)*)`),
	regexp.MustCompile(`\b(Tribunal\s+de\s+Contas\s+d[aeo]\s+[A-ZÀ-Ú][\wÀ-ú]*(?:\s+[A-ZÀ-Ú][\wÀ-ú]*)*)`),
}

// knownOrganizations is the acronym whitelist, matched case-sensitively on
// the original text.
var knownOrganizations = []string{
	"INSS", "IBGE", "FNDE", "FUNASA", "DNIT", "INCRA", "IBAMA",
	"ANVISA", "CGU", "TCU", "SUS", "FUNAI", "DATASUS",
}

// extractCategories returns canonical category labels triggered by the
// folded text, sorted for determinism.
func extractCategories(folded string) []string {
	found := make(map[string]bool)
	for trigger, category := range spendingCategories {
		if containsPhrase(folded, trigger) {
			found[category] = true
		}
	}
	out := make([]string, 0, len(found))
	for c := range found {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// extractOrganizations returns institutional names from the original text,
// display casing preserved, sorted for determinism.
func extractOrganizations(original string) []string {
	found := make(map[string]bool)
	for _, re := range organizationPatterns {
		for _, m := range re.FindAllStringSubmatch(original, -1) {
			name := strings.TrimSpace(m[1])
			if name != "" {
				found[name] = true
			}
		}
	}
	for _, acronym := range knownOrganizations {
		if containsPhrase(original, acronym) {
			found[acronym] = true
		}
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
