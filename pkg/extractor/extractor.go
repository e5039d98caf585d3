// Package extractor pulls structured entities (CNPJs, CPFs, dates, money,
// locations, categories, organizations) out of free-text queries. The
// extractors run independently; output is deterministic for the same input
// and reference clock. An empty result is legal.
package extractor

import (
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// Extractor is stateless; the zero value is ready to use. It exists as a
// type so callers depend on behavior, not free functions.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor { return &Extractor{} }

// Extract runs every entity extractor over the query. ref anchors relative
// date expressions ("últimos 6 meses"); callers pass a fixed clock so the
// same query always yields the same range.
func (x *Extractor) Extract(query string, ref time.Time) *models.Entities {
	folded := Fold(query)

	cnpjs, cnpjSpans := findCNPJs(query)

	return &models.Entities{
		CNPJs:         cnpjs,
		CPFs:          findCPFs(query, cnpjSpans),
		DateRange:     extractDateRange(folded, ref),
		Money:         extractMoney(folded),
		Locations:     extractLocations(query, folded),
		Organizations: extractOrganizations(query),
		Categories:    extractCategories(folded),
	}
}
