package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Location is a Brazilian geographic reference. UF is always set; the
// municipality is optional (statewide references omit it).
type Location struct {
	UF           string `json:"uf"`
	Municipality string `json:"municipality,omitempty"`
}

// DateRange is an inclusive date interval with Start <= End.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the range (inclusive).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Entities is the heterogeneous bag of structured values extracted from a
// query. Sets are represented as sorted slices so extraction output is
// deterministic. String values keep display casing and diacritics; matching
// uses folded copies held by the extractor, not stored here.
type Entities struct {
	CNPJs         []string          `json:"cnpjs,omitempty"`
	CPFs          []string          `json:"cpfs,omitempty"`
	DateRange     *DateRange        `json:"date_range,omitempty"`
	Money         []decimal.Decimal `json:"money,omitempty"`
	Locations     []Location        `json:"locations,omitempty"`
	Organizations []string          `json:"organizations,omitempty"`
	Categories    []string          `json:"categories,omitempty"`
}

// Empty reports whether no entity of any kind was extracted.
func (e *Entities) Empty() bool {
	return len(e.CNPJs) == 0 &&
		len(e.CPFs) == 0 &&
		e.DateRange == nil &&
		len(e.Money) == 0 &&
		len(e.Locations) == 0 &&
		len(e.Organizations) == 0 &&
		len(e.Categories) == 0
}

// MinMoney returns the smallest extracted monetary value, or zero if none.
// Planners use it as the value floor for contract searches.
func (e *Entities) MinMoney() decimal.Decimal {
	if len(e.Money) == 0 {
		return decimal.Zero
	}
	min := e.Money[0]
	for _, m := range e.Money[1:] {
		if m.LessThan(min) {
			min = m
		}
	}
	return min
}
