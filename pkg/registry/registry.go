// Package registry holds the static catalog of external government API
// endpoints the federation layer draws from. The catalog is validated once
// at construction and immutable afterwards, so concurrent reads need no
// locking.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Category groups endpoints by origin. Category priority (the order used by
// ByCapability) is part of the registry configuration.
type Category string

const (
	CategoryFederal   Category = "federal"
	CategoryStateTCE  Category = "state-tce"
	CategoryStateCKAN Category = "state-ckan"
	CategoryPortal    Category = "portal"
	CategoryExternal  Category = "external"
)

// Well-known capabilities. The set is open: state portals advertise
// additional capabilities and the planner only ever asks by name.
const (
	CapSearchContracts  = "search_contracts"
	CapLookupCNPJ       = "lookup_cnpj"
	CapSearchBidding    = "search_bidding"
	CapSearchExpenses   = "search_expenses"
	CapFetchPopulation  = "fetch_population"
	CapSearchSanctions  = "search_sanctions"
	CapSearchAgreements = "search_agreements"
	CapGeneralInfo      = "general_info"
)

// Endpoint is one registry entry describing an external API.
type Endpoint struct {
	ID               string
	Category         Category
	Capabilities     []string
	RatePerMinute    int
	Timeout          time.Duration
	CircuitThreshold int
	Fallbacks        []string
	// UF restricts a state-level endpoint to one federative unit; empty for
	// nationwide sources.
	UF string
	// StageEstimate is the planner's declared duration estimate for one
	// stage against this endpoint.
	StageEstimate time.Duration
}

// HasCapability reports whether the endpoint advertises cap.
func (e *Endpoint) HasCapability(cap string) bool {
	for _, c := range e.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned by Lookup for an unknown endpoint id.
	ErrNotFound = errors.New("endpoint not found")
	// ErrRegistryInvalid is returned at construction when the catalog fails
	// validation (unresolved or cyclic fallback references, bad limits).
	ErrRegistryInvalid = errors.New("registry invalid")
)

// Registry is the immutable endpoint catalog.
type Registry struct {
	endpoints    map[string]*Endpoint
	byCapability map[string][]*Endpoint
	priority     map[Category]int
}

// DefaultCategoryPriority prefers federal sources, then state courts of
// accounts, then state open-data portals, then transparency portals, then
// external references.
var DefaultCategoryPriority = map[Category]int{
	CategoryFederal:   0,
	CategoryStateTCE:  1,
	CategoryStateCKAN: 2,
	CategoryPortal:    3,
	CategoryExternal:  4,
}

// New validates the catalog and builds the registry. Validation is
// fail-fast: any unresolved fallback, fallback cycle, or non-positive rate
// or timeout rejects the whole catalog.
func New(endpoints []Endpoint, priority map[Category]int) (*Registry, error) {
	if priority == nil {
		priority = DefaultCategoryPriority
	}
	r := &Registry{
		endpoints:    make(map[string]*Endpoint, len(endpoints)),
		byCapability: make(map[string][]*Endpoint),
		priority:     priority,
	}

	for i := range endpoints {
		ep := endpoints[i]
		if ep.ID == "" {
			return nil, fmt.Errorf("%w: endpoint with empty id", ErrRegistryInvalid)
		}
		if _, dup := r.endpoints[ep.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate endpoint id %q", ErrRegistryInvalid, ep.ID)
		}
		if ep.RatePerMinute <= 0 {
			return nil, fmt.Errorf("%w: endpoint %q has non-positive rate", ErrRegistryInvalid, ep.ID)
		}
		if ep.Timeout <= 0 {
			return nil, fmt.Errorf("%w: endpoint %q has non-positive timeout", ErrRegistryInvalid, ep.ID)
		}
		if len(ep.Capabilities) == 0 {
			return nil, fmt.Errorf("%w: endpoint %q advertises no capabilities", ErrRegistryInvalid, ep.ID)
		}
		r.endpoints[ep.ID] = &ep
	}

	for id, ep := range r.endpoints {
		for _, fb := range ep.Fallbacks {
			if _, ok := r.endpoints[fb]; !ok {
				return nil, fmt.Errorf("%w: endpoint %q fallback %q does not resolve", ErrRegistryInvalid, id, fb)
			}
		}
	}
	if err := r.checkFallbackCycles(); err != nil {
		return nil, err
	}

	for _, ep := range r.endpoints {
		for _, cap := range ep.Capabilities {
			r.byCapability[cap] = append(r.byCapability[cap], ep)
		}
	}
	for cap := range r.byCapability {
		r.sortByPriority(r.byCapability[cap])
	}

	return r, nil
}

// sortByPriority orders endpoints by (category priority, rate desc, id asc),
// the deterministic ordering contract of ByCapability.
func (r *Registry) sortByPriority(eps []*Endpoint) {
	sort.Slice(eps, func(i, j int) bool {
		pi, pj := r.priority[eps[i].Category], r.priority[eps[j].Category]
		if pi != pj {
			return pi < pj
		}
		if eps[i].RatePerMinute != eps[j].RatePerMinute {
			return eps[i].RatePerMinute > eps[j].RatePerMinute
		}
		return eps[i].ID < eps[j].ID
	})
}

// checkFallbackCycles rejects catalogs whose fallback references form a
// cycle; the executor walks fallbacks linearly and must terminate.
func (r *Registry) checkFallbackCycles() error {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.endpoints))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("%w: fallback cycle through %q", ErrRegistryInvalid, id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, fb := range r.endpoints[id].Fallbacks {
			if err := visit(fb); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the endpoint with the given id.
func (r *Registry) Lookup(id string) (*Endpoint, error) {
	ep, ok := r.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return ep, nil
}

// ByCapability returns endpoints advertising cap, ordered by (category
// priority, ratePerMinute desc, id asc). The returned slice is a copy.
func (r *Registry) ByCapability(cap string) []*Endpoint {
	eps := r.byCapability[cap]
	out := make([]*Endpoint, len(eps))
	copy(out, eps)
	return out
}

// FallbacksFor returns the ordered fallback endpoint ids for id, or an
// empty list for unknown ids.
func (r *Registry) FallbacksFor(id string) []string {
	ep, ok := r.endpoints[id]
	if !ok {
		return nil
	}
	out := make([]string, len(ep.Fallbacks))
	copy(out, ep.Fallbacks)
	return out
}

// Len returns the number of registered endpoints.
func (r *Registry) Len() int { return len(r.endpoints) }

// IDs returns all endpoint ids sorted ascending.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.endpoints))
	for id := range r.endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
