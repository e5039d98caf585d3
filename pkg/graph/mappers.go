package graph

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// Mapper converts one raw result into nodes and edges. Mappers are static
// functions keyed by (endpointID, capability) with a per-capability
// default; they must tolerate partial records and never panic on malformed
// payloads (unparseable payloads return an error instead).
type Mapper func(res models.RawResult, g *Graph) error

// MapperSet resolves the mapper for a result.
type MapperSet struct {
	byEndpoint map[string]Mapper // "endpointID|capability" overrides
	byCap      map[string]Mapper
}

// DefaultMappers returns the built-in capability mappers.
func DefaultMappers() *MapperSet {
	return &MapperSet{
		byEndpoint: make(map[string]Mapper),
		byCap: map[string]Mapper{
			registry.CapSearchContracts:  mapContracts,
			registry.CapSearchExpenses:   mapContracts,
			registry.CapSearchAgreements: mapContracts,
			registry.CapLookupCNPJ:       mapCompany,
			registry.CapSearchBidding:    mapBidding,
			registry.CapFetchPopulation:  mapPopulation,
			registry.CapSearchSanctions:  mapSanctions,
			registry.CapGeneralInfo:      mapNothing,
		},
	}
}

// Override registers an endpoint-specific mapper for schema quirks.
func (m *MapperSet) Override(endpointID, capability string, mapper Mapper) {
	m.byEndpoint[endpointID+"|"+capability] = mapper
}

// Resolve returns the mapper for (endpointID, capability), or nil when the
// capability contributes nothing to the graph.
func (m *MapperSet) Resolve(endpointID, capability string) (Mapper, error) {
	if mapper, ok := m.byEndpoint[endpointID+"|"+capability]; ok {
		return mapper, nil
	}
	if mapper, ok := m.byCap[capability]; ok {
		return mapper, nil
	}
	return nil, fmt.Errorf("no shape mapper for capability %q", capability)
}

// --- Wire shapes ---
//
// Government portals disagree wildly on field naming; the per-API client
// modules normalize to these shapes before the core sees them. Records
// arrive either as a bare JSON array or wrapped in {"items": [...]}.

type contractRecord struct {
	Number    string      `json:"number"`
	Year      int         `json:"year"`
	OrgCode   string      `json:"org_code"`
	OrgName   string      `json:"org_name"`
	CNPJ      string      `json:"cnpj"`
	Supplier  string      `json:"supplier"`
	Value     float64     `json:"value"`
	PaidValue float64     `json:"paid_value"`
	UnitPrice float64     `json:"unit_price"`
	Quantity  float64     `json:"quantity"`
	Object    string      `json:"object"`
	Category  string      `json:"category"`
	UF        string      `json:"uf"`
	Municip   string      `json:"municipality"`
	SignedAt  string      `json:"signed_at"`
	Month     json.Number `json:"month"`
}

type companyRecord struct {
	CNPJ     string `json:"cnpj"`
	Name     string `json:"name"`
	UF       string `json:"uf"`
	Municip  string `json:"municipality"`
	Partners []struct {
		CPF  string `json:"cpf"`
		Name string `json:"name"`
	} `json:"partners"`
}

type biddingRecord struct {
	Number       string `json:"number"`
	Year         int    `json:"year"`
	OrgCode      string `json:"org_code"`
	OrgName      string `json:"org_name"`
	Participants []struct {
		CNPJ   string `json:"cnpj"`
		Name   string `json:"name"`
		Winner bool   `json:"winner"`
	} `json:"participants"`
}

type populationRecord struct {
	UF         string  `json:"uf"`
	Municip    string  `json:"municipality"`
	Population float64 `json:"population"`
}

type sanctionRecord struct {
	CNPJ     string `json:"cnpj"`
	Sanction string `json:"sanction"`
	Source   string `json:"source"`
}

// decodeItems accepts a bare array or an {"items": [...]} wrapper.
func decodeItems[T any](payload json.RawMessage) ([]T, error) {
	var items []T
	if err := json.Unmarshal(payload, &items); err == nil {
		return items, nil
	}
	var wrapper struct {
		Items []T `json:"items"`
	}
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("undecodable payload: %w", err)
	}
	return wrapper.Items, nil
}

// --- Mappers ---

func mapContracts(res models.RawResult, g *Graph) error {
	records, err := decodeItems[contractRecord](res.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.OrgCode == "" || rec.Number == "" {
			continue
		}
		contractID := NodeID(NodeContract, rec.OrgCode, strconv.Itoa(rec.Year), rec.Number)
		attrs := map[string]any{
			"number": rec.Number,
			"year":   rec.Year,
		}
		if rec.Value > 0 {
			attrs["value"] = rec.Value
		}
		if rec.PaidValue > 0 {
			attrs["paid_value"] = rec.PaidValue
		}
		if rec.UnitPrice > 0 {
			attrs["unit_price"] = rec.UnitPrice
		}
		if rec.Object != "" {
			attrs["object"] = rec.Object
		}
		if rec.Category != "" {
			attrs["category"] = rec.Category
		}
		if rec.UF != "" {
			attrs["uf"] = rec.UF
		}
		if rec.SignedAt != "" {
			attrs["signed_at"] = rec.SignedAt
		}
		if err := g.UpsertNode(contractID, NodeContract, attrs, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}

		orgID := NodeID(NodeOrganization, rec.OrgCode)
		orgAttrs := map[string]any{"code": rec.OrgCode}
		if rec.OrgName != "" {
			orgAttrs["name"] = rec.OrgName
		}
		if err := g.UpsertNode(orgID, NodeOrganization, orgAttrs, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}
		if err := g.UpsertEdge(contractID, orgID, RelContractedBy, nil, res.SourceEndpointID); err != nil {
			return err
		}

		if rec.CNPJ != "" {
			supplierID := NodeID(NodeSupplier, rec.CNPJ)
			supAttrs := map[string]any{"cnpj": rec.CNPJ}
			if rec.Supplier != "" {
				supAttrs["name"] = rec.Supplier
			}
			if err := g.UpsertNode(supplierID, NodeSupplier, supAttrs, res.SourceEndpointID, res.FetchedAt); err != nil {
				return err
			}
			if err := g.UpsertEdge(supplierID, orgID, RelSuppliedTo, map[string]any{
				"contract": contractID,
				"value":    rec.Value,
			}, res.SourceEndpointID); err != nil {
				return err
			}
			if err := g.UpsertEdge(supplierID, contractID, RelSuppliedTo, nil, res.SourceEndpointID); err != nil {
				return err
			}
		}

		if rec.UF != "" {
			locID := NodeID(NodeLocation, rec.UF, rec.Municip)
			locAttrs := map[string]any{"uf": rec.UF}
			if rec.Municip != "" {
				locAttrs["municipality"] = rec.Municip
			}
			if err := g.UpsertNode(locID, NodeLocation, locAttrs, res.SourceEndpointID, res.FetchedAt); err != nil {
				return err
			}
			if err := g.UpsertEdge(contractID, locID, RelLocatedIn, nil, res.SourceEndpointID); err != nil {
				return err
			}
		}
	}
	return nil
}

func mapCompany(res models.RawResult, g *Graph) error {
	records, err := decodeItems[companyRecord](res.Payload)
	if err != nil || len(records) == 0 {
		// lookup_cnpj endpoints return a single object, not a list
		var one companyRecord
		if uerr := json.Unmarshal(res.Payload, &one); uerr == nil && one.CNPJ != "" {
			records = []companyRecord{one}
		} else if err != nil {
			return err
		}
	}
	for _, rec := range records {
		if rec.CNPJ == "" {
			continue
		}
		supplierID := NodeID(NodeSupplier, rec.CNPJ)
		attrs := map[string]any{"cnpj": rec.CNPJ}
		if rec.Name != "" {
			attrs["name"] = rec.Name
		}
		if rec.UF != "" {
			attrs["uf"] = rec.UF
		}
		if err := g.UpsertNode(supplierID, NodeSupplier, attrs, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}

		for _, partner := range rec.Partners {
			if partner.CPF == "" {
				continue
			}
			personID := NodeID(NodePerson, partner.CPF)
			pAttrs := map[string]any{"cpf": partner.CPF}
			if partner.Name != "" {
				pAttrs["name"] = partner.Name
			}
			if err := g.UpsertNode(personID, NodePerson, pAttrs, res.SourceEndpointID, res.FetchedAt); err != nil {
				return err
			}
			if err := g.UpsertEdge(personID, supplierID, RelPartnerOf, nil, res.SourceEndpointID); err != nil {
				return err
			}
		}
	}
	return nil
}

func mapBidding(res models.RawResult, g *Graph) error {
	records, err := decodeItems[biddingRecord](res.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.OrgCode == "" || rec.Number == "" {
			continue
		}
		processID := NodeID(NodeBiddingProcess, rec.OrgCode, strconv.Itoa(rec.Year), rec.Number)
		if err := g.UpsertNode(processID, NodeBiddingProcess, map[string]any{
			"number": rec.Number,
			"year":   rec.Year,
		}, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}

		orgID := NodeID(NodeOrganization, rec.OrgCode)
		if err := g.UpsertNode(orgID, NodeOrganization, map[string]any{"code": rec.OrgCode}, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}
		if err := g.UpsertEdge(processID, orgID, RelManagedBy, nil, res.SourceEndpointID); err != nil {
			return err
		}

		for _, part := range rec.Participants {
			if part.CNPJ == "" {
				continue
			}
			supplierID := NodeID(NodeSupplier, part.CNPJ)
			attrs := map[string]any{"cnpj": part.CNPJ}
			if part.Name != "" {
				attrs["name"] = part.Name
			}
			if err := g.UpsertNode(supplierID, NodeSupplier, attrs, res.SourceEndpointID, res.FetchedAt); err != nil {
				return err
			}
			edgeAttrs := map[string]any{}
			if part.Winner {
				edgeAttrs["winner"] = true
			}
			if err := g.UpsertEdge(supplierID, processID, RelSuppliedTo, edgeAttrs, res.SourceEndpointID); err != nil {
				return err
			}
		}
	}
	return nil
}

func mapPopulation(res models.RawResult, g *Graph) error {
	records, err := decodeItems[populationRecord](res.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.UF == "" {
			continue
		}
		locID := NodeID(NodeLocation, rec.UF, rec.Municip)
		attrs := map[string]any{"uf": rec.UF, "population": rec.Population}
		if rec.Municip != "" {
			attrs["municipality"] = rec.Municip
		}
		if err := g.UpsertNode(locID, NodeLocation, attrs, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}
	}
	return nil
}

func mapSanctions(res models.RawResult, g *Graph) error {
	records, err := decodeItems[sanctionRecord](res.Payload)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.CNPJ == "" {
			continue
		}
		supplierID := NodeID(NodeSupplier, rec.CNPJ)
		if err := g.UpsertNode(supplierID, NodeSupplier, map[string]any{
			"cnpj":      rec.CNPJ,
			"sanctions": []any{rec.Sanction},
		}, res.SourceEndpointID, res.FetchedAt); err != nil {
			return err
		}
	}
	return nil
}

func mapNothing(models.RawResult, *Graph) error { return nil }
