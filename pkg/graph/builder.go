package graph

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// Builder ingests stage results into a graph through the shape mappers and
// freezes it. Ingestion is single-threaded: one builder per investigation.
type Builder struct {
	mappers *MapperSet
}

// NewBuilder creates a builder with the given mapper set (nil uses the
// defaults).
func NewBuilder(mappers *MapperSet) *Builder {
	if mappers == nil {
		mappers = DefaultMappers()
	}
	return &Builder{mappers: mappers}
}

// Build maps every record of every stage result into a fresh graph and
// freezes it. Mapper failures never abort the build: each is recorded and
// ingestion continues with the next record. Panics inside a mapper are
// contained and converted to internal errors.
func (b *Builder) Build(plan *models.ExecutionPlan, results []models.StageResult) (*Graph, []models.ErrorRecord) {
	return b.BuildWith(plan, results, nil, time.Time{})
}

// ingestOne applies one mapper under a panic containment boundary.
func (b *Builder) ingestOne(g *Graph, capability string, rec models.RawResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Shape mapper panicked",
				"capability", capability,
				"endpoint", rec.SourceEndpointID,
				"panic", r)
			err = fmt.Errorf("mapper panic: %v", r)
		}
	}()

	mapper, err := b.mappers.Resolve(rec.SourceEndpointID, capability)
	if err != nil {
		return err
	}
	return mapper(rec, g)
}

// addProvisionalSupplier inserts a placeholder supplier node for a CNPJ
// the query identified but no endpoint could resolve. The provenance lists
// the endpoint that was attempted.
func addProvisionalSupplier(g *Graph, cnpj, attemptedEndpoint string, at time.Time) error {
	id := NodeID(NodeSupplier, cnpj)
	if g.Node(id) != nil {
		return nil
	}
	return g.UpsertNode(id, NodeSupplier, map[string]any{
		"cnpj":        cnpj,
		"provisional": true,
	}, attemptedEndpoint, at)
}

// BuildWith is Build plus provisional supplier nodes for CNPJs the query
// named but no successful lookup resolved. attempted maps CNPJ to the
// endpoint that was tried.
func (b *Builder) BuildWith(plan *models.ExecutionPlan, results []models.StageResult, attempted map[string]string, at time.Time) (*Graph, []models.ErrorRecord) {
	g := New()
	var errs []models.ErrorRecord

	for _, sr := range results {
		if !sr.Status.Succeeded() {
			continue
		}
		capability := ""
		if plan != nil {
			if st := plan.Stage(sr.StageID); st != nil {
				capability = st.Capability
			}
		}
		for _, rec := range sr.Records {
			if err := b.ingestOne(g, capability, rec); err != nil {
				errs = append(errs, models.ErrorRecord{
					Kind:       "internal_error",
					EndpointID: rec.SourceEndpointID,
					Message:    fmt.Sprintf("mapper for %q: %v", capability, err),
				})
			}
		}
	}

	for cnpj, endpoint := range attempted {
		if err := addProvisionalSupplier(g, cnpj, endpoint, at); err != nil {
			errs = append(errs, models.ErrorRecord{
				Kind:    "internal_error",
				Message: fmt.Sprintf("provisional supplier %s: %v", cnpj, err),
			})
		}
	}

	g.Freeze()
	return g, errs
}

// Summary projects the frozen graph into its external shape.
func Summary(g *Graph) models.GraphSummary {
	return models.GraphSummary{
		NodeCount:  g.NodeCount(),
		EdgeCount:  g.EdgeCount(),
		ByNodeType: g.CountByNodeType(),
		ByEdgeType: g.CountByEdgeType(),
	}
}
