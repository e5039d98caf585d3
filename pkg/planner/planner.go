// Package planner turns (intent, entities) into an execution plan: a DAG of
// fetch, enrich and analyze stages over the federated API registry. Output
// is deterministic for the same inputs.
package planner

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// InsufficientContextError reports the entity fields a non-optional stage
// needed but the query did not provide.
type InsufficientContextError struct {
	Intent  models.Intent
	Missing []string
}

func (e *InsufficientContextError) Error() string {
	return fmt.Sprintf("insufficient context for %s: missing %v", e.Intent, e.Missing)
}

// Planner builds execution plans from intent templates and the endpoint
// catalog.
type Planner struct {
	registry     *registry.Registry
	defaultStage time.Duration
}

// New builds a Planner. defaultStageEstimate is used for endpoints that do
// not declare their own estimate.
func New(reg *registry.Registry, defaultStageEstimate time.Duration) *Planner {
	if defaultStageEstimate <= 0 {
		defaultStageEstimate = 10 * time.Second
	}
	return &Planner{registry: reg, defaultStage: defaultStageEstimate}
}

// Plan expands the intent's template with the extracted entities. Optional
// stages whose required parameters are missing are dropped; a non-optional
// stage with missing parameters yields InsufficientContextError listing the
// missing fields. ref anchors any default time windows.
func (p *Planner) Plan(intent models.Intent, entities *models.Entities, ref time.Time) (*models.ExecutionPlan, error) {
	specs, ok := templates[intent]
	if !ok {
		specs = templates[models.IntentGeneralInvestigation]
		intent = models.IntentGeneralInvestigation
	}

	var stages []models.ExecutionStage
	dropped := make(map[string]bool)
	var missingAll []string

	for _, spec := range specs {
		params, missing := spec.fill(entities, ref)
		if len(missing) > 0 {
			if spec.optional {
				dropped[spec.id] = true
				continue
			}
			missingAll = append(missingAll, missing...)
			continue
		}

		endpoints := p.selectEndpoints(spec.capability, entities)
		if len(endpoints) == 0 {
			// No endpoint advertises the capability; the stage cannot run.
			// Optional stages drop silently, required ones become missing
			// context (the query cannot be served as asked).
			if spec.optional {
				dropped[spec.id] = true
				continue
			}
			missingAll = append(missingAll, "capability:"+spec.capability)
			continue
		}

		stages = append(stages, models.ExecutionStage{
			ID:           spec.id,
			Type:         spec.typ,
			Capability:   spec.capability,
			Params:       params,
			Dependencies: pruneDeps(spec.deps, dropped),
			Endpoints:    endpoints,
			Critical:     spec.critical,
			Independent:  spec.independent,
		})
	}

	if len(missingAll) > 0 {
		return nil, &InsufficientContextError{Intent: intent, Missing: missingAll}
	}

	plan := &models.ExecutionPlan{
		Intent:      intent,
		Stages:      stages,
		Parallelism: models.ParallelismDependencyDriven,
	}
	plan.EstimatedDuration = p.estimateDuration(stages)
	plan.PlanID = planID(plan)
	return plan, nil
}

// selectEndpoints returns the registry's capability ordering filtered by
// geographic context: state-scoped endpoints are kept only when the query
// names their UF.
func (p *Planner) selectEndpoints(cap string, entities *models.Entities) []string {
	ufs := make(map[string]bool, len(entities.Locations))
	for _, loc := range entities.Locations {
		ufs[loc.UF] = true
	}

	var out []string
	for _, ep := range p.registry.ByCapability(cap) {
		if ep.UF != "" && len(ufs) > 0 && !ufs[ep.UF] {
			continue
		}
		out = append(out, ep.ID)
	}
	return out
}

// pruneDeps removes references to dropped optional stages.
func pruneDeps(deps []string, dropped map[string]bool) []string {
	var out []string
	for _, d := range deps {
		if !dropped[d] {
			out = append(out, d)
		}
	}
	return out
}

// estimateDuration sums, over the three waves, the max stage estimate
// within each wave. Stage estimate is the primary endpoint's declared
// constant.
func (p *Planner) estimateDuration(stages []models.ExecutionStage) time.Duration {
	waveMax := make(map[models.StageType]time.Duration)
	for _, st := range stages {
		est := p.defaultStage
		if len(st.Endpoints) > 0 {
			if ep, err := p.registry.Lookup(st.Endpoints[0]); err == nil && ep.StageEstimate > 0 {
				est = ep.StageEstimate
			}
		}
		if est > waveMax[st.Type] {
			waveMax[st.Type] = est
		}
	}
	return waveMax[models.StageTypeFetch] + waveMax[models.StageTypeEnrich] + waveMax[models.StageTypeAnalyze]
}

// planID derives a stable identifier from the plan's content, so identical
// inputs produce identical plans end to end.
func planID(plan *models.ExecutionPlan) string {
	payload, _ := json.Marshal(struct {
		Intent models.Intent           `json:"intent"`
		Stages []models.ExecutionStage `json:"stages"`
	}{plan.Intent, plan.Stages})
	sum := sha256.Sum256(payload)
	return "plan-" + hex.EncodeToString(sum[:8])
}

// Validate checks a plan's structural invariants: every dependency
// reference resolves, no stage depends on itself, and the dependency
// relation is acyclic. The executor calls this before scheduling.
func Validate(plan *models.ExecutionPlan) error {
	byID := make(map[string]*models.ExecutionStage, len(plan.Stages))
	for i := range plan.Stages {
		st := &plan.Stages[i]
		if _, dup := byID[st.ID]; dup {
			return fmt.Errorf("duplicate stage id %q", st.ID)
		}
		byID[st.ID] = st
	}
	for _, st := range plan.Stages {
		for _, dep := range st.Dependencies {
			if dep == st.ID {
				return fmt.Errorf("stage %q depends on itself", st.ID)
			}
			if _, ok := byID[dep]; !ok {
				return fmt.Errorf("stage %q depends on unknown stage %q", st.ID, dep)
			}
		}
	}

	// Cycle check over the dependency relation.
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(plan.Stages))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return fmt.Errorf("dependency cycle through stage %q", id)
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range byID[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, st := range plan.Stages {
		if err := visit(st.ID); err != nil {
			return err
		}
	}
	return nil
}
