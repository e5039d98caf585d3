// Package trace assembles the provenance record attached to every
// investigation result: which sources answered, which endpoints each stage
// touched, and how many calls went out in total.
package trace

import (
	"sort"
	"time"

	"github.com/transparencia-br/fiscal/pkg/models"
)

// Build derives the traceability record from the executed stages.
// Data sources are the endpoints of stages that actually produced data;
// failed and skipped stages contribute their attempted endpoints to the
// per-stage ledger but not to the source list. TotalAPICalls is the number
// of distinct endpoints consulted; TotalAttempts is every invocation
// issued, retries included.
func Build(stages []models.StageResult, failedAnalyzers []models.AnomalyKind, startedAt time.Time) models.Traceability {
	t := models.Traceability{
		StartedAt:       startedAt,
		FailedAnalyzers: failedAnalyzers,
	}

	sources := make(map[string]bool)
	called := make(map[string]bool)
	for _, st := range stages {
		t.APIsCalledByStage = append(t.APIsCalledByStage, append([]string(nil), st.EndpointsInvoked...))
		t.StageDetails = append(t.StageDetails, models.StageDetail{
			StageID:   st.StageID,
			Status:    st.Status,
			Duration:  st.Duration,
			Endpoints: append([]string(nil), st.EndpointsInvoked...),
			Errors:    append([]models.ErrorRecord(nil), st.Errors...),
		})
		t.TotalAttempts += st.Attempts
		for _, ep := range st.EndpointsInvoked {
			called[ep] = true
		}
		if st.Status.Succeeded() {
			for _, ep := range st.EndpointsInvoked {
				sources[ep] = true
			}
		}
	}
	t.TotalAPICalls = len(called)

	t.DataSources = make([]string, 0, len(sources))
	for ep := range sources {
		t.DataSources = append(t.DataSources, ep)
	}
	sort.Strings(t.DataSources)
	return t
}
