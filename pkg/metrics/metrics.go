// Package metrics exposes Prometheus collectors for the engine. Export is
// downstream: the engine only increments, the caller decides scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's collectors. A nil *Metrics is safe to use;
// every method no-ops.
type Metrics struct {
	InvokeTotal      *prometheus.CounterVec
	InvokeDuration   *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec
	StageDuration    *prometheus.HistogramVec
	DroppedEvents    prometheus.Counter
	AnomaliesEmitted *prometheus.CounterVec
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvokeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiscal",
			Name:      "invoke_total",
			Help:      "Outbound API invocations by endpoint and outcome kind.",
		}, []string{"endpoint", "outcome"}),
		InvokeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fiscal",
			Name:      "invoke_duration_seconds",
			Help:      "Outbound API invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "fiscal",
			Name:      "breaker_state",
			Help:      "Circuit breaker state per endpoint (0 closed, 1 half-open, 2 open).",
		}, []string{"endpoint"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fiscal",
			Name:      "stage_duration_seconds",
			Help:      "Execution stage duration by stage type and terminal status.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"type", "status"}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fiscal",
			Name:      "progress_events_dropped_total",
			Help:      "Progress events dropped because the sink was saturated.",
		}),
		AnomaliesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fiscal",
			Name:      "anomalies_emitted_total",
			Help:      "Anomalies produced by analyzers, by kind and severity.",
		}, []string{"kind", "severity"}),
	}
	reg.MustRegister(
		m.InvokeTotal, m.InvokeDuration, m.BreakerState,
		m.StageDuration, m.DroppedEvents, m.AnomaliesEmitted,
	)
	return m
}

// ObserveInvoke records one outbound call outcome.
func (m *Metrics) ObserveInvoke(endpoint, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.InvokeTotal.WithLabelValues(endpoint, outcome).Inc()
	m.InvokeDuration.WithLabelValues(endpoint).Observe(seconds)
}

// SetBreakerState records a breaker state transition.
func (m *Metrics) SetBreakerState(endpoint string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(endpoint).Set(state)
}

// ObserveStage records one stage completion.
func (m *Metrics) ObserveStage(stageType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stageType, status).Observe(seconds)
}

// IncDroppedEvent records one dropped progress event.
func (m *Metrics) IncDroppedEvent() {
	if m == nil {
		return
	}
	m.DroppedEvents.Inc()
}

// IncAnomaly records one emitted anomaly.
func (m *Metrics) IncAnomaly(kind, severity string) {
	if m == nil {
		return
	}
	m.AnomaliesEmitted.WithLabelValues(kind, severity).Inc()
}
