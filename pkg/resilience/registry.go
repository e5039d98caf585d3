package resilience

import (
	"sync"

	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/registry"
)

// Registry owns the process-wide Guard per endpoint. Initialized once at
// process start, torn down on shutdown. Guards are created lazily on first
// use so the cost tracks the endpoints actually exercised.
type Registry struct {
	mu      sync.Mutex
	guards  map[string]*Guard
	cfg     Config
	metrics *metrics.Metrics
}

// NewRegistry builds the guard registry. m may be nil.
func NewRegistry(cfg Config, m *metrics.Metrics) *Registry {
	return &Registry{
		guards:  make(map[string]*Guard),
		cfg:     cfg.withDefaults(),
		metrics: m,
	}
}

// GuardFor returns the shared Guard for the endpoint, creating it on first
// use. The critical section only touches the map, never I/O.
func (r *Registry) GuardFor(ep *registry.Endpoint) *Guard {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.guards[ep.ID]; ok {
		return g
	}
	g := newGuard(ep, r.cfg, r.metrics)
	r.guards[ep.ID] = g
	return g
}

// Teardown drops all guards. In-flight calls finish against their existing
// guard instances; new calls build fresh state.
func (r *Registry) Teardown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guards = make(map[string]*Guard)
}
