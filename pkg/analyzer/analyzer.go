// Package analyzer holds the deterministic anomaly detectors that run over
// the frozen entity graph after data collection. Anything implementing
// Analyzer participates; registration is explicit, never reflective.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/transparencia-br/fiscal/pkg/graph"
	"github.com/transparencia-br/fiscal/pkg/metrics"
	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/progress"
)

// Analyzer is a deterministic function from a frozen graph to findings.
// Implementations must not mutate the graph and must produce the same output
// for the same graph and config.
type Analyzer interface {
	Kind() models.AnomalyKind
	Analyze(ctx context.Context, g *graph.Graph, cfg Config) ([]models.Anomaly, error)
}

// Config carries every detector threshold. All values are overridable from
// the engine config; zero values fall back to the documented defaults.
type Config struct {
	PriceMADFactor          float64 `yaml:"price_mad_factor"`
	ConcentrationShare      float64 `yaml:"concentration_share"`
	SpikeZ                  float64 `yaml:"spike_z"`
	DuplicateValueTolerance float64 `yaml:"duplicate_value_tolerance"`
	DuplicateJaccard        float64 `yaml:"duplicate_jaccard"`
	PaymentMismatchRatio    float64 `yaml:"payment_mismatch_ratio"`
	BenfordMinSamples       int     `yaml:"benford_min_samples"`
	BenfordChiSquare        float64 `yaml:"benford_chi_square"`
	CartelCoBids            int     `yaml:"cartel_co_bids"`
	CartelMinClique         int     `yaml:"cartel_min_clique"`
	CartelDensity           float64 `yaml:"cartel_density"`
	MaxConcurrent           int     `yaml:"max_concurrent"`
}

// DefaultConfig returns the documented detector defaults.
func DefaultConfig() Config {
	return Config{
		PriceMADFactor:          2.5,
		ConcentrationShare:      0.70,
		SpikeZ:                  2.0,
		DuplicateValueTolerance: 0.05,
		DuplicateJaccard:        0.85,
		PaymentMismatchRatio:    0.50,
		BenfordMinSamples:       300,
		BenfordChiSquare:        15.5,
		CartelCoBids:            5,
		CartelMinClique:         3,
		CartelDensity:           0.7,
		MaxConcurrent:           4,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PriceMADFactor <= 0 {
		c.PriceMADFactor = d.PriceMADFactor
	}
	if c.ConcentrationShare <= 0 {
		c.ConcentrationShare = d.ConcentrationShare
	}
	if c.SpikeZ <= 0 {
		c.SpikeZ = d.SpikeZ
	}
	if c.DuplicateValueTolerance <= 0 {
		c.DuplicateValueTolerance = d.DuplicateValueTolerance
	}
	if c.DuplicateJaccard <= 0 {
		c.DuplicateJaccard = d.DuplicateJaccard
	}
	if c.PaymentMismatchRatio <= 0 {
		c.PaymentMismatchRatio = d.PaymentMismatchRatio
	}
	if c.BenfordMinSamples <= 0 {
		c.BenfordMinSamples = d.BenfordMinSamples
	}
	if c.BenfordChiSquare <= 0 {
		c.BenfordChiSquare = d.BenfordChiSquare
	}
	if c.CartelCoBids <= 0 {
		c.CartelCoBids = d.CartelCoBids
	}
	if c.CartelMinClique <= 0 {
		c.CartelMinClique = d.CartelMinClique
	}
	if c.CartelDensity <= 0 {
		c.CartelDensity = d.CartelDensity
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = d.MaxConcurrent
	}
	return c
}

// DefaultSet returns every built-in detector.
func DefaultSet() []Analyzer {
	return []Analyzer{
		&PriceDeviation{},
		&VendorConcentration{},
		&TemporalSpike{},
		&DuplicateContract{},
		&PaymentMismatch{},
		&BenfordViolation{},
		&CartelClique{},
	}
}

// Runner fans the detectors out over the frozen graph with bounded
// concurrency. A failing or panicking detector never fails the run; its
// kind is reported back for traceability instead.
type Runner struct {
	analyzers []Analyzer
	cfg       Config
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewRunner builds a runner. m and logger may be nil.
func NewRunner(analyzers []Analyzer, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		analyzers: analyzers,
		cfg:       cfg.withDefaults(),
		metrics:   m,
		logger:    logger.With("component", "analyzer"),
	}
}

// Run executes every detector against the frozen graph and returns the
// merged findings sorted by kind then id, plus the kinds that failed.
// sink may be nil when no progress stream is attached.
func (r *Runner) Run(ctx context.Context, g *graph.Graph, sink *progress.Sink) ([]models.Anomaly, []models.AnomalyKind) {
	var (
		mu       sync.Mutex
		findings []models.Anomaly
		failed   []models.AnomalyKind
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.MaxConcurrent)
	for _, a := range r.analyzers {
		a := a
		eg.Go(func() error {
			out, err := r.runOne(gctx, a, g)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Error("analyzer failed", "kind", string(a.Kind()), "error", err)
				failed = append(failed, a.Kind())
				return nil
			}
			findings = append(findings, out...)
			for _, an := range out {
				r.metrics.IncAnomaly(string(an.Kind), string(an.Severity))
			}
			if sink != nil {
				sink.Publish(ctx, &progress.AnalyzerCompletedEvent{
					BaseEvent:    progress.BaseEvent{Type: progress.EventAnalyzerCompleted},
					Kind:         a.Kind(),
					AnomalyCount: len(out),
				})
			}
			return nil
		})
	}
	_ = eg.Wait()

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Kind != findings[j].Kind {
			return findings[i].Kind < findings[j].Kind
		}
		return findings[i].AnomalyID < findings[j].AnomalyID
	})
	sort.Slice(failed, func(i, j int) bool { return failed[i] < failed[j] })
	return findings, failed
}

// runOne contains detector panics so a buggy detector surfaces as a failed
// kind, never a crashed process.
func (r *Runner) runOne(ctx context.Context, a Analyzer, g *graph.Graph) (out []models.Anomaly, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("analyzer panicked",
				"kind", string(a.Kind()), "panic", fmt.Sprint(rec), "stack", string(debug.Stack()))
			out = nil
			err = fmt.Errorf("analyzer %s panicked: %v", a.Kind(), rec)
		}
	}()
	return a.Analyze(ctx, g, r.cfg)
}

// anomalyID derives a stable id from the kind and the affected nodes.
func anomalyID(kind models.AnomalyKind, nodes []string, discriminator string) string {
	sorted := append([]string(nil), nodes...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(string(kind) + "|" + strings.Join(sorted, ",") + "|" + discriminator))
	return "anom-" + hex.EncodeToString(sum[:4])
}
