// Package queue runs submitted investigations on a fixed worker pool with a
// bounded backlog and a cancel registry keyed by investigation id.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/transparencia-br/fiscal/pkg/models"
	"github.com/transparencia-br/fiscal/pkg/progress"
)

// ErrQueueFull is returned by Submit when the backlog is at capacity.
var ErrQueueFull = errors.New("investigation queue full")

// ErrStopped is returned by Submit after Stop.
var ErrStopped = errors.New("investigation queue stopped")

// Runner executes one investigation; the orchestrator implements it.
type Runner interface {
	InvestigateStream(ctx context.Context, ic models.Context, sink *progress.Sink) (*models.InvestigationResult, error)
}

// Store persists lifecycle transitions. Nil-safe at the pool level: a pool
// without a store just skips persistence.
type Store interface {
	MarkRunning(ctx context.Context, id string) error
	SaveResult(ctx context.Context, result *models.InvestigationResult) error
}

// Job is one queued investigation. Sink may be nil when no consumer is
// streaming; the worker then drains events itself.
type Job struct {
	Context models.Context
	Sink    *progress.Sink
}

// Config bounds the pool.
type Config struct {
	Workers     int
	MaxQueueLen int
}

// Pool is the investigation worker pool.
type Pool struct {
	runner Runner
	store  Store
	cfg    Config
	logger *slog.Logger

	jobs     chan Job
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup

	// cancel registry: investigation id -> cancel
	mu     sync.RWMutex
	active map[string]context.CancelFunc
}

// NewPool builds a pool. store and logger may be nil.
func NewPool(runner Runner, store Store, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxQueueLen <= 0 {
		cfg.MaxQueueLen = 64
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		runner:  runner,
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "queue"),
		jobs:    make(chan Job, cfg.MaxQueueLen),
		stopped: make(chan struct{}),
		active:  make(map[string]context.CancelFunc),
	}
}

// Start spawns the workers. ctx cancellation stops in-flight investigations.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("worker pool starting", "workers", p.cfg.Workers, "backlog", p.cfg.MaxQueueLen)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop closes the intake and waits for in-flight investigations to finish.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.jobs)
	})
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Submit enqueues an investigation without blocking.
func (p *Pool) Submit(job Job) error {
	select {
	case <-p.stopped:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel aborts a running investigation. It reports whether the id was
// active on this pool.
func (p *Pool) Cancel(investigationID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.active[investigationID]; ok {
		cancel()
		return true
	}
	return false
}

// ActiveCount returns the number of investigations currently executing.
func (p *Pool) ActiveCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.active)
}

// QueuedCount returns the backlog length.
func (p *Pool) QueuedCount() int { return len(p.jobs) }

func (p *Pool) worker(ctx context.Context, id string) {
	defer p.wg.Done()
	log := p.logger.With("worker", id)
	for job := range p.jobs {
		if ctx.Err() != nil {
			log.Warn("discarding queued investigation on shutdown",
				"investigation_id", job.Context.InvestigationID)
			continue
		}
		p.runJob(ctx, log, job)
	}
}

func (p *Pool) runJob(ctx context.Context, log *slog.Logger, job Job) {
	id := job.Context.InvestigationID
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.active[id] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.active, id)
		p.mu.Unlock()
	}()

	if p.store != nil {
		if err := p.store.MarkRunning(jctx, id); err != nil {
			log.Error("mark running failed", "investigation_id", id, "error", err)
		}
	}

	var result *models.InvestigationResult
	var err error
	if job.Sink != nil {
		result, err = p.runner.InvestigateStream(jctx, job.Context, job.Sink)
	} else {
		sink := progress.NewSink(id, progress.Config{}, nil)
		go func() {
			for range sink.Events() {
			}
		}()
		result, err = p.runner.InvestigateStream(jctx, job.Context, sink)
	}
	if err != nil {
		log.Error("investigation rejected", "investigation_id", id, "error", err)
		return
	}

	if p.store != nil {
		// Persistence must survive the job context being cancelled.
		if err := p.store.SaveResult(context.WithoutCancel(jctx), result); err != nil {
			log.Error("save result failed", "investigation_id", id, "error", err)
		}
	}
}
