package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/transparencia-br/fiscal/pkg/metrics"
)

// Sink is the bounded per-investigation event channel. One Sink exists per
// investigation; producers serialize through the channel send. Close the
// sink exactly once, after the last Publish.
type Sink struct {
	investigationID string
	ch              chan Event
	sendWait        time.Duration
	now             func() time.Time
	dropped         atomic.Int64
	closeOnce       sync.Once
	metrics         *metrics.Metrics
}

// Config controls sink capacity and the bounded send wait.
type Config struct {
	BufferSize int
	SendWait   time.Duration
}

// DefaultConfig returns the documented defaults: 256 buffered events, 50ms
// send wait before a non-data event is dropped.
func DefaultConfig() Config {
	return Config{BufferSize: 256, SendWait: 50 * time.Millisecond}
}

// NewSink builds a sink for one investigation. m may be nil.
func NewSink(investigationID string, cfg Config, m *metrics.Metrics) *Sink {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if cfg.SendWait <= 0 {
		cfg.SendWait = DefaultConfig().SendWait
	}
	return &Sink{
		investigationID: investigationID,
		ch:              make(chan Event, cfg.BufferSize),
		sendWait:        cfg.SendWait,
		now:             time.Now,
		metrics:         m,
	}
}

// Events is the consumer side. The channel closes when the investigation
// finishes.
func (s *Sink) Events() <-chan Event { return s.ch }

// Dropped returns how many non-data events were discarded because the
// consumer fell behind.
func (s *Sink) Dropped() int { return int(s.dropped.Load()) }

// Publish stamps and delivers an event. Data events block until delivered
// or ctx is cancelled; other events wait at most the configured send wait
// and are then dropped and counted.
func (s *Sink) Publish(ctx context.Context, ev Event) {
	env := ev.envelope()
	env.TS = s.now().UTC()
	env.InvestigationID = s.investigationID

	if ev.data() {
		select {
		case s.ch <- ev:
		case <-ctx.Done():
		}
		return
	}

	select {
	case s.ch <- ev:
		return
	default:
	}

	timer := time.NewTimer(s.sendWait)
	defer timer.Stop()
	select {
	case s.ch <- ev:
	case <-timer.C:
		s.dropped.Add(1)
		s.metrics.IncDroppedEvent()
	case <-ctx.Done():
		s.dropped.Add(1)
		s.metrics.IncDroppedEvent()
	}
}

// Close ends the stream. Safe to call multiple times; must not race with
// in-flight Publish calls (the orchestrator closes after all producers are
// done).
func (s *Sink) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}
