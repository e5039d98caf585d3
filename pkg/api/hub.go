package api

import (
	"sync"

	"github.com/transparencia-br/fiscal/pkg/progress"
)

// subscriberBuffer bounds each SSE subscriber's channel; a slow subscriber
// loses events rather than stalling the bridge.
const subscriberBuffer = 64

// Hub fans investigation progress events out to SSE subscribers. A bridge
// goroutine per investigation drains the sink unconditionally, so the
// engine never blocks on a missing or slow consumer.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[chan progress.Event]bool
	closed  map[string]bool
	history map[string][]progress.Event
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]map[chan progress.Event]bool),
		closed:  make(map[string]bool),
		history: make(map[string][]progress.Event),
	}
}

// Bridge drains the sink and broadcasts every event under the
// investigation id. It returns when the sink closes, then marks the stream
// finished so late subscribers get the history and an immediate close.
func (h *Hub) Bridge(investigationID string, sink *progress.Sink) {
	for ev := range sink.Events() {
		h.broadcast(investigationID, ev)
	}
	h.finish(investigationID)
}

func (h *Hub) broadcast(id string, ev progress.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history[id] = append(h.history[id], ev)
	for ch := range h.subs[id] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *Hub) finish(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed[id] = true
	for ch := range h.subs[id] {
		close(ch)
	}
	delete(h.subs, id)
}

// Subscribe attaches to an investigation's stream. Events already emitted
// are replayed first. The returned channel closes when the investigation
// finishes; cancel must be called when the subscriber goes away.
func (h *Hub) Subscribe(id string) (<-chan progress.Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	replay := append([]progress.Event(nil), h.history[id]...)
	ch := make(chan progress.Event, subscriberBuffer+len(replay))
	for _, ev := range replay {
		ch <- ev
	}

	if h.closed[id] {
		close(ch)
		return ch, func() {}
	}

	if h.subs[id] == nil {
		h.subs[id] = make(map[chan progress.Event]bool)
	}
	h.subs[id][ch] = true

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if subs, ok := h.subs[id]; ok && subs[ch] {
			delete(subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// Forget drops a finished investigation's history.
func (h *Hub) Forget(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.history, id)
	delete(h.closed, id)
}
