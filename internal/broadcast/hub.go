package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/foxzi/phonebook/internal/metrics"
)

// DefaultBuffer is the per-endpoint queue size
const DefaultBuffer = 64

// Hub is an in-process transport. Each endpoint owns a bounded queue
// drained by its own goroutine, so delivery is asynchronous and ordered
// per endpoint. A full queue drops the event.
type Hub struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]struct{}
	buffer    int
	logger    *slog.Logger
	closed    bool
}

// NewHub creates an in-process transport
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		endpoints: make(map[*Endpoint]struct{}),
		buffer:    buffer,
		logger:    logger,
	}
}

// Endpoint is a context's membership in a Hub
type Endpoint struct {
	name      string
	hub       *Hub
	queue     chan Event
	done      chan struct{}
	listeners listeners
	closeOnce sync.Once
	closed    bool
}

// Join adds a new endpoint to the hub
func (h *Hub) Join(name string) Broadcaster {
	return h.join(name)
}

func (h *Hub) join(name string) *Endpoint {
	e := &Endpoint{
		name:  name,
		hub:   h,
		queue: make(chan Event, h.buffer),
		done:  make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		e.closed = true
		close(e.queue)
	} else {
		h.endpoints[e] = struct{}{}
	}
	h.mu.Unlock()

	go e.run()
	return e
}

// Close disconnects every endpoint
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for e := range h.endpoints {
		e.closed = true
		close(e.queue)
	}
	h.endpoints = nil
	return nil
}

func (e *Endpoint) run() {
	defer close(e.done)
	for ev := range e.queue {
		if n := e.listeners.dispatch(ev); n > 0 {
			metrics.IncBroadcastDelivered(ev.Type)
		}
	}
}

// Name returns the endpoint name
func (e *Endpoint) Name() string {
	return e.name
}

// Publish enqueues ev on every other endpoint of the hub
func (e *Endpoint) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Source = e.name

	h := e.hub
	h.mu.RLock()
	defer h.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}

	for other := range h.endpoints {
		if other == e {
			continue
		}
		select {
		case other.queue <- ev:
		default:
			metrics.IncBroadcastDropped(other.name)
			h.logger.Warn("broadcast queue full, event dropped",
				"endpoint", other.name,
				"type", ev.Type,
			)
		}
	}

	metrics.IncBroadcastPublished(ev.Type)
	return nil
}

// Subscribe registers fn for events published by other endpoints
func (e *Endpoint) Subscribe(fn Handler) func() {
	return e.listeners.add(fn)
}

// Close leaves the hub. Events already queued are still delivered.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		h := e.hub
		h.mu.Lock()
		if !e.closed {
			e.closed = true
			delete(h.endpoints, e)
			close(e.queue)
		}
		h.mu.Unlock()
	})
	return nil
}

// Done is closed once the endpoint has drained its queue after Close
func (e *Endpoint) Done() <-chan struct{} {
	return e.done
}
