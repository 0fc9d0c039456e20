// Package broadcast carries change notifications between contexts that
// share one record store.
package broadcast

import (
	"context"
	"errors"
	"sync"
)

// DefaultChannel is the shared channel name all contexts join
const DefaultChannel = "extensions_sync"

// Event types, one per persisted collection
const (
	TypeExtensions = "extensions"
	TypeQueues     = "queues"
	TypeAdminUsers = "admin_users"
	TypeAuditLogs  = "audit_logs"
)

// ActionUpdate is the only action carried by change events
const ActionUpdate = "update"

// ErrClosed is returned when publishing through a closed endpoint
var ErrClosed = errors.New("broadcast endpoint closed")

// Event is a change notification. Events carry no payload: receivers
// re-read the collection named by Type.
type Event struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Source string `json:"source,omitempty"`
}

// Changed builds the update event for a collection
func Changed(eventType string) Event {
	return Event{Type: eventType, Action: ActionUpdate}
}

// Handler receives delivered events
type Handler func(Event)

// Broadcaster is one context's endpoint on a shared transport.
// Published events reach every other endpoint, never the publisher.
type Broadcaster interface {
	// Publish sends ev to the other endpoints. Delivery is best-effort.
	Publish(ctx context.Context, ev Event) error

	// Subscribe registers fn for events from other endpoints. The
	// returned function removes it and is safe to call more than once.
	Subscribe(fn Handler) (unsubscribe func())

	// Close leaves the transport
	Close() error
}

// Transport creates endpoints sharing one channel
type Transport interface {
	Join(name string) Broadcaster
	Close() error
}

// listeners is a concurrency-safe handler set
type listeners struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]Handler
}

func (l *listeners) add(fn Handler) func() {
	l.mu.Lock()
	if l.handlers == nil {
		l.handlers = make(map[int]Handler)
	}
	id := l.next
	l.next++
	l.handlers[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.handlers, id)
			l.mu.Unlock()
		})
	}
}

func (l *listeners) dispatch(ev Event) int {
	l.mu.RLock()
	fns := make([]Handler, 0, len(l.handlers))
	for _, fn := range l.handlers {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return len(fns)
}

func (l *listeners) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}
