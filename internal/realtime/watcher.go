// Package realtime keeps in-memory snapshots of collections current by
// reloading them whenever a change notification arrives.
package realtime

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/foxzi/phonebook/internal/metrics"
)

// View is the state exposed by a watcher
type View[T any] struct {
	Data    T
	Loading bool
}

// Loader reads a full snapshot of the watched collection
type Loader[T any] func(ctx context.Context) (T, error)

// Source delivers change notifications for a topic
type Source interface {
	Subscribe(topic string, fn func()) (unsubscribe func())
}

// Watcher holds the latest snapshot of one collection. Every reload takes
// a sequence number and a result older than the last applied one is
// discarded, so the most recently started reload wins.
type Watcher[T any] struct {
	name   string
	topic  string
	load   Loader[T]
	src    Source
	logger *slog.Logger

	mu        sync.RWMutex
	view      View[T]
	applied   uint64
	listeners map[int]func(T)
	nextID    int

	seq atomic.Uint64

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	wg          sync.WaitGroup
	closed      bool
	closeOnce   sync.Once
}

// NewWatcher creates a watcher reloading with load on every topic
// notification from src
func NewWatcher[T any](name string, load Loader[T], src Source, topic string, logger *slog.Logger) *Watcher[T] {
	return &Watcher[T]{
		name:      name,
		topic:     topic,
		load:      load,
		src:       src,
		logger:    logger.With("watcher", name),
		view:      View[T]{Loading: true},
		listeners: make(map[int]func(T)),
	}
}

// Start subscribes to the source and performs the initial load
// synchronously. Loading is false once Start returns, even if the
// initial load failed.
func (w *Watcher[T]) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	if w.src != nil {
		w.unsubscribe = w.src.Subscribe(w.topic, w.trigger)
	}

	w.reload(w.ctx)

	w.mu.Lock()
	w.view.Loading = false
	w.mu.Unlock()
}

func (w *Watcher[T]) trigger() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.reload(w.ctx)
	}()
}

// Refresh reloads the snapshot synchronously
func (w *Watcher[T]) Refresh(ctx context.Context) {
	w.reload(ctx)
}

func (w *Watcher[T]) reload(ctx context.Context) {
	seq := w.seq.Add(1)
	data, err := w.load(ctx)

	w.mu.Lock()
	if seq < w.applied {
		w.mu.Unlock()
		metrics.IncStaleReload(w.name)
		w.logger.Debug("discarding stale reload", "seq", seq)
		return
	}
	if err != nil {
		w.view.Loading = false
		w.mu.Unlock()
		metrics.IncReload(w.name, "error")
		w.logger.Warn("failed to reload snapshot", "error", err)
		return
	}

	w.applied = seq
	w.view = View[T]{Data: data}
	fns := make([]func(T), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	metrics.IncReload(w.name, "ok")
	for _, fn := range fns {
		fn(data)
	}
}

// View returns the current state
func (w *Watcher[T]) View() View[T] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.view
}

// Data returns the current snapshot
func (w *Watcher[T]) Data() T {
	return w.View().Data
}

// OnChange registers fn to run after every applied snapshot
func (w *Watcher[T]) OnChange(fn func(T)) (remove func()) {
	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			w.mu.Unlock()
		})
	}
}

// Close unsubscribes from the source and waits for in-flight reloads
func (w *Watcher[T]) Close() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.closed = true
		w.mu.Unlock()

		if w.unsubscribe != nil {
			w.unsubscribe()
		}
		if w.cancel != nil {
			w.cancel()
		}
		w.wg.Wait()
	})
}
