package broadcast

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder collects delivered events
type recorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 1024)}
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for i := 0; i < n; i++ {
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, i)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestHubDeliversToOtherEndpoints(t *testing.T) {
	hub := NewHub(16, newTestLogger())
	defer hub.Close()

	a := hub.Join("a")
	b := hub.Join("b")
	c := hub.Join("c")

	ra, rb, rc := newRecorder(), newRecorder(), newRecorder()
	a.Subscribe(ra.handle)
	b.Subscribe(rb.handle)
	c.Subscribe(rc.handle)

	if err := a.Publish(context.Background(), Changed(TypeExtensions)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for name, r := range map[string]*recorder{"b": rb, "c": rc} {
		got := r.wait(t, 1)
		if got[0].Type != TypeExtensions || got[0].Action != ActionUpdate {
			t.Errorf("%s got %+v", name, got[0])
		}
		if got[0].Source != "a" {
			t.Errorf("%s source = %q, want a", name, got[0].Source)
		}
	}

	// give the publisher's own goroutine a chance to misbehave
	time.Sleep(20 * time.Millisecond)
	if ra.count() != 0 {
		t.Errorf("publisher received its own event")
	}
}

func TestHubPreservesOrder(t *testing.T) {
	hub := NewHub(64, newTestLogger())
	defer hub.Close()

	pub := hub.Join("pub")
	sub := hub.Join("sub")
	r := newRecorder()
	sub.Subscribe(r.handle)

	types := []string{TypeExtensions, TypeQueues, TypeAdminUsers, TypeAuditLogs}
	for _, typ := range types {
		if err := pub.Publish(context.Background(), Changed(typ)); err != nil {
			t.Fatal(err)
		}
	}

	got := r.wait(t, len(types))
	for i, typ := range types {
		if got[i].Type != typ {
			t.Errorf("event %d = %s, want %s", i, got[i].Type, typ)
		}
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(16, newTestLogger())
	defer hub.Close()

	pub := hub.Join("pub")
	sub := hub.Join("sub").(*Endpoint)

	r := newRecorder()
	unsubscribe := sub.Subscribe(r.handle)
	keep := newRecorder()
	sub.Subscribe(keep.handle)

	unsubscribe()
	unsubscribe()

	if n := sub.listeners.len(); n != 1 {
		t.Fatalf("listeners = %d, want 1", n)
	}

	pub.Publish(context.Background(), Changed(TypeQueues))
	keep.wait(t, 1)
	if r.count() != 0 {
		t.Error("removed handler still received events")
	}
}

func TestFullQueueDropsEvents(t *testing.T) {
	hub := NewHub(1, newTestLogger())
	defer hub.Close()

	pub := hub.Join("pub")
	sub := hub.Join("sub")

	block := make(chan struct{})
	r := newRecorder()
	sub.Subscribe(func(ev Event) {
		<-block
		r.handle(ev)
	})

	for i := 0; i < 10; i++ {
		if err := pub.Publish(context.Background(), Changed(TypeExtensions)); err != nil {
			t.Fatal(err)
		}
	}
	close(block)

	// one event in flight plus one queued; the rest were dropped
	r.wait(t, 1)
	time.Sleep(50 * time.Millisecond)
	if n := r.count(); n > 2 {
		t.Errorf("delivered %d events with a queue of 1", n)
	}
}

func TestClosedEndpoint(t *testing.T) {
	hub := NewHub(4, newTestLogger())
	defer hub.Close()

	a := hub.Join("a").(*Endpoint)
	b := hub.Join("b")
	r := newRecorder()
	a.Subscribe(r.handle)

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	a.Close()

	select {
	case <-a.Done():
	case <-time.After(time.Second):
		t.Fatal("endpoint goroutine did not exit")
	}

	if err := a.Publish(context.Background(), Changed(TypeQueues)); err != ErrClosed {
		t.Errorf("Publish on closed endpoint = %v, want ErrClosed", err)
	}
	if err := b.Publish(context.Background(), Changed(TypeQueues)); err != nil {
		t.Errorf("Publish after peer closed = %v", err)
	}
	if r.count() != 0 {
		t.Error("closed endpoint received events")
	}
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewHub(4, newTestLogger())
	defer hub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := hub.Join("a").Publish(ctx, Changed(TypeQueues)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestHubClose(t *testing.T) {
	hub := NewHub(4, newTestLogger())
	a := hub.Join("a")
	hub.Close()
	hub.Close()

	if err := a.Publish(context.Background(), Changed(TypeQueues)); err != ErrClosed {
		t.Errorf("Publish after hub close = %v, want ErrClosed", err)
	}

	late := hub.Join("late")
	if err := late.Publish(context.Background(), Changed(TypeQueues)); err != ErrClosed {
		t.Errorf("Publish on endpoint joined after close = %v, want ErrClosed", err)
	}
}
