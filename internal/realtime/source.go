package realtime

import "github.com/foxzi/phonebook/internal/broadcast"

// BroadcastSource adapts a broadcast endpoint to a Source keyed by event type
type BroadcastSource struct {
	b broadcast.Broadcaster
}

// NewBroadcastSource wraps b
func NewBroadcastSource(b broadcast.Broadcaster) *BroadcastSource {
	return &BroadcastSource{b: b}
}

// Subscribe calls fn for every event of the given type
func (s *BroadcastSource) Subscribe(topic string, fn func()) func() {
	return s.b.Subscribe(func(ev broadcast.Event) {
		if ev.Type == topic {
			fn()
		}
	})
}
