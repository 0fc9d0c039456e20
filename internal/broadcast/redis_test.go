package broadcast

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestEnvelope(t *testing.T) {
	data, err := encodeEnvelope(Event{Type: TypeQueues, Action: ActionUpdate, Source: "api"}, "origin-1")
	if err != nil {
		t.Fatalf("encodeEnvelope failed: %v", err)
	}

	ev, origin, err := decodeEnvelope(string(data))
	if err != nil {
		t.Fatalf("decodeEnvelope failed: %v", err)
	}
	if ev.Type != TypeQueues || ev.Action != ActionUpdate || ev.Source != "api" {
		t.Errorf("decoded %+v", ev)
	}
	if origin != "origin-1" {
		t.Errorf("origin = %q", origin)
	}
}

func TestDecodeEnvelopeFromOtherClients(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		want    Event
	}{
		{"minimal payload", `{"type":"extensions","action":"update"}`, false, Event{Type: "extensions", Action: "update"}},
		{"missing action", `{"type":"queues"}`, false, Event{Type: "queues", Action: "update"}},
		{"missing type", `{"action":"update"}`, true, Event{}},
		{"not json", `update`, true, Event{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, _, err := decodeEnvelope(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && ev != tt.want {
				t.Errorf("decoded %+v, want %+v", ev, tt.want)
			}
		})
	}
}

func TestRedisTransport(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client, err := OpenRedis(context.Background(), RedisConfig{Addr: addr})
	if err != nil {
		t.Fatalf("OpenRedis failed: %v", err)
	}
	tr := NewRedisTransport(client, "phonebook_test_"+time.Now().Format("150405.000"), 16, newTestLogger())
	defer tr.Close()

	a := tr.Join("a")
	b := tr.Join("b")
	defer a.Close()
	defer b.Close()

	ra, rb := newRecorder(), newRecorder()
	a.Subscribe(ra.handle)
	b.Subscribe(rb.handle)

	// allow both subscriptions to register
	time.Sleep(200 * time.Millisecond)

	if err := a.Publish(context.Background(), Changed(TypeExtensions)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	got := rb.wait(t, 1)
	if got[0].Type != TypeExtensions || got[0].Source != "a" {
		t.Errorf("got %+v", got[0])
	}

	time.Sleep(100 * time.Millisecond)
	if ra.count() != 0 {
		t.Error("publisher received its own event")
	}
}
