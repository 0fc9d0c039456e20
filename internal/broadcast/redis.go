package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/foxzi/phonebook/internal/metrics"
)

// RedisConfig holds connection settings for the Redis transport
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	DialTimeout time.Duration
	PingTimeout time.Duration
}

// OpenRedis connects to Redis and validates connectivity via PING
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// envelope is the wire form of an event on the Redis channel
type envelope struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Source string `json:"source,omitempty"`
	Origin string `json:"origin"`
}

func encodeEnvelope(ev Event, origin string) ([]byte, error) {
	return json.Marshal(envelope{
		Type:   ev.Type,
		Action: ev.Action,
		Source: ev.Source,
		Origin: origin,
	})
}

func decodeEnvelope(payload string) (Event, string, error) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return Event{}, "", err
	}
	if env.Type == "" {
		return Event{}, "", fmt.Errorf("event without type")
	}
	if env.Action == "" {
		env.Action = ActionUpdate
	}
	return Event{Type: env.Type, Action: env.Action, Source: env.Source}, env.Origin, nil
}

// RedisTransport shares events across processes over Redis pub/sub.
// Each endpoint tags its events with a unique origin and ignores them
// when they come back.
type RedisTransport struct {
	client  redis.UniversalClient
	channel string
	buffer  int
	logger  *slog.Logger
}

// NewRedisTransport creates a transport publishing on channel
func NewRedisTransport(client redis.UniversalClient, channel string, buffer int, logger *slog.Logger) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &RedisTransport{
		client:  client,
		channel: channel,
		buffer:  buffer,
		logger:  logger,
	}
}

// Join subscribes a new endpoint to the channel
func (t *RedisTransport) Join(name string) Broadcaster {
	ctx, cancel := context.WithCancel(context.Background())
	e := &redisEndpoint{
		name:      name,
		origin:    uuid.New().String(),
		transport: t,
		pubsub:    t.client.Subscribe(ctx, t.channel),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go e.run()
	return e
}

// Close closes the Redis client
func (t *RedisTransport) Close() error {
	return t.client.Close()
}

type redisEndpoint struct {
	name      string
	origin    string
	transport *RedisTransport
	pubsub    *redis.PubSub
	listeners listeners
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func (e *redisEndpoint) run() {
	defer close(e.done)
	logger := e.transport.logger

	ch := e.pubsub.Channel(redis.WithChannelSize(e.transport.buffer))
	for msg := range ch {
		ev, origin, err := decodeEnvelope(msg.Payload)
		if err != nil {
			logger.Warn("invalid broadcast payload", "endpoint", e.name, "error", err)
			continue
		}
		if origin == e.origin {
			continue
		}
		if n := e.listeners.dispatch(ev); n > 0 {
			metrics.IncBroadcastDelivered(ev.Type)
		}
	}
}

func (e *redisEndpoint) Publish(ctx context.Context, ev Event) error {
	ev.Source = e.name
	data, err := encodeEnvelope(ev, e.origin)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := e.transport.client.Publish(ctx, e.transport.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.IncBroadcastPublished(ev.Type)
	return nil
}

func (e *redisEndpoint) Subscribe(fn Handler) func() {
	return e.listeners.add(fn)
}

func (e *redisEndpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.cancel()
		err = e.pubsub.Close()
	})
	return err
}
