package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxzi/phonebook/internal/metrics"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// Change is the payload of a trigger notification
type Change struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

func decodeChange(payload string) (Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return Change{}, fmt.Errorf("failed to decode change: %w", err)
	}
	if c.Table == "" {
		return Change{}, errors.New("change without table")
	}
	return c, nil
}

// Feed turns LISTEN notifications into per-table callbacks
type Feed struct {
	pool    *pgxpool.Pool
	channel string
	logger  *slog.Logger

	mu     sync.RWMutex
	next   int
	topics map[string]map[int]func()
}

// NewFeed creates a feed over pool listening on channel
func NewFeed(pool *pgxpool.Pool, channel string, logger *slog.Logger) *Feed {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &Feed{
		pool:    pool,
		channel: channel,
		logger:  logger.With("component", "backend_feed"),
		topics:  make(map[string]map[int]func()),
	}
}

// Subscribe calls fn on every change to the named table
func (f *Feed) Subscribe(topic string, fn func()) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	if f.topics[topic] == nil {
		f.topics[topic] = make(map[int]func())
	}
	f.topics[topic][id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.topics[topic], id)
			f.mu.Unlock()
		})
	}
}

func (f *Feed) dispatch(c Change) int {
	f.mu.RLock()
	fns := make([]func(), 0, len(f.topics[c.Table]))
	for _, fn := range f.topics[c.Table] {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
	if len(fns) > 0 {
		metrics.IncBroadcastDelivered(c.Table)
	}
	return len(fns)
}

// Run listens until ctx is done, reconnecting with exponential backoff
func (f *Feed) Run(ctx context.Context) error {
	backoff := minBackoff
	for {
		err := f.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("notification listener stopped", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{f.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", f.channel, err)
	}
	f.logger.Info("listening for backend changes", "channel", f.channel)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		c, err := decodeChange(n.Payload)
		if err != nil {
			f.logger.Warn("ignoring notification", "payload", n.Payload, "error", err)
			continue
		}
		f.logger.Debug("backend change", "table", c.Table, "op", c.Op)
		f.dispatch(c)
	}
}
