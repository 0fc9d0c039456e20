package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/foxzi/phonebook/internal/broadcast"
	"github.com/foxzi/phonebook/internal/metrics"
)

const (
	eventWriteWait  = 10 * time.Second
	eventClientSize = 16
)

// EventHub pushes change events to WebSocket clients
type EventHub struct {
	upgrader  websocket.Upgrader
	pingEvery time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *eventClient) stop() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// NewEventHub creates a hub pinging clients every pingEvery
func NewEventHub(pingEvery time.Duration, logger *slog.Logger) *EventHub {
	if pingEvery <= 0 {
		pingEvery = 30 * time.Second
	}
	return &EventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the directory is public
			CheckOrigin: func(*http.Request) bool { return true },
		},
		pingEvery: pingEvery,
		logger:    logger.With("component", "events"),
		clients:   make(map[*eventClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	c := &eventClient{
		conn: conn,
		send: make(chan []byte, eventClientSize),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(eventWriteWait))
		conn.Close()
		return
	}
	defer h.unregister(c)

	go h.writePump(c)
	h.readPump(c)
}

func (h *EventHub) register(c *eventClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	metrics.AddEventClients(1)
	h.logger.Debug("event client connected", "clients", len(h.clients))
	return true
}

func (h *EventHub) unregister(c *eventClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		metrics.AddEventClients(-1)
	}
	h.mu.Unlock()
	c.stop()
}

// readPump discards client messages and notices disconnects
func (h *EventHub) readPump(c *eventClient) {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * h.pingEvery))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(c *eventClient) {
	ticker := time.NewTicker(h.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.stop()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(eventWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.stop()
				return
			}
		}
	}
}

// Publish queues ev for every client. Clients whose queue is full are
// disconnected.
func (h *EventHub) Publish(ev broadcast.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("dropping slow event client")
			delete(h.clients, c)
			metrics.AddEventClients(-1)
			c.stop()
		}
	}
}

// Count returns the number of connected clients
func (h *EventHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		metrics.AddEventClients(-1)
		c.stop()
	}
}
