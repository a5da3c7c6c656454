// Package hub fans websocket frames out to dashboard viewers. The dashboard
// runs one hub per stream: status updates as JSON text frames and
// thumbnails of triggering frames as binary JPEG.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"

	"github.com/teslashibe/go-lpr/internal/log"
)

// frame is one queued websocket write.
type frame struct {
	kind int // websocket.TextMessage or websocket.BinaryMessage
	data []byte
}

// Hub maintains the set of active clients and broadcasts messages to them
type Hub struct {
	name   string
	logger *slog.Logger

	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan frame

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Guards clients and last for readers outside Run
	mu sync.RWMutex

	// Replay the most recent message to new clients
	retain bool
	last   *frame

	// Closed when Run returns
	done chan struct{}

	running atomic.Bool
	dropped atomic.Int64
}

// Option configures a Hub.
type Option func(*Hub)

// WithRetain makes the hub send its most recent message to every client
// as soon as it connects.
func WithRetain() Option {
	return func(h *Hub) { h.retain = true }
}

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// New creates a new Hub
func New(name string, opts ...Option) *Hub {
	h := &Hub{
		name:       name,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan frame, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = log.Or(h.logger, "hub").With("hub", name)
	return h
}

// Run starts the hub's main loop and blocks until ctx is cancelled.
// All client send channels are closed on return. A hub runs once.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer func() {
		h.running.Store(false)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			last := h.last
			h.mu.Unlock()
			if last != nil {
				client.send <- *last
			}
			h.logger.Debug("client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", "clients", count)

		case message := <-h.broadcast:
			h.mu.Lock()
			if h.retain {
				m := message
				h.last = &m
			}
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Client's buffer is full, drop it
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// enqueue hands f to Run, dropping it if the hub is saturated.
func (h *Hub) enqueue(f frame) {
	select {
	case h.broadcast <- f:
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// BroadcastJSON encodes and broadcasts a JSON message
func (h *Hub) BroadcastJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	h.enqueue(frame{kind: websocket.TextMessage, data: data})
	return nil
}

// BroadcastBinary broadcasts binary data (JPEG thumbnails)
func (h *Hub) BroadcastBinary(data []byte) {
	h.enqueue(frame{kind: websocket.BinaryMessage, data: data})
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded because the hub
// was saturated.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// IsRunning returns whether the hub is running
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Name returns the hub name.
func (h *Hub) Name() string {
	return h.name
}
