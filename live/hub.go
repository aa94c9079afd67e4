// Package live pushes doodle events to WebSocket subscribers.
//
// Delivery is best effort: every client owns a bounded send queue and a
// message is dropped for a client whose queue is full or that is no longer
// registered. Publishing never blocks the caller.
package live

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/argo/doodlewall/gallery"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// DefaultChannel is the channel of clients that never subscribed.
const DefaultChannel = "doodles"

// ErrClosed is returned when registering on a closed hub.
var ErrClosed = errors.New("hub is closed")

// MessageType identifies a live channel message.
type MessageType string

// Server to client messages.
const (
	TypeConnected      MessageType = "connected"
	TypeNewDoodle      MessageType = "new_doodle"
	TypeReactionUpdate MessageType = "reaction_update"
	TypePong           MessageType = "pong"
)

// Client to server messages.
const (
	TypePing      MessageType = "ping"
	TypeSubscribe MessageType = "subscribe"
)

// Message is the envelope of every frame on the live channel.
type Message struct {
	Type         MessageType `json:"type"`
	ClientID     string      `json:"clientId,omitempty"`
	TotalClients int         `json:"totalClients,omitempty"`
	Channels     []string    `json:"channels,omitempty"`
	Data         any         `json:"data,omitempty"`
}

// ReactionData is the payload of a reaction_update message.
type ReactionData struct {
	DoodleID  string         `json:"doodleId"`
	Reactions gallery.Counts `json:"reactions"`
}

// Hub is the registry of connected clients. Create it with NewHub at startup
// and Close it on shutdown.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool

	pumps sync.WaitGroup
}

// NewHub returns an empty hub. When allowedOrigins is empty every origin may
// connect.
func NewHub(logger *slog.Logger, allowedOrigins []string) *Hub {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("Could not upgrade connection", "error", err.Error())
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendQueueSize),
	}
	total, err := h.add(c)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}
	h.logger.Info("Live client connected", "client_id", c.id, "total", total)
	h.deliver(c, Message{Type: TypeConnected, ClientID: c.id, TotalClients: total})

	go func() {
		defer h.pumps.Done()
		c.writePump()
	}()
	go c.readPump()
}

func (h *Hub) add(c *client) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	h.clients[c.id] = c
	h.pumps.Add(1)
	return len(h.clients), nil
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
	h.logger.Info("Live client disconnected", "client_id", c.id)
}

// deliver queues m for a single client. Queues are only closed under the
// write lock, so holding the read lock makes the send safe.
func (h *Hub) deliver(c *client, m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("Could not encode live message", "type", m.Type, "error", err.Error())
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	c.enqueue(b)
}

// Publish queues m for every client subscribed to channel.
func (h *Hub) Publish(channel string, m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		h.logger.Error("Could not encode live message", "type", m.Type, "error", err.Error())
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.subscribed(channel) {
			c.enqueue(b)
		}
	}
}

// DoodleCreated broadcasts a new_doodle message on the default channel.
func (h *Hub) DoodleCreated(d gallery.Doodle) {
	h.Publish(DefaultChannel, Message{Type: TypeNewDoodle, Data: d})
}

// ReactionUpdated broadcasts a reaction_update message on the default channel.
func (h *Hub) ReactionUpdated(doodleID string, counts gallery.Counts) {
	h.Publish(DefaultChannel, Message{
		Type: TypeReactionUpdate,
		Data: ReactionData{DoodleID: doodleID, Reactions: counts},
	})
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops accepting connections, closes every client and waits for their
// writers to finish.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
	h.mu.Unlock()

	h.pumps.Wait()
	return nil
}
