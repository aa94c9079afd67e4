package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendQueueSize  = 32
)

// client is a single WebSocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	channels map[string]struct{} // nil means DefaultChannel only
}

func (c *client) subscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channels == nil {
		return channel == DefaultChannel
	}
	_, ok := c.channels[channel]
	return ok
}

func (c *client) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(channels) == 0 {
		c.channels = nil
		return
	}
	c.channels = make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
}

// enqueue must be called with the hub read lock held.
func (c *client) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
		c.hub.logger.Warn("Live client queue full, dropping message", "client_id", c.id)
	}
}

// readPump handles client messages until the connection fails, then
// unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("Live connection error", "client_id", c.id, "error", err.Error())
			}
			return
		}
		c.handle(data)
	}
}

func (c *client) handle(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.logger.Warn("Invalid live message", "client_id", c.id, "error", err.Error())
		return
	}

	switch msg.Type {
	case TypePing:
		c.hub.deliver(c, Message{Type: TypePong})
	case TypeSubscribe:
		c.subscribe(msg.Channels)
	default:
		c.hub.logger.Info("Unknown live message type", "client_id", c.id, "type", msg.Type)
	}
}

// writePump writes queued messages and keep-alive pings until the queue is
// closed or a write fails.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
