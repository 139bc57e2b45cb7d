package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second

	// pongWait is how long a client may stay silent
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound command messages
	maxMessageSize = 64 * 1024

	// sendQueue is how many updates may wait per client before it is dropped
	sendQueue = 64
)

// Client is one status subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	// onMessage receives inbound text messages, if set
	onMessage func(data []byte)
}

// NewClient creates a client for conn and registers it with h.
// h must be running.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan Message, sendQueue),
	}
	h.register <- c
	return c
}

// OnMessage sets a handler for inbound text messages.
// Must be called before Run.
func (c *Client) OnMessage(fn func(data []byte)) {
	c.onMessage = fn
}

// Run serves the connection until it closes. Call it from the websocket
// handler; the write side runs on its own goroutine and Run waits for it.
func (c *Client) Run() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()

	c.readLoop()
	<-written
}

// readLoop dispatches commands and notices disconnects.
func (c *Client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.TextMessage && c.onMessage != nil {
			c.onMessage(data)
		}
	}
}

// writeLoop is the only writer on the connection. It exits when the hub
// closes the send channel or a write fails.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				c.hub.logger.Debug("status write failed", "topic", msg.Topic, "error", err)
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
