package ws

import (
	"github.com/gofiber/websocket/v2"
)

const sendBuffer = 64

// Client is one live connection. The write pump is the only goroutine
// touching the conn for writes.
type Client struct {
	UserID string
	ConnID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func NewClient(userID, connID string, conn *websocket.Conn) *Client {
	return &Client{
		UserID: userID,
		ConnID: connID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		// backpressure: drop for a slow consumer, push is best-effort
	}
}

// Outgoing exposes the send queue; the write pump and tests drain it.
func (c *Client) Outgoing() <-chan []byte { return c.send }

// WritePump drains the send queue onto the wire until Close.
func (c *Client) WritePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if c.conn == nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func (c *Client) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
