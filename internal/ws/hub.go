// Package ws holds the live-connection registry. The hub is an explicit
// object constructed once and passed by reference; there is no package
// level connection map.
package ws

import (
	"sync"
)

// Hub maps userID to the user's live client. A reconnect replaces the
// prior client for that user.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

// Add registers the client and returns the one it superseded, if any,
// so the caller can close it.
func (h *Hub) Add(c *Client) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()
	prior := h.clients[c.UserID]
	h.clients[c.UserID] = c
	return prior
}

// Remove drops the client only if it is still the registered one — a
// stale disconnect must not evict a newer connection.
func (h *Hub) Remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.clients[c.UserID]; ok && cur.ConnID == c.ConnID {
		delete(h.clients, c.UserID)
		return true
	}
	return false
}

func (h *Hub) Online(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// Send enqueues payload for the user's connection. Returns false when
// the user has no live client here; slow clients drop rather than block.
func (h *Hub) Send(userID string, payload []byte) bool {
	h.mu.RLock()
	c, ok := h.clients[userID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.enqueue(payload)
	return true
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Clients snapshots the live connections.
func (h *Hub) Clients() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}
