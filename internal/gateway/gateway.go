// Package gateway is the presence/push edge: it tracks live connections
// and opportunistically pushes events to online users. Durability lives
// in the store; everything here is best-effort.
package gateway

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/cache"
	"github.com/fathima-sithara/chat-delivery/internal/models"
	"github.com/fathima-sithara/chat-delivery/internal/ws"
)

// PresenceStore is the cache-tier mirror of live connections.
type PresenceStore interface {
	Set(ctx context.Context, userID, connectionID string) error
	Delete(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (*cache.PresenceEntry, error)
	ListOnline(ctx context.Context) ([]string, error)
}

// FriendGraph supplies the friend-id set for presence fan-out only.
type FriendGraph interface {
	Friends(ctx context.Context, userID string) ([]string, error)
}

// Envelope is the wire shape of every pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type Gateway struct {
	hub      *ws.Hub
	presence PresenceStore
	graph    FriendGraph
	log      *zap.Logger
}

func New(hub *ws.Hub, presence PresenceStore, graph FriendGraph, log *zap.Logger) *Gateway {
	return &Gateway{hub: hub, presence: presence, graph: graph, log: log}
}

// Register adds the connection to the hub, mirrors it into the cache
// tier, and fans out friend_status_change online to the user's friends.
// Fan-out is fire-and-forget per target: no retry, no queue.
func (g *Gateway) Register(ctx context.Context, c *ws.Client) {
	if prior := g.hub.Add(c); prior != nil {
		prior.Close()
	}
	if err := g.presence.Set(ctx, c.UserID, c.ConnID); err != nil {
		g.log.Warn("presence register", zap.String("user", c.UserID), zap.Error(err))
	}
	g.fanOutStatus(ctx, c.UserID, "online")
}

// Unregister drops the connection and fans out the offline status. A
// stale disconnect from a superseded connection is ignored.
func (g *Gateway) Unregister(ctx context.Context, c *ws.Client) {
	if !g.hub.Remove(c) {
		return
	}
	if err := g.presence.Delete(ctx, c.UserID); err != nil {
		g.log.Warn("presence remove", zap.String("user", c.UserID), zap.Error(err))
	}
	g.fanOutStatus(ctx, c.UserID, "offline")
}

func (g *Gateway) fanOutStatus(ctx context.Context, userID, status string) {
	friends, err := g.graph.Friends(ctx, userID)
	if err != nil {
		// fail open: presence fan-out is never worth an error
		g.log.Debug("friend graph unavailable", zap.String("user", userID), zap.Error(err))
		return
	}
	payload := map[string]string{"user_id": userID, "status": status}
	for _, friend := range friends {
		_ = g.SendToUser(friend, models.EventFriendStatusChange, payload)
	}
}

// SendToUser delivers the event if the user holds a live connection and
// reports success either way: push is a latency optimization, never a
// correctness requirement.
func (g *Gateway) SendToUser(userID, event string, data any) error {
	payload, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return err
	}
	if !g.hub.Send(userID, payload) {
		g.log.Debug("push skipped, user offline",
			zap.String("user", userID),
			zap.String("event", event))
	}
	return nil
}

// Online consults the hub first, then the cache tier, so presence held
// by another gateway instance (or surviving a restart) still counts.
func (g *Gateway) Online(ctx context.Context, userID string) bool {
	if g.hub.Online(userID) {
		return true
	}
	entry, err := g.presence.Get(ctx, userID)
	return err == nil && entry != nil
}

// RebuildPresence re-announces every user the cache tier still records
// as online, run once at startup. The connections themselves cannot be
// rebuilt; clients reconnect on their own, but friends keep seeing the
// presence that survived the restart instead of a silent mass-offline.
func (g *Gateway) RebuildPresence(ctx context.Context) error {
	users, err := g.presence.ListOnline(ctx)
	if err != nil {
		return err
	}
	for _, userID := range users {
		g.fanOutStatus(ctx, userID, "online")
	}
	g.log.Info("presence rebuilt from cache tier", zap.Int("users", len(users)))
	return nil
}

// KeepPresenceFresh re-mirrors every live connection into the cache
// tier on the given interval. Presence entries carry a short TTL so a
// crashed gateway's users lapse to offline; this loop is what keeps an
// entry alive exactly as long as its connection.
func (g *Gateway) KeepPresenceFresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.refreshPresence(ctx)
		}
	}
}

func (g *Gateway) refreshPresence(ctx context.Context) {
	for _, c := range g.hub.Clients() {
		if err := g.presence.Set(ctx, c.UserID, c.ConnID); err != nil {
			g.log.Warn("presence refresh", zap.String("user", c.UserID), zap.Error(err))
		}
	}
}

// Connections reports the live local connection count.
func (g *Gateway) Connections() int { return g.hub.Count() }
