package api

import (
	"context"
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/gateway"
	"github.com/fathima-sithara/chat-delivery/internal/metrics"
	"github.com/fathima-sithara/chat-delivery/internal/ws"
)

type wsHandler struct {
	gw    *gateway.Gateway
	coord Coordinator
	log   *zap.Logger
}

func (h *wsHandler) upgrade() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

type inboundFrame struct {
	Event string `json:"event"`
	Data  struct {
		ChatID string `json:"chat_id"`
	} `json:"data"`
}

// serve runs for the lifetime of one connection: register presence,
// pump outbound events, and relay inbound typing indicators.
func (h *wsHandler) serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		uid, _ := conn.Locals("user_id").(string)
		if uid == "" {
			_ = conn.Close()
			return
		}

		client := ws.NewClient(uid, uuid.NewString(), conn)
		ctx := context.Background()

		h.gw.Register(ctx, client)
		metrics.Connections.Inc()
		go client.WritePump()

		defer func() {
			h.gw.Unregister(ctx, client)
			metrics.Connections.Dec()
			client.Close()
		}()

		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame inboundFrame
			if err := json.Unmarshal(payload, &frame); err != nil {
				h.log.Debug("malformed ws frame", zap.String("user", uid))
				continue
			}
			if err := h.coord.RelayTyping(ctx, uid, frame.Data.ChatID, frame.Event); err != nil {
				h.log.Debug("typing relay rejected",
					zap.String("user", uid),
					zap.String("event", frame.Event),
					zap.Error(err))
			}
		}
	})
}
