package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	flogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/gateway"
)

type ServerOptions struct {
	JWTSecret     string
	RatePerMinute int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// NewServer assembles the fiber app: REST routes plus the websocket
// endpoint. Auth runs before the upgrade so the ws handler sees
// user_id in locals.
func NewServer(coord Coordinator, sessions SessionManager, gw *gateway.Gateway, opts ServerOptions, log *zap.Logger) *fiber.App {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	app := fiber.New(fiber.Config{
		ReadTimeout:           opts.ReadTimeout,
		WriteTimeout:          opts.WriteTimeout,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(flogger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "connections": gw.Connections()})
	})

	h := NewHandlers(coord, sessions, log)
	auth := NewAuth(opts.JWTSecret, sessions, log)
	limiter := NewIPRateLimiter(opts.RatePerMinute, log)

	api := app.Group("/api/v1", limiter.Handler(), auth.Handler())

	api.Post("/messages", h.SendMessage)
	api.Post("/messages/:message_id/recall", h.Recall)
	api.Post("/messages/:message_id/forward", h.Forward)
	api.Patch("/messages/:message_id", h.Edit)
	api.Delete("/messages/:message_id", h.Delete)

	api.Get("/chats/recent", h.RecentChats)
	api.Get("/chats/:chat_id/messages", h.History)
	api.Post("/chats/:chat_id/read", h.MarkRead)

	api.Get("/unread", h.UnreadCount)

	api.Post("/sessions", h.CreateSession)
	api.Delete("/sessions/:session_id", h.DeleteSession)

	wsh := &wsHandler{gw: gw, coord: coord, log: log}
	app.Get("/ws", limiter.Handler(), auth.Handler(), wsh.upgrade(), wsh.serve())

	return app
}
