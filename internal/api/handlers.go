package api

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/delivery"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// Coordinator is the handler-facing surface of the delivery pipeline,
// an interface so the server is testable with a double.
type Coordinator interface {
	SendMessage(ctx context.Context, sender, receiver, content string, typ models.MessageType) (*models.Message, error)
	History(ctx context.Context, userID, chatID string, page, limit int) ([]models.Message, error)
	MarkAsRead(ctx context.Context, userID, chatID string) error
	RecallMessage(ctx context.Context, messageID, userID string) (*models.Message, error)
	ForwardMessage(ctx context.Context, messageID, fromUser string, toUsers []string) ([]delivery.ForwardResult, error)
	EditMessage(ctx context.Context, messageID, userID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, messageID, userID string) error
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	GetRecentChats(ctx context.Context, userID string) ([]models.ChatPreview, error)
	RelayTyping(ctx context.Context, userID, chatID, event string) error
}

// SessionManager is the cache-tier session surface. Validate refreshes
// the sliding TTL as a side effect.
type SessionManager interface {
	Create(ctx context.Context, userID, deviceInfo, fingerprint string) (*models.Session, error)
	Validate(ctx context.Context, userID, sessionID string) (*models.Session, error)
	Delete(ctx context.Context, userID, sessionID string) error
}

type Handlers struct {
	coord    Coordinator
	sessions SessionManager
	log      *zap.Logger
}

func NewHandlers(coord Coordinator, sessions SessionManager, log *zap.Logger) *Handlers {
	return &Handlers{coord: coord, sessions: sessions, log: log}
}

func userID(c *fiber.Ctx) string {
	uid, _ := c.Locals("user_id").(string)
	return uid
}

func respondErr(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		status = fiber.StatusBadRequest
	case apperr.CodeNotFound:
		status = fiber.StatusNotFound
	case apperr.CodeUnauthorized:
		status = fiber.StatusUnauthorized
	case apperr.CodeForbidden:
		status = fiber.StatusForbidden
	case apperr.CodeRecallTooLate, apperr.CodeMessageGone, apperr.CodeChatDeleted:
		status = fiber.StatusConflict
	case apperr.CodeTransient:
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
		"code":  string(apperr.CodeOf(err)),
	})
}

func (h *Handlers) SendMessage(c *fiber.Ctx) error {
	var req struct {
		ReceiverID string             `json:"receiver_id"`
		Content    string             `json:"content"`
		Type       models.MessageType `json:"type"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid request body"))
	}

	msg, err := h.coord.SendMessage(c.Context(), userID(c), req.ReceiverID, req.Content, req.Type)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *Handlers) History(c *fiber.Ctx) error {
	chatID := c.Params("chat_id")
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)

	msgs, err := h.coord.History(c.Context(), userID(c), chatID, page, limit)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}

func (h *Handlers) MarkRead(c *fiber.Ctx) error {
	if err := h.coord.MarkAsRead(c.Context(), userID(c), c.Params("chat_id")); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *Handlers) Recall(c *fiber.Ctx) error {
	msg, err := h.coord.RecallMessage(c.Context(), c.Params("message_id"), userID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

func (h *Handlers) Forward(c *fiber.Ctx) error {
	var req struct {
		ToUsers []string `json:"to_users"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid request body"))
	}

	results, err := h.coord.ForwardMessage(c.Context(), c.Params("message_id"), userID(c), req.ToUsers)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"results": results})
}

func (h *Handlers) Edit(c *fiber.Ctx) error {
	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid request body"))
	}

	msg, err := h.coord.EditMessage(c.Context(), c.Params("message_id"), userID(c), req.Content)
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(msg)
}

func (h *Handlers) Delete(c *fiber.Ctx) error {
	if err := h.coord.DeleteMessage(c.Context(), c.Params("message_id"), userID(c)); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

func (h *Handlers) RecentChats(c *fiber.Ctx) error {
	previews, err := h.coord.GetRecentChats(c.Context(), userID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"chats": previews})
}

func (h *Handlers) UnreadCount(c *fiber.Ctx) error {
	total, err := h.coord.GetUnreadCount(c.Context(), userID(c))
	if err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"unread": total})
}

func (h *Handlers) CreateSession(c *fiber.Ctx) error {
	var req struct {
		DeviceInfo  string `json:"device_info"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := c.BodyParser(&req); err != nil {
		return respondErr(c, apperr.Validation("invalid request body"))
	}
	if req.Fingerprint == "" {
		return respondErr(c, apperr.Validation("device fingerprint is required"))
	}

	sess, err := h.sessions.Create(c.Context(), userID(c), req.DeviceInfo, req.Fingerprint)
	if err != nil {
		return respondErr(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (h *Handlers) DeleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Context(), userID(c), c.Params("session_id")); err != nil {
		return respondErr(c, err)
	}
	return c.JSON(fiber.Map{"status": "logged_out"})
}
