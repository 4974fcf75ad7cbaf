// Package delivery orchestrates the message pipeline: chat resolution,
// persistence, bus publication, read/recall transitions, and best-effort
// push. Every dependency is an interface passed in at construction.
package delivery

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/bus"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

type ChatStore interface {
	GetOrCreatePrivate(ctx context.Context, userA, userB string) (*models.Chat, error)
	Get(ctx context.Context, chatID string) (*models.Chat, error)
	SetLastMessage(ctx context.Context, chatID, messageID string) error
	IncUnread(ctx context.Context, chatID, userID string, delta int) error
	ResetUnread(ctx context.Context, chatID, userID string) error
	ListByUser(ctx context.Context, userID string) ([]models.Chat, error)
}

type MessageStore interface {
	Insert(ctx context.Context, msg *models.Message) error
	Get(ctx context.Context, messageID string) (*models.Message, error)
	ListPage(ctx context.Context, chatID string, page, limit int) ([]models.Message, error)
	MarkDelivered(ctx context.Context, messageID string) (bool, error)
	ListUnreadFor(ctx context.Context, chatID, userID string) ([]models.Message, error)
	AddReadReceipts(ctx context.Context, messageIDs []string, userID string, readAt time.Time) error
	Recall(ctx context.Context, messageID string) (bool, error)
	Edit(ctx context.Context, messageID, prior, content string, at time.Time) (bool, error)
	SoftDelete(ctx context.Context, messageID string) error
}

type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	PublishBatch(ctx context.Context, topic string, envelopes []bus.Envelope) error
}

type Pusher interface {
	SendToUser(userID, event string, data any) error
}

// Cache is the bounded-staleness accelerator; Get reporting a miss on
// failure is part of the contract.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type Options struct {
	RecallWindow    time.Duration
	MaxContentRunes int
	CacheTTL        time.Duration
	RecentChatLimit int
}

type Coordinator struct {
	chats ChatStore
	msgs  MessageStore
	bus   Publisher
	cache Cache
	push  Pusher
	log   *zap.Logger

	recallWindow    time.Duration
	maxContentRunes int
	cacheTTL        time.Duration
	recentChatLimit int

	now func() time.Time
}

func New(chats ChatStore, msgs MessageStore, pub Publisher, cache Cache, push Pusher, log *zap.Logger, opts Options) *Coordinator {
	if opts.RecallWindow <= 0 {
		opts.RecallWindow = 120 * time.Second
	}
	if opts.MaxContentRunes <= 0 {
		opts.MaxContentRunes = 4096
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 300 * time.Second
	}
	if opts.RecentChatLimit <= 0 {
		opts.RecentChatLimit = 20
	}
	return &Coordinator{
		chats:           chats,
		msgs:            msgs,
		bus:             pub,
		cache:           cache,
		push:            push,
		log:             log,
		recallWindow:    opts.RecallWindow,
		maxContentRunes: opts.MaxContentRunes,
		cacheTTL:        opts.CacheTTL,
		recentChatLimit: opts.RecentChatLimit,
		now:             time.Now,
	}
}

// GetOrCreateChat resolves the unique private chat for the unordered
// pair; the store's canonical-key upsert makes it race-safe.
func (c *Coordinator) GetOrCreateChat(ctx context.Context, userA, userB string) (*models.Chat, error) {
	if userA == "" || userB == "" {
		return nil, apperr.Validation("both participants are required")
	}
	if userA == userB {
		return nil, apperr.Validation("a private chat needs two distinct participants")
	}
	return c.chats.GetOrCreatePrivate(ctx, userA, userB)
}

func (c *Coordinator) validateContent(content string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", apperr.Validation("message content must not be empty")
	}
	if utf8.RuneCountInString(content) > c.maxContentRunes {
		return "", apperr.Validation("message content exceeds %d characters", c.maxContentRunes)
	}
	return content, nil
}

// SendMessage persists the message (status=sent), bumps the receiver's
// unread counter, publishes the delivery event keyed by receiver, and
// best-effort pushes to both parties for immediate UI echo.
func (c *Coordinator) SendMessage(ctx context.Context, sender, receiver, content string, typ models.MessageType) (*models.Message, error) {
	if sender == "" || receiver == "" {
		return nil, apperr.Validation("sender and receiver are required")
	}
	if sender == receiver {
		return nil, apperr.Validation("cannot message yourself")
	}
	content, err := c.validateContent(content)
	if err != nil {
		return nil, err
	}
	if typ == "" {
		typ = models.MessageTypeText
	}
	if !typ.Valid() {
		return nil, apperr.Validation("unknown message type %q", typ)
	}

	chat, err := c.chats.GetOrCreatePrivate(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}

	now := c.now().UTC()
	msg := &models.Message{
		ID:         uuid.NewString(),
		ChatID:     chat.ID,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Type:       typ,
		Status:     models.StatusSent,
		CreatedAt:  now,
	}
	if err := c.msgs.Insert(ctx, msg); err != nil {
		// user-authored content is never silently lost: a failed
		// store write is a hard failure
		return nil, err
	}

	if err := c.chats.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		return nil, err
	}
	if err := c.chats.IncUnread(ctx, chat.ID, receiver, 1); err != nil {
		return nil, err
	}

	event := models.MessageEvent{
		MessageID:  msg.ID,
		ChatID:     chat.ID,
		SenderID:   sender,
		ReceiverID: receiver,
		CreatedAt:  now,
	}
	if err := c.bus.Publish(ctx, models.TopicChatMessages, receiver, event); err != nil {
		// durable already; the caller sees the retryable failure
		return nil, err
	}

	c.invalidatePreviews(ctx, sender, receiver)
	_ = c.push.SendToUser(sender, models.EventNewMessage, msg)
	_ = c.push.SendToUser(receiver, models.EventNewMessage, msg)

	return msg, nil
}

// MarkAsRead appends the user's read receipt to every message in the
// chat addressed to them that lacks one, notifies the original senders,
// and resets the chat's unread counter. Safe to repeat.
func (c *Coordinator) MarkAsRead(ctx context.Context, userID, chatID string) error {
	if userID == "" || chatID == "" {
		return apperr.Validation("user and chat are required")
	}
	chat, err := c.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return apperr.Forbidden("user %s is not a participant of chat %s", userID, chatID)
	}

	unread, err := c.msgs.ListUnreadFor(ctx, chatID, userID)
	if err != nil {
		return err
	}

	if len(unread) > 0 {
		now := c.now().UTC()
		ids := make([]string, 0, len(unread))
		for _, m := range unread {
			ids = append(ids, m.ID)
		}
		if err := c.msgs.AddReadReceipts(ctx, ids, userID, now); err != nil {
			return err
		}

		envelopes := make([]bus.Envelope, 0, len(unread))
		for _, m := range unread {
			receipt := map[string]any{
				"message_id": m.ID,
				"chat_id":    chatID,
				"user_id":    userID,
				"read_at":    now,
			}
			_ = c.push.SendToUser(m.SenderID, models.EventMessageRead, receipt)
			envelopes = append(envelopes, bus.Envelope{
				Key: m.SenderID,
				Payload: models.UserEvent{
					UserID:    m.SenderID,
					Kind:      models.EventMessageRead,
					ChatID:    chatID,
					MessageID: m.ID,
					At:        now,
				},
			})
		}
		if err := c.bus.PublishBatch(ctx, models.TopicUserEvents, envelopes); err != nil {
			c.log.Warn("read receipt publish failed", zap.String("chat", chatID), zap.Error(err))
		}
	}

	if err := c.chats.ResetUnread(ctx, chatID, userID); err != nil {
		return err
	}
	c.cache.Delete(ctx, unreadKey(userID))
	return nil
}

// RecallMessage tombstones a message within the recall window. Only the
// original sender may recall; outside the window the message is left
// untouched and a terminal TooLate error is returned.
func (c *Coordinator) RecallMessage(ctx context.Context, messageID, userID string) (*models.Message, error) {
	if messageID == "" || userID == "" {
		return nil, apperr.Validation("message and user are required")
	}
	msg, err := c.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("only the sender may recall a message")
	}
	if msg.Status == models.StatusRecalled {
		// terminal state already reached, nothing to redo
		return msg, nil
	}
	if c.now().UTC().Sub(msg.CreatedAt) > c.recallWindow {
		return nil, apperr.New(apperr.CodeRecallTooLate,
			"recall window of %s expired for message %s", c.recallWindow, messageID)
	}

	if _, err := c.msgs.Recall(ctx, messageID); err != nil {
		return nil, err
	}
	msg.Content = models.RecalledTombstone
	msg.Status = models.StatusRecalled

	chat, err := c.chats.Get(ctx, msg.ChatID)
	if err == nil {
		now := c.now().UTC()
		envelopes := make([]bus.Envelope, 0, len(chat.Participants))
		for _, p := range chat.Participants {
			if p == userID {
				continue
			}
			_ = c.push.SendToUser(p, models.EventMessageRecalled, map[string]string{
				"message_id": messageID,
				"chat_id":    msg.ChatID,
			})
			envelopes = append(envelopes, bus.Envelope{
				Key: p,
				Payload: models.UserEvent{
					UserID:    p,
					Kind:      models.EventMessageRecalled,
					ChatID:    msg.ChatID,
					MessageID: messageID,
					At:        now,
				},
			})
		}
		if err := c.bus.PublishBatch(ctx, models.TopicUserEvents, envelopes); err != nil {
			c.log.Warn("recall publish failed", zap.String("message", messageID), zap.Error(err))
		}
	}
	return msg, nil
}

// ForwardResult reports one recipient's outcome; failures are isolated
// per recipient.
type ForwardResult struct {
	UserID    string `json:"user_id"`
	OK        bool   `json:"ok"`
	MessageID string `json:"message_id,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ForwardMessage copies the message to each target user independently:
// one recipient's failure never rolls back another's success.
func (c *Coordinator) ForwardMessage(ctx context.Context, messageID, fromUser string, toUsers []string) ([]ForwardResult, error) {
	if messageID == "" || fromUser == "" {
		return nil, apperr.Validation("message and user are required")
	}
	if len(toUsers) == 0 {
		return nil, apperr.Validation("at least one recipient is required")
	}

	original, err := c.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if original.Status == models.StatusRecalled || original.IsDeleted {
		return nil, apperr.New(apperr.CodeMessageGone, "message %s is recalled or deleted", messageID)
	}
	srcChat, err := c.chats.Get(ctx, original.ChatID)
	if err != nil {
		return nil, err
	}
	if !srcChat.HasParticipant(fromUser) {
		return nil, apperr.Forbidden("user %s has no access to message %s", fromUser, messageID)
	}

	now := c.now().UTC()
	results := make([]ForwardResult, 0, len(toUsers))
	notifications := make([]bus.Envelope, 0, len(toUsers))
	deliveries := make([]bus.Envelope, 0, len(toUsers))

	for _, target := range toUsers {
		res := c.forwardTo(ctx, original, fromUser, target, now)
		if res.OK {
			notifications = append(notifications, bus.Envelope{
				Key: target,
				Payload: models.NotificationEvent{
					UserID:    target,
					Kind:      "message_forwarded",
					MessageID: res.MessageID,
					ChatID:    res.ChatID,
					FromUser:  fromUser,
					At:        now,
				},
			})
			deliveries = append(deliveries, bus.Envelope{
				Key: target,
				Payload: models.MessageEvent{
					MessageID:  res.MessageID,
					ChatID:     res.ChatID,
					SenderID:   fromUser,
					ReceiverID: target,
					CreatedAt:  now,
				},
			})
		}
		results = append(results, res)
	}

	if err := c.bus.PublishBatch(ctx, models.TopicChatMessages, deliveries); err != nil {
		c.log.Warn("forward delivery publish failed", zap.Error(err))
	}
	if err := c.bus.PublishBatch(ctx, models.TopicUserNotifications, notifications); err != nil {
		c.log.Warn("forward notification publish failed", zap.Error(err))
	}
	return results, nil
}

func (c *Coordinator) forwardTo(ctx context.Context, original *models.Message, fromUser, target string, now time.Time) ForwardResult {
	if target == "" || target == fromUser {
		return ForwardResult{UserID: target, Error: "invalid forward target"}
	}

	chat, err := c.chats.GetOrCreatePrivate(ctx, fromUser, target)
	if err != nil {
		c.log.Warn("forward chat resolution failed",
			zap.String("target", target), zap.Error(err))
		return ForwardResult{UserID: target, Error: err.Error()}
	}

	msg := &models.Message{
		ID:            uuid.NewString(),
		ChatID:        chat.ID,
		SenderID:      fromUser,
		ReceiverID:    target,
		Content:       original.Content,
		Type:          original.Type,
		Status:        models.StatusSent,
		Attachments:   original.Attachments,
		ForwardedFrom: original.ID,
		ReadBy:        []models.ReadReceipt{{UserID: fromUser, ReadAt: now}},
		CreatedAt:     now,
	}
	if err := c.msgs.Insert(ctx, msg); err != nil {
		return ForwardResult{UserID: target, Error: err.Error()}
	}
	if err := c.chats.SetLastMessage(ctx, chat.ID, msg.ID); err != nil {
		c.log.Warn("forward last-message update failed", zap.String("chat", chat.ID), zap.Error(err))
	}
	if err := c.chats.IncUnread(ctx, chat.ID, target, 1); err != nil {
		c.log.Warn("forward unread bump failed", zap.String("chat", chat.ID), zap.Error(err))
	}

	c.invalidatePreviews(ctx, fromUser, target)
	_ = c.push.SendToUser(target, models.EventNewMessage, msg)

	return ForwardResult{UserID: target, OK: true, MessageID: msg.ID, ChatID: chat.ID}
}

// EditMessage replaces the content and archives the prior revision.
// Recalled or deleted messages reject the edit.
func (c *Coordinator) EditMessage(ctx context.Context, messageID, userID, content string) (*models.Message, error) {
	if messageID == "" || userID == "" {
		return nil, apperr.Validation("message and user are required")
	}
	content, err := c.validateContent(content)
	if err != nil {
		return nil, err
	}

	msg, err := c.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != userID {
		return nil, apperr.Forbidden("only the sender may edit a message")
	}

	now := c.now().UTC()
	modified, err := c.msgs.Edit(ctx, messageID, msg.Content, content, now)
	if err != nil {
		return nil, err
	}
	if !modified {
		return nil, apperr.New(apperr.CodeMessageGone, "message %s is recalled or deleted", messageID)
	}

	msg.EditHistory = append(msg.EditHistory, models.EditRevision{Content: msg.Content, EditedAt: now})
	msg.Content = content
	msg.IsEdited = true

	if chat, err := c.chats.Get(ctx, msg.ChatID); err == nil {
		for _, p := range chat.Participants {
			if p != userID {
				_ = c.push.SendToUser(p, models.EventMessageEdited, msg)
			}
		}
	}
	return msg, nil
}

// DeleteMessage is a sender-only soft delete; content is retained.
func (c *Coordinator) DeleteMessage(ctx context.Context, messageID, userID string) error {
	if messageID == "" || userID == "" {
		return apperr.Validation("message and user are required")
	}
	msg, err := c.msgs.Get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return apperr.Forbidden("only the sender may delete a message")
	}
	return c.msgs.SoftDelete(ctx, messageID)
}

// History returns a chat page oldest to newest.
func (c *Coordinator) History(ctx context.Context, userID, chatID string, page, limit int) ([]models.Message, error) {
	chat, err := c.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, apperr.Forbidden("user %s is not a participant of chat %s", userID, chatID)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return c.msgs.ListPage(ctx, chatID, page, limit)
}

// RelayTyping forwards a typing indicator to the chat's other
// participants. Typing is transient and presence-only: offline
// participants are skipped silently.
func (c *Coordinator) RelayTyping(ctx context.Context, userID, chatID, event string) error {
	if event != models.EventTypingStart && event != models.EventTypingEnd {
		return apperr.Validation("unknown typing event %q", event)
	}
	chat, err := c.chats.Get(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userID) {
		return apperr.Forbidden("user %s is not a participant of chat %s", userID, chatID)
	}
	payload := map[string]string{"chat_id": chatID, "user_id": userID}
	for _, p := range chat.Participants {
		if p != userID {
			_ = c.push.SendToUser(p, event, payload)
		}
	}
	return nil
}

func unreadKey(userID string) string { return "unread:" + userID }
func recentKey(userID string) string { return "recent:" + userID }

func (c *Coordinator) invalidatePreviews(ctx context.Context, users ...string) {
	for _, u := range users {
		c.cache.Delete(ctx, recentKey(u))
		c.cache.Delete(ctx, unreadKey(u))
	}
}

// GetUnreadCount sums the user's unread counters across chats,
// cache-aside with a short TTL since the counter is volatile.
func (c *Coordinator) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if cached, ok := c.cache.Get(ctx, unreadKey(userID)); ok {
		if n, err := strconv.Atoi(cached); err == nil {
			return n, nil
		}
	}

	chats, err := c.chats.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, chat := range chats {
		total += chat.UnreadFor(userID)
	}
	c.cache.Set(ctx, unreadKey(userID), strconv.Itoa(total), c.cacheTTL/10)
	return total, nil
}

// GetRecentChats returns chat previews with last message and unread
// count. A chat with no messages yet gets an empty preview, never an
// error.
func (c *Coordinator) GetRecentChats(ctx context.Context, userID string) ([]models.ChatPreview, error) {
	if cached, ok := c.cache.Get(ctx, recentKey(userID)); ok {
		var previews []models.ChatPreview
		if err := json.Unmarshal([]byte(cached), &previews); err == nil {
			return previews, nil
		}
	}

	chats, err := c.chats.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(chats) > c.recentChatLimit {
		chats = chats[:c.recentChatLimit]
	}

	previews := make([]models.ChatPreview, 0, len(chats))
	for _, chat := range chats {
		preview := models.ChatPreview{Chat: chat, UnreadCount: chat.UnreadFor(userID)}
		if chat.LastMessageID != "" {
			if msg, err := c.msgs.Get(ctx, chat.LastMessageID); err == nil {
				preview.LastMessage = msg
			} else if apperr.CodeOf(err) != apperr.CodeNotFound {
				return nil, err
			}
		}
		previews = append(previews, preview)
	}

	if data, err := json.Marshal(previews); err == nil {
		c.cache.Set(ctx, recentKey(userID), string(data), c.cacheTTL)
	}
	return previews, nil
}
