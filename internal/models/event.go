package models

import "time"

// Bus topics. Each topic is consumed by its own group so a slow consumer
// for one concern never blocks another.
const (
	TopicChatMessages      = "chat-messages"
	TopicUserNotifications = "user-notifications"
	TopicUserEvents        = "user-events"
	TopicMessageDelivery   = "message-delivery"
)

// Push event names carried over the gateway.
const (
	EventNewMessage         = "new_message"
	EventMessageRead        = "message_read"
	EventMessageRecalled    = "message_recalled"
	EventMessageEdited      = "message_edited"
	EventTypingStart        = "typing_start"
	EventTypingEnd          = "typing_end"
	EventFriendStatusChange = "friend_status_change"
)

// MessageEvent is published to chat-messages after a message is
// persisted, keyed by the recipient so bus partitioning preserves
// per-recipient ordering.
type MessageEvent struct {
	MessageID  string    `json:"message_id"`
	ChatID     string    `json:"chat_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// DeliveryStatusEvent records a status transition on message-delivery.
type DeliveryStatusEvent struct {
	MessageID string        `json:"message_id"`
	ChatID    string        `json:"chat_id"`
	Status    MessageStatus `json:"status"`
	UserID    string        `json:"user_id,omitempty"`
	At        time.Time     `json:"at"`
}

// NotificationEvent is published to user-notifications for fan-out
// concerns (forwards, mentions).
type NotificationEvent struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	MessageID string    `json:"message_id,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	FromUser  string    `json:"from_user,omitempty"`
	At        time.Time `json:"at"`
}

// UserEvent covers read receipts and recalls on user-events.
type UserEvent struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	ChatID    string    `json:"chat_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	At        time.Time `json:"at"`
}
