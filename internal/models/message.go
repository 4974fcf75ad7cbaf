package models

import "time"

type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeSystem:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusRecalled  MessageStatus = "recalled"
)

// CanTransition reports whether the status state machine permits moving
// to next. Forward chain is sent -> delivered -> read; any non-recalled
// state may move to recalled; recalled is terminal.
func (s MessageStatus) CanTransition(next MessageStatus) bool {
	if s == StatusRecalled {
		return false
	}
	if next == StatusRecalled {
		return true
	}
	switch s {
	case StatusSent:
		return next == StatusDelivered || next == StatusRead
	case StatusDelivered:
		return next == StatusRead
	}
	return false
}

type ReadReceipt struct {
	UserID string    `bson:"user_id" json:"user_id"`
	ReadAt time.Time `bson:"read_at" json:"read_at"`
}

type EditRevision struct {
	Content  string    `bson:"content" json:"content"`
	EditedAt time.Time `bson:"edited_at" json:"edited_at"`
}

// Attachment is a tagged variant: Kind discriminates how URL and
// Metadata are interpreted.
type Attachment struct {
	Kind     string            `bson:"kind" json:"kind"`
	URL      string            `bson:"url" json:"url"`
	Metadata map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
}

const RecalledTombstone = "[message recalled]"

type Message struct {
	ID            string         `bson:"_id" json:"id"`
	ChatID        string         `bson:"chat_id" json:"chat_id"`
	SenderID      string         `bson:"sender_id" json:"sender_id"`
	ReceiverID    string         `bson:"receiver_id,omitempty" json:"receiver_id,omitempty"`
	Content       string         `bson:"content" json:"content"`
	Type          MessageType    `bson:"type" json:"type"`
	Status        MessageStatus  `bson:"status" json:"status"`
	ReadBy        []ReadReceipt  `bson:"read_by,omitempty" json:"read_by,omitempty"`
	IsDeleted     bool           `bson:"is_deleted" json:"is_deleted"`
	IsEdited      bool           `bson:"is_edited" json:"is_edited"`
	EditHistory   []EditRevision `bson:"edit_history,omitempty" json:"edit_history,omitempty"`
	ReplyTo       string         `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	ForwardedFrom string         `bson:"forwarded_from,omitempty" json:"forwarded_from,omitempty"`
	Attachments   []Attachment   `bson:"attachments,omitempty" json:"attachments,omitempty"`
	CreatedAt     time.Time      `bson:"created_at" json:"created_at"`
}

// ReadBy lookup; receipts are appended once per user.
func (m *Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
