package models

import (
	"sort"
	"strings"
	"time"
)

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
)

type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
	ChatStatusBlocked  ChatStatus = "blocked"
)

type Chat struct {
	ID              string         `bson:"_id" json:"id"`
	Participants    []string       `bson:"participants" json:"participants"`
	ParticipantsKey string         `bson:"participants_key,omitempty" json:"-"`
	Type            ChatType       `bson:"type" json:"type"`
	Unread          map[string]int `bson:"unread,omitempty" json:"unread,omitempty"`
	LastMessageID   string         `bson:"last_message_id,omitempty" json:"last_message_id,omitempty"`
	Status          ChatStatus     `bson:"status" json:"status"`
	CreatedAt       time.Time      `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at" json:"updated_at"`
	Deleted         bool           `bson:"deleted" json:"-"`
}

// PrivateChatKey canonicalizes an unordered user pair. The unique index
// on participants_key is what makes concurrent first-contact creation
// collapse to a single chat.
func PrivateChatKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return strings.Join(pair, ":")
}

func (c *Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Chat) UnreadFor(userID string) int {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[userID]
}

// ChatPreview is the recent-chats read view: chat plus last message and
// the caller's unread count. LastMessage is nil for a chat with no
// messages yet.
type ChatPreview struct {
	Chat        Chat     `json:"chat"`
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
