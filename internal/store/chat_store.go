package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

type ChatStore struct {
	col *mongo.Collection
}

func NewChatStore(m *Mongo) *ChatStore {
	return &ChatStore{col: m.Chats}
}

// GetOrCreatePrivate resolves the unique private chat for an unordered
// pair. The upsert races against the unique participants_key index, so
// concurrent first-contact calls all land on the same document.
func (s *ChatStore) GetOrCreatePrivate(ctx context.Context, userA, userB string) (*models.Chat, error) {
	key := models.PrivateChatKey(userA, userB)
	now := time.Now().UTC()

	participants := []string{userA, userB}
	if participants[0] > participants[1] {
		participants[0], participants[1] = participants[1], participants[0]
	}

	filter := bson.M{"participants_key": key, "deleted": false}
	update := bson.M{
		"$setOnInsert": bson.M{
			"_id":          uuid.NewString(),
			"participants": participants,
			"type":         models.ChatTypePrivate,
			"unread":       bson.M{},
			"status":       models.ChatStatusActive,
			"created_at":   now,
			"updated_at":   now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var chat models.Chat
	err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&chat)
	if err == nil {
		return &chat, nil
	}
	// A concurrent upsert can lose the race on the unique index; the
	// winner's document is there to read.
	if mongo.IsDuplicateKeyError(err) {
		err = s.col.FindOne(ctx, filter).Decode(&chat)
		if err == nil {
			return &chat, nil
		}
	}
	return nil, apperr.Transient(err, "get or create chat")
}

func (s *ChatStore) Get(ctx context.Context, chatID string) (*models.Chat, error) {
	var chat models.Chat
	err := s.col.FindOne(ctx, bson.M{"_id": chatID, "deleted": false}).Decode(&chat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("chat %s not found", chatID)
	}
	if err != nil {
		return nil, apperr.Transient(err, "get chat")
	}
	return &chat, nil
}

// SetLastMessage and IncUnread are separate single-document updates on
// purpose: unread mutation is always an atomic $inc owned by one caller
// role, never a read-modify-write.
func (s *ChatStore) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$set": bson.M{"last_message_id": messageID, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return apperr.Transient(err, "set last message")
	}
	return nil
}

func (s *ChatStore) IncUnread(ctx context.Context, chatID, userID string, delta int) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$inc": bson.M{"unread." + userID: delta}},
	)
	if err != nil {
		return apperr.Transient(err, "increment unread")
	}
	return nil
}

func (s *ChatStore) ResetUnread(ctx context.Context, chatID, userID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": chatID},
		bson.M{"$set": bson.M{"unread." + userID: 0}},
	)
	if err != nil {
		return apperr.Transient(err, "reset unread")
	}
	return nil
}

// ListByUser returns the user's chats, most recently active first.
func (s *ChatStore) ListByUser(ctx context.Context, userID string) ([]models.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.col.Find(ctx, bson.M{"participants": userID, "deleted": false}, opts)
	if err != nil {
		return nil, apperr.Transient(err, "list chats")
	}
	var chats []models.Chat
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, apperr.Transient(err, "decode chats")
	}
	return chats, nil
}
