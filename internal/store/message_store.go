package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

type MessageStore struct {
	col *mongo.Collection
}

func NewMessageStore(m *Mongo) *MessageStore {
	return &MessageStore{col: m.Messages}
}

func (s *MessageStore) Insert(ctx context.Context, msg *models.Message) error {
	_, err := s.col.InsertOne(ctx, msg)
	if err != nil {
		return apperr.Transient(err, "insert message")
	}
	return nil
}

func (s *MessageStore) Get(ctx context.Context, messageID string) (*models.Message, error) {
	var msg models.Message
	err := s.col.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound("message %s not found", messageID)
	}
	if err != nil {
		return nil, apperr.Transient(err, "get message")
	}
	return &msg, nil
}

// ListPage returns a page of a chat's messages oldest to newest,
// excluding soft-deleted ones.
func (s *MessageStore) ListPage(ctx context.Context, chatID string, page, limit int) ([]models.Message, error) {
	if page < 1 {
		page = 1
	}
	opts := options.Find().
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.col.Find(ctx, bson.M{"chat_id": chatID, "is_deleted": false}, opts)
	if err != nil {
		return nil, apperr.Transient(err, "list messages")
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, apperr.Transient(err, "decode messages")
	}
	return msgs, nil
}

// MarkDelivered advances sent -> delivered. The filter makes the update
// conditional, so redelivered bus records and late consumers are no-ops
// (never moves a message backwards out of read or recalled).
func (s *MessageStore) MarkDelivered(ctx context.Context, messageID string) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": messageID, "status": models.StatusSent},
		bson.M{"$set": bson.M{"status": models.StatusDelivered}},
	)
	if err != nil {
		return false, apperr.Transient(err, "mark delivered")
	}
	return res.ModifiedCount > 0, nil
}

// ListUnreadFor returns the chat's messages addressed to userID that do
// not yet carry the user's read receipt.
func (s *MessageStore) ListUnreadFor(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	filter := bson.M{
		"chat_id":          chatID,
		"receiver_id":      userID,
		"is_deleted":       false,
		"status":           bson.M{"$ne": models.StatusRecalled},
		"read_by.user_id":  bson.M{"$ne": userID},
	}
	cursor, err := s.col.Find(ctx, filter)
	if err != nil {
		return nil, apperr.Transient(err, "list unread")
	}
	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, apperr.Transient(err, "decode unread")
	}
	return msgs, nil
}

// AddReadReceipts appends {user, readAt} to the named messages and
// advances their status to read. $addToSet on the receipt plus the
// receipt-absent filter makes repeated calls no-ops.
func (s *MessageStore) AddReadReceipts(ctx context.Context, messageIDs []string, userID string, readAt time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}
	filter := bson.M{
		"_id":             bson.M{"$in": messageIDs},
		"status":          bson.M{"$ne": models.StatusRecalled},
		"read_by.user_id": bson.M{"$ne": userID},
	}
	update := bson.M{
		"$push": bson.M{"read_by": models.ReadReceipt{UserID: userID, ReadAt: readAt}},
		"$set":  bson.M{"status": models.StatusRead},
	}
	_, err := s.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return apperr.Transient(err, "add read receipts")
	}
	return nil
}

// Recall tombstones the message. The status filter keeps recalled
// terminal even under concurrent recalls.
func (s *MessageStore) Recall(ctx context.Context, messageID string) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": messageID, "status": bson.M{"$ne": models.StatusRecalled}},
		bson.M{"$set": bson.M{"content": models.RecalledTombstone, "status": models.StatusRecalled}},
	)
	if err != nil {
		return false, apperr.Transient(err, "recall message")
	}
	return res.ModifiedCount > 0, nil
}

// Edit replaces content and records the prior revision. Recalled and
// deleted messages are filtered out, the caller treats a zero modified
// count as a business-rule rejection.
func (s *MessageStore) Edit(ctx context.Context, messageID, prior, content string, at time.Time) (bool, error) {
	res, err := s.col.UpdateOne(ctx,
		bson.M{
			"_id":        messageID,
			"status":     bson.M{"$ne": models.StatusRecalled},
			"is_deleted": false,
		},
		bson.M{
			"$set":  bson.M{"content": content, "is_edited": true},
			"$push": bson.M{"edit_history": models.EditRevision{Content: prior, EditedAt: at}},
		},
	)
	if err != nil {
		return false, apperr.Transient(err, "edit message")
	}
	return res.ModifiedCount > 0, nil
}

func (s *MessageStore) SoftDelete(ctx context.Context, messageID string) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": messageID},
		bson.M{"$set": bson.M{"is_deleted": true}},
	)
	if err != nil {
		return apperr.Transient(err, "delete message")
	}
	return nil
}
