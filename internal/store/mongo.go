// Package store is the durable tier: MongoDB collections for chats,
// messages, and cache metric snapshots. It is the sole source of truth;
// every cross-path mutation is an atomic single-document update.
package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Mongo struct {
	Client   *mongo.Client
	DB       *mongo.Database
	Chats    *mongo.Collection
	Messages *mongo.Collection
	Metrics  *mongo.Collection
}

func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(database)
	return &Mongo{
		Client:   client,
		DB:       db,
		Chats:    db.Collection("chats"),
		Messages: db.Collection("messages"),
		Metrics:  db.Collection("cache_metrics"),
	}, nil
}

// EnsureIndexes is idempotent and runs at startup. The unique sparse
// index on participants_key is what guarantees a single private chat
// per unordered participant pair.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.Chats.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "participants_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "participants", Value: 1}, {Key: "updated_at", Value: -1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = m.Messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "status", Value: 1}},
		},
	})
	return err
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
