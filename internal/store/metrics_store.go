package store

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// MetricsStore persists cache metric snapshots for historical reporting.
type MetricsStore struct {
	col *mongo.Collection
}

func NewMetricsStore(m *Mongo) *MetricsStore {
	return &MetricsStore{col: m.Metrics}
}

func (s *MetricsStore) InsertSnapshot(ctx context.Context, snap models.CacheMetricsSnapshot) error {
	_, err := s.col.InsertOne(ctx, snap)
	if err != nil {
		return apperr.Transient(err, "insert metrics snapshot")
	}
	return nil
}
