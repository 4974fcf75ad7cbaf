package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// SnapshotSink persists metric snapshots; the Mongo metrics store
// implements it.
type SnapshotSink interface {
	InsertSnapshot(ctx context.Context, snap models.CacheMetricsSnapshot) error
}

// Flusher periodically persists the cache metrics window and starts a
// fresh one.
type Flusher struct {
	client   *Client
	sink     SnapshotSink
	interval time.Duration
	log      *zap.Logger
}

func NewFlusher(client *Client, sink SnapshotSink, interval time.Duration, log *zap.Logger) *Flusher {
	return &Flusher{client: client, sink: sink, interval: interval, log: log}
}

func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := f.client.Snapshot(ctx)
			if err := f.sink.InsertSnapshot(ctx, snap); err != nil {
				f.log.Warn("metrics snapshot flush failed", zap.Error(err))
				continue
			}
			f.client.Metrics().Reset()
		}
	}
}
