package bus

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Record is what a handler receives for one bus message.
type Record struct {
	Topic     string
	Key       string
	Value     []byte
	Partition int
	Offset    int64
}

// Handler processes one record. Handlers must be idempotent: delivery is
// at-least-once and a record may be seen again after a crash between
// handling and commit.
type Handler func(ctx context.Context, rec Record) error

type recordFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader recordFetcher
	log    *zap.Logger
}

// NewConsumer subscribes groupID to topic. Each concern gets its own
// group so a slow consumer never blocks another topic's processing.
func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: r, log: log}
}

// Run processes records sequentially until ctx is cancelled. Handler
// failures (and panics) are logged per record and never halt the loop;
// the offset is committed only after the handler has completed.
func (c *Consumer) Run(ctx context.Context, handler Handler) {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.log.Info("consumer stopping")
				return
			}
			c.log.Error("kafka fetch", zap.Error(err))
			continue
		}

		c.handle(ctx, handler, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("kafka commit", zap.Error(err))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler Handler, msg kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("consumer handler panic",
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset),
				zap.Any("panic", r))
		}
	}()

	rec := Record{
		Topic:     msg.Topic,
		Key:       string(msg.Key),
		Value:     msg.Value,
		Partition: msg.Partition,
		Offset:    msg.Offset,
	}
	if err := handler(ctx, rec); err != nil {
		c.log.Error("consumer handler failed",
			zap.String("topic", msg.Topic),
			zap.String("key", rec.Key),
			zap.Int64("offset", msg.Offset),
			zap.Error(err))
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
