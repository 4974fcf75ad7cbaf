// Package bus wraps segmentio/kafka-go with the delivery pipeline's
// publish/consume semantics: key-partitioned publish with bounded retry,
// and consumer-group loops that isolate failures per record.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/metrics"
)

const publishAttempts = 3

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Producer struct {
	writer    messageWriter
	baseDelay time.Duration
	log       *zap.Logger
}

// NewProducer builds a producer over the given brokers. The hash
// balancer partitions by message key, which is what preserves
// per-recipient ordering.
func NewProducer(brokers []string, baseDelay time.Duration, log *zap.Logger) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, baseDelay, log)
}

func newProducer(w messageWriter, baseDelay time.Duration, log *zap.Logger) *Producer {
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	return &Producer{writer: w, baseDelay: baseDelay, log: log}
}

// Publish marshals payload and writes it keyed by key. Transient write
// failures are retried with doubling backoff; after the attempts are
// exhausted the error surfaces as retryable rather than being dropped.
func (p *Producer) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err, "marshal payload")
	}
	msg := kafka.Message{Topic: topic, Key: []byte(key), Value: data, Time: time.Now()}
	return p.write(ctx, msg)
}

// Envelope is one record of a batch publish.
type Envelope struct {
	Key     string
	Payload any
}

// PublishBatch writes several records to one topic in a single round
// trip, used for fan-out paths like forwarding.
func (p *Producer) PublishBatch(ctx context.Context, topic string, envelopes []Envelope) error {
	if len(envelopes) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(envelopes))
	now := time.Now()
	for _, e := range envelopes {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return apperr.Wrap(apperr.CodeInternal, err, "marshal batch payload")
		}
		msgs = append(msgs, kafka.Message{Topic: topic, Key: []byte(e.Key), Value: data, Time: now})
	}
	return p.write(ctx, msgs...)
}

func (p *Producer) write(ctx context.Context, msgs ...kafka.Message) error {
	var err error
	delay := p.baseDelay
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if err = p.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		p.log.Warn("kafka publish failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt == publishAttempts {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return apperr.Transient(ctx.Err(), "publish cancelled")
		}
		delay *= 2
	}
	metrics.PublishFailures.WithLabelValues(msgs[0].Topic).Inc()
	return apperr.Transient(err, "kafka publish exhausted retries")
}

func (p *Producer) Close() error { return p.writer.Close() }
