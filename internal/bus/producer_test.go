package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/metrics"
)

type fakeWriter struct {
	failures int
	calls    int
	written  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.calls++
	if w.calls <= w.failures {
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestPublishRetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducer(w, time.Millisecond, zaptest.NewLogger(t))

	err := p.Publish(context.Background(), "chat-messages", "user2", map[string]string{"hello": "world"})
	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	require.Len(t, w.written, 1)
	assert.Equal(t, "user2", string(w.written[0].Key))
	assert.Equal(t, "chat-messages", w.written[0].Topic)
}

func TestPublishSurfacesRetryableErrorAfterExhaustion(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newProducer(w, time.Millisecond, zaptest.NewLogger(t))
	counter := metrics.PublishFailures.WithLabelValues("chat-messages")
	before := testutil.ToFloat64(counter)

	err := p.Publish(context.Background(), "chat-messages", "user2", "payload")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTransient, apperr.CodeOf(err))
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestPublishBatchKeysEveryRecord(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, time.Millisecond, zaptest.NewLogger(t))

	err := p.PublishBatch(context.Background(), "user-notifications", []Envelope{
		{Key: "x", Payload: 1},
		{Key: "y", Payload: 2},
	})
	require.NoError(t, err)
	require.Len(t, w.written, 2)
	assert.Equal(t, "x", string(w.written[0].Key))
	assert.Equal(t, "y", string(w.written[1].Key))
}

func TestPublishEmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, time.Millisecond, zaptest.NewLogger(t))

	require.NoError(t, p.PublishBatch(context.Background(), "user-notifications", nil))
	assert.Zero(t, w.calls)
}
