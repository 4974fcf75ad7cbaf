package delivery

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/chat-delivery/internal/bus"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

func record(t *testing.T, key string, payload any) bus.Record {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bus.Record{Topic: models.TopicChatMessages, Key: key, Value: data}
}

func TestHandleChatMessageAdvancesToDelivered(t *testing.T) {
	msgs := newFakeMessageStore()
	pub := &fakePublisher{}
	push := newFakePusher()
	c := NewConsumers(msgs, pub, push, zaptest.NewLogger(t))
	createdAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	deliveredAt := createdAt.Add(3 * time.Second)
	c.now = func() time.Time { return deliveredAt }

	msg := &models.Message{ID: "m1", ChatID: "c1", SenderID: "u1", ReceiverID: "u2", Status: models.StatusSent}
	require.NoError(t, msgs.Insert(context.Background(), msg))

	event := models.MessageEvent{MessageID: "m1", ChatID: "c1", SenderID: "u1", ReceiverID: "u2", CreatedAt: createdAt}
	require.NoError(t, c.HandleChatMessage(context.Background(), record(t, "u2", event)))

	assert.Equal(t, models.StatusDelivered, msgs.get("m1").Status)
	assert.NotEmpty(t, push.eventsFor("u2"))

	statuses := pub.byTopic(models.TopicMessageDelivery)
	require.Len(t, statuses, 1)
	status, ok := statuses[0].Payload.(models.DeliveryStatusEvent)
	require.True(t, ok)
	// the status record reports when the transition happened, not when
	// the message was created
	assert.Equal(t, deliveredAt, status.At)
}

func TestHandleChatMessageRedeliveryIsIdempotent(t *testing.T) {
	msgs := newFakeMessageStore()
	pub := &fakePublisher{}
	push := newFakePusher()
	c := NewConsumers(msgs, pub, push, zaptest.NewLogger(t))

	msg := &models.Message{ID: "m1", ChatID: "c1", ReceiverID: "u2", Status: models.StatusSent}
	require.NoError(t, msgs.Insert(context.Background(), msg))

	event := models.MessageEvent{MessageID: "m1", ChatID: "c1", ReceiverID: "u2"}
	rec := record(t, "u2", event)

	require.NoError(t, c.HandleChatMessage(context.Background(), rec))
	require.NoError(t, c.HandleChatMessage(context.Background(), rec))

	// the status event is emitted once, on the transition only
	assert.Len(t, pub.byTopic(models.TopicMessageDelivery), 1)
	assert.Equal(t, models.StatusDelivered, msgs.get("m1").Status)
}

func TestHandleChatMessageMalformedRecord(t *testing.T) {
	c := NewConsumers(newFakeMessageStore(), &fakePublisher{}, newFakePusher(), zaptest.NewLogger(t))

	err := c.HandleChatMessage(context.Background(), bus.Record{Value: []byte("not json")})
	assert.Error(t, err)
}

func TestHandleUserEventPushesToKeyedUser(t *testing.T) {
	push := newFakePusher()
	c := NewConsumers(newFakeMessageStore(), &fakePublisher{}, push, zaptest.NewLogger(t))

	event := models.UserEvent{UserID: "u1", Kind: models.EventMessageRead, MessageID: "m1"}
	data, _ := json.Marshal(event)
	require.NoError(t, c.HandleUserEvent(context.Background(), bus.Record{Key: "u1", Value: data}))

	events := push.eventsFor("u1")
	require.Len(t, events, 1)
	assert.Equal(t, models.EventMessageRead, events[0].Event)
}
