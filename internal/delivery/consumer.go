package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/bus"
	"github.com/fathima-sithara/chat-delivery/internal/metrics"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// Consumers holds the bus handlers. Delivery is at-least-once, so every
// handler is idempotent: the delivered transition is a conditional
// update keyed by message id, and pushes repeat harmlessly.
type Consumers struct {
	msgs MessageStore
	bus  Publisher
	push Pusher
	log  *zap.Logger

	now func() time.Time
}

func NewConsumers(msgs MessageStore, pub Publisher, push Pusher, log *zap.Logger) *Consumers {
	return &Consumers{msgs: msgs, bus: pub, push: push, log: log, now: time.Now}
}

// HandleChatMessage processes a persisted-message event: advances the
// message to delivered, records the status transition on the
// message-delivery topic, and pushes to the recipient.
func (c *Consumers) HandleChatMessage(ctx context.Context, rec bus.Record) error {
	var event models.MessageEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return fmt.Errorf("decode message event: %w", err)
	}

	advanced, err := c.msgs.MarkDelivered(ctx, event.MessageID)
	if err != nil {
		return err
	}
	if advanced {
		metrics.MessagesDelivered.Inc()
		status := models.DeliveryStatusEvent{
			MessageID: event.MessageID,
			ChatID:    event.ChatID,
			Status:    models.StatusDelivered,
			UserID:    event.ReceiverID,
			At:        c.now(),
		}
		if err := c.bus.Publish(ctx, models.TopicMessageDelivery, event.ReceiverID, status); err != nil {
			c.log.Warn("delivery status publish failed",
				zap.String("message", event.MessageID), zap.Error(err))
		}
	}

	// redelivery repeats the push; the gateway tolerates it and offline
	// recipients rely on the store anyway
	return c.push.SendToUser(event.ReceiverID, models.EventNewMessage, event)
}

// HandleUserEvent pushes read receipts and recall broadcasts to the
// keyed user.
func (c *Consumers) HandleUserEvent(_ context.Context, rec bus.Record) error {
	var event models.UserEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return fmt.Errorf("decode user event: %w", err)
	}
	return c.push.SendToUser(event.UserID, event.Kind, event)
}

// HandleNotification pushes fan-out notifications (forwards) to the
// target user.
func (c *Consumers) HandleNotification(_ context.Context, rec bus.Record) error {
	var event models.NotificationEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return fmt.Errorf("decode notification: %w", err)
	}
	return c.push.SendToUser(event.UserID, models.EventNewMessage, event)
}

// HandleDeliveryStatus observes status transitions for reporting; the
// store state was already advanced by the producer of this record.
func (c *Consumers) HandleDeliveryStatus(_ context.Context, rec bus.Record) error {
	var event models.DeliveryStatusEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		return fmt.Errorf("decode delivery status: %w", err)
	}
	c.log.Debug("delivery status",
		zap.String("message", event.MessageID),
		zap.String("status", string(event.Status)))
	return nil
}
