package delivery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

type fixture struct {
	chats *fakeChatStore
	msgs  *fakeMessageStore
	bus   *fakePublisher
	cache *fakeCache
	push  *fakePusher
	coord *Coordinator
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		chats: newFakeChatStore(),
		msgs:  newFakeMessageStore(),
		bus:   &fakePublisher{},
		cache: newFakeCache(),
		push:  newFakePusher(),
	}
	f.coord = New(f.chats, f.msgs, f.bus, f.cache, f.push, zaptest.NewLogger(t), Options{})
	return f
}

func TestGetOrCreateChatConcurrentFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 25
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// half the callers see the pair in the other order
			a, b := "alice", "bob"
			if i%2 == 1 {
				a, b = b, a
			}
			chat, err := f.coord.GetOrCreateChat(ctx, a, b)
			require.NoError(t, err)
			ids[i] = chat.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, f.chats.count())
}

func TestSendMessageFirstContact(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "hello", models.MessageTypeText)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.NotEmpty(t, msg.ChatID)
	assert.Equal(t, models.StatusSent, msg.Status)

	chat, err := f.chats.Get(ctx, msg.ChatID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, chat.LastMessageID)
	assert.Equal(t, 1, chat.UnreadFor("user2"))
	assert.Equal(t, 0, chat.UnreadFor("user1"))

	// delivery event keyed by recipient so partitioning preserves
	// per-recipient ordering
	events := f.bus.byTopic(models.TopicChatMessages)
	require.Len(t, events, 1)
	assert.Equal(t, "user2", events[0].Key)

	// both parties got the UI echo
	assert.NotEmpty(t, f.push.eventsFor("user1"))
	assert.NotEmpty(t, f.push.eventsFor("user2"))
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		sender   string
		receiver string
		content  string
		typ      models.MessageType
	}{
		{"empty content", "u1", "u2", "", models.MessageTypeText},
		{"whitespace content", "u1", "u2", "   ", models.MessageTypeText},
		{"missing receiver", "u1", "", "hi", models.MessageTypeText},
		{"self message", "u1", "u1", "hi", models.MessageTypeText},
		{"unknown type", "u1", "u2", "hi", models.MessageType("voice")},
		{"oversized content", "u1", "u2", strings.Repeat("x", 5000), models.MessageTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.SendMessage(ctx, tt.sender, tt.receiver, tt.content, tt.typ)
			require.Error(t, err)
			assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
		})
	}
	assert.Zero(t, f.chats.count(), "no chat is created for rejected input")
}

func TestSendMessagePublishFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.bus.err = apperr.Transient(errors.New("brokers down"), "publish")

	_, err := f.coord.SendMessage(context.Background(), "u1", "u2", "hi", models.MessageTypeText)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTransient, apperr.CodeOf(err))
}

func TestMarkAsReadIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "hello", models.MessageTypeText)
	require.NoError(t, err)

	require.NoError(t, f.coord.MarkAsRead(ctx, "user2", msg.ChatID))

	chat, _ := f.chats.Get(ctx, msg.ChatID)
	assert.Equal(t, 0, chat.UnreadFor("user2"))

	stored := f.msgs.get(msg.ID)
	require.True(t, stored.ReadByUser("user2"))
	assert.Equal(t, models.StatusRead, stored.Status)
	firstReceipts := len(stored.ReadBy)
	firstEvents := len(f.bus.byTopic(models.TopicUserEvents))

	// second call is a no-op
	require.NoError(t, f.coord.MarkAsRead(ctx, "user2", msg.ChatID))
	stored = f.msgs.get(msg.ID)
	assert.Len(t, stored.ReadBy, firstReceipts)
	assert.Len(t, f.bus.byTopic(models.TopicUserEvents), firstEvents)

	chat, _ = f.chats.Get(ctx, msg.ChatID)
	assert.Equal(t, 0, chat.UnreadFor("user2"))
}

func TestMarkAsReadNotifiesSender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "hello", models.MessageTypeText)
	require.NoError(t, err)
	require.NoError(t, f.coord.MarkAsRead(ctx, "user2", msg.ChatID))

	var sawReceipt bool
	for _, ev := range f.push.eventsFor("user1") {
		if ev.Event == models.EventMessageRead {
			sawReceipt = true
		}
	}
	assert.True(t, sawReceipt)
}

func TestMarkAsReadRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "hello", models.MessageTypeText)
	require.NoError(t, err)

	err = f.coord.MarkAsRead(ctx, "intruder", msg.ChatID)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestRecallWithinWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Now().UTC()
	f.coord.now = func() time.Time { return base }
	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "oops", models.MessageTypeText)
	require.NoError(t, err)

	f.coord.now = func() time.Time { return base.Add(119 * time.Second) }
	recalled, err := f.coord.RecallMessage(ctx, msg.ID, "user1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecalled, recalled.Status)
	assert.Equal(t, models.RecalledTombstone, recalled.Content)
	assert.NotEqual(t, "oops", recalled.Content)

	stored := f.msgs.get(msg.ID)
	assert.Equal(t, models.StatusRecalled, stored.Status)
}

func TestRecallAfterWindowIsTooLate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	base := time.Now().UTC()
	f.coord.now = func() time.Time { return base }
	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "kept", models.MessageTypeText)
	require.NoError(t, err)

	f.coord.now = func() time.Time { return base.Add(121 * time.Second) }
	_, err = f.coord.RecallMessage(ctx, msg.ID, "user1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRecallTooLate, apperr.CodeOf(err))

	stored := f.msgs.get(msg.ID)
	assert.Equal(t, "kept", stored.Content)
	assert.Equal(t, models.StatusSent, stored.Status)
}

func TestRecallOnlyBySender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "mine", models.MessageTypeText)
	require.NoError(t, err)

	_, err = f.coord.RecallMessage(ctx, msg.ID, "user2")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestRecalledIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "gone", models.MessageTypeText)
	require.NoError(t, err)
	_, err = f.coord.RecallMessage(ctx, msg.ID, "user1")
	require.NoError(t, err)

	// no forward transition out of recalled
	advanced, err := f.msgs.MarkDelivered(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, advanced)

	// edits bounce off the tombstone
	_, err = f.coord.EditMessage(ctx, msg.ID, "user1", "rewritten")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeMessageGone, apperr.CodeOf(err))
	assert.Equal(t, models.RecalledTombstone, f.msgs.get(msg.ID).Content)

	// repeated recall is a quiet no-op
	again, err := f.coord.RecallMessage(ctx, msg.ID, "user1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRecalled, again.Status)
}

func TestForwardFanOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "pass it on", models.MessageTypeText)
	require.NoError(t, err)

	results, err := f.coord.ForwardMessage(ctx, msg.ID, "user1", []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		require.True(t, res.OK, "forward to %s", res.UserID)
		copyMsg := f.msgs.get(res.MessageID)
		require.NotNil(t, copyMsg)
		assert.Equal(t, "pass it on", copyMsg.Content)
		assert.Equal(t, msg.ID, copyMsg.ForwardedFrom)
		assert.True(t, copyMsg.ReadByUser("user1"), "forwarder has pre-read the copy")

		chat, err := f.chats.Get(ctx, res.ChatID)
		require.NoError(t, err)
		assert.Equal(t, 1, chat.UnreadFor(res.UserID))
	}

	assert.Len(t, f.bus.byTopic(models.TopicUserNotifications), 2)
}

func TestForwardIsolatesPerRecipientFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "fan out", models.MessageTypeText)
	require.NoError(t, err)

	// chat creation outage for y only
	f.chats.failFor["y"] = errors.New("chat service outage")

	results, err := f.coord.ForwardMessage(ctx, msg.ID, "user1", []string{"x", "y"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].OK)
	assert.Equal(t, "x", results[0].UserID)
	assert.NotEmpty(t, results[0].MessageID)

	assert.False(t, results[1].OK)
	assert.Equal(t, "y", results[1].UserID)
	assert.Contains(t, results[1].Error, "outage")

	// x's copy survived y's failure
	assert.NotNil(t, f.msgs.get(results[0].MessageID))
}

func TestForwardRecalledMessageRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "soon gone", models.MessageTypeText)
	require.NoError(t, err)
	_, err = f.coord.RecallMessage(ctx, msg.ID, "user1")
	require.NoError(t, err)

	_, err = f.coord.ForwardMessage(ctx, msg.ID, "user1", []string{"x"})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeMessageGone, apperr.CodeOf(err))
}

func TestEditMessageKeepsHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "first", models.MessageTypeText)
	require.NoError(t, err)

	edited, err := f.coord.EditMessage(ctx, msg.ID, "user1", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", edited.Content)
	assert.True(t, edited.IsEdited)
	require.Len(t, edited.EditHistory, 1)
	assert.Equal(t, "first", edited.EditHistory[0].Content)

	_, err = f.coord.EditMessage(ctx, msg.ID, "user2", "hijack")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))
}

func TestHistoryRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.coord.SendMessage(ctx, "user1", "user2", "private", models.MessageTypeText)
	require.NoError(t, err)

	_, err = f.coord.History(ctx, "stranger", msg.ChatID, 1, 50)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeForbidden, apperr.CodeOf(err))

	msgs, err := f.coord.History(ctx, "user2", msg.ChatID, 1, 50)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestRecentChatsToleratesEmptyChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	chat, err := f.coord.GetOrCreateChat(ctx, "user1", "user2")
	require.NoError(t, err)

	previews, err := f.coord.GetRecentChats(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, previews, 1)
	assert.Equal(t, chat.ID, previews[0].Chat.ID)
	assert.Nil(t, previews[0].LastMessage)
	assert.Zero(t, previews[0].UnreadCount)
}

func TestRecentChatsCacheAside(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.SendMessage(ctx, "user1", "user2", "hello", models.MessageTypeText)
	require.NoError(t, err)

	first, err := f.coord.GetRecentChats(ctx, "user1")
	require.NoError(t, err)
	listsAfterMiss := f.chats.lists

	second, err := f.coord.GetRecentChats(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, listsAfterMiss, f.chats.lists, "second read served from cache")
	assert.Equal(t, len(first), len(second))
	require.NotNil(t, second[0].LastMessage)
	assert.Equal(t, "hello", second[0].LastMessage.Content)
	assert.Equal(t, 1, second[0].UnreadCount)
}

func TestUnreadCountAggregatesAcrossChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.SendMessage(ctx, "a", "me", "one", models.MessageTypeText)
	require.NoError(t, err)
	_, err = f.coord.SendMessage(ctx, "b", "me", "two", models.MessageTypeText)
	require.NoError(t, err)
	_, err = f.coord.SendMessage(ctx, "b", "me", "three", models.MessageTypeText)
	require.NoError(t, err)

	total, err := f.coord.GetUnreadCount(ctx, "me")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
}
