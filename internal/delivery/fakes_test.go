package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/bus"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// In-memory doubles mirroring the store's atomic-update semantics.

type fakeChatStore struct {
	mu      sync.Mutex
	chats   map[string]*models.Chat
	byKey   map[string]string
	failFor map[string]error
	lists   int
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{
		chats:   make(map[string]*models.Chat),
		byKey:   make(map[string]string),
		failFor: make(map[string]error),
	}
}

func (s *fakeChatStore) GetOrCreatePrivate(_ context.Context, userA, userB string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range []string{userA, userB} {
		if err := s.failFor[u]; err != nil {
			return nil, err
		}
	}
	key := models.PrivateChatKey(userA, userB)
	if id, ok := s.byKey[key]; ok {
		return copyChat(s.chats[id]), nil
	}
	now := time.Now().UTC()
	chat := &models.Chat{
		ID:              uuid.NewString(),
		Participants:    []string{userA, userB},
		ParticipantsKey: key,
		Type:            models.ChatTypePrivate,
		Unread:          map[string]int{},
		Status:          models.ChatStatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.chats[chat.ID] = chat
	s.byKey[key] = chat.ID
	return copyChat(chat), nil
}

func (s *fakeChatStore) Get(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	chat, ok := s.chats[chatID]
	if !ok {
		return nil, apperr.NotFound("chat %s not found", chatID)
	}
	return copyChat(chat), nil
}

func (s *fakeChatStore) SetLastMessage(_ context.Context, chatID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.LastMessageID = messageID
		chat.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *fakeChatStore) IncUnread(_ context.Context, chatID, userID string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Unread[userID] += delta
	}
	return nil
}

func (s *fakeChatStore) ResetUnread(_ context.Context, chatID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.Unread[userID] = 0
	}
	return nil
}

func (s *fakeChatStore) ListByUser(_ context.Context, userID string) ([]models.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []models.Chat
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			out = append(out, *copyChat(chat))
		}
	}
	return out, nil
}

func (s *fakeChatStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

func copyChat(c *models.Chat) *models.Chat {
	dup := *c
	dup.Unread = make(map[string]int, len(c.Unread))
	for k, v := range c.Unread {
		dup.Unread[k] = v
	}
	dup.Participants = append([]string(nil), c.Participants...)
	return &dup
}

type fakeMessageStore struct {
	mu        sync.Mutex
	msgs      map[string]*models.Message
	insertErr error
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{msgs: make(map[string]*models.Message)}
}

func (s *fakeMessageStore) Insert(_ context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	dup := *msg
	s.msgs[msg.ID] = &dup
	return nil
}

func (s *fakeMessageStore) Get(_ context.Context, messageID string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok {
		return nil, apperr.NotFound("message %s not found", messageID)
	}
	dup := *msg
	return &dup, nil
}

func (s *fakeMessageStore) ListPage(_ context.Context, chatID string, page, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, msg := range s.msgs {
		if msg.ChatID == chatID && !msg.IsDeleted {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) MarkDelivered(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok || msg.Status != models.StatusSent {
		return false, nil
	}
	msg.Status = models.StatusDelivered
	return true, nil
}

func (s *fakeMessageStore) ListUnreadFor(_ context.Context, chatID, userID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, msg := range s.msgs {
		if msg.ChatID == chatID && msg.ReceiverID == userID &&
			!msg.IsDeleted && msg.Status != models.StatusRecalled && !msg.ReadByUser(userID) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) AddReadReceipts(_ context.Context, messageIDs []string, userID string, readAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range messageIDs {
		msg, ok := s.msgs[id]
		if !ok || msg.Status == models.StatusRecalled || msg.ReadByUser(userID) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: readAt})
		msg.Status = models.StatusRead
	}
	return nil
}

func (s *fakeMessageStore) Recall(_ context.Context, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok || msg.Status == models.StatusRecalled {
		return false, nil
	}
	msg.Content = models.RecalledTombstone
	msg.Status = models.StatusRecalled
	return true, nil
}

func (s *fakeMessageStore) Edit(_ context.Context, messageID, prior, content string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.msgs[messageID]
	if !ok || msg.Status == models.StatusRecalled || msg.IsDeleted {
		return false, nil
	}
	msg.EditHistory = append(msg.EditHistory, models.EditRevision{Content: prior, EditedAt: at})
	msg.Content = content
	msg.IsEdited = true
	return true, nil
}

func (s *fakeMessageStore) SoftDelete(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.msgs[messageID]; ok {
		msg.IsDeleted = true
	}
	return nil
}

func (s *fakeMessageStore) get(id string) *models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.msgs[id]; ok {
		dup := *msg
		return &dup
	}
	return nil
}

type published struct {
	Topic   string
	Key     string
	Payload any
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{Topic: topic, Key: key, Payload: payload})
	return nil
}

func (p *fakePublisher) PublishBatch(_ context.Context, topic string, envelopes []bus.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	for _, e := range envelopes {
		p.events = append(p.events, published{Topic: topic, Key: e.Key, Payload: e.Payload})
	}
	return nil
}

func (p *fakePublisher) byTopic(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}

type pushedEvent struct {
	Event string
	Data  any
}

type fakePusher struct {
	mu     sync.Mutex
	pushes map[string][]pushedEvent
}

func newFakePusher() *fakePusher {
	return &fakePusher{pushes: make(map[string][]pushedEvent)}
}

func (p *fakePusher) SendToUser(userID, event string, data any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes[userID] = append(p.pushes[userID], pushedEvent{Event: event, Data: data})
	return nil
}

func (p *fakePusher) eventsFor(userID string) []pushedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushedEvent(nil), p.pushes[userID]...)
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]string)}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *fakeCache) Set(_ context.Context, key, value string, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

func (c *fakeCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
