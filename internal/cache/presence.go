package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
)

// PresenceStore mirrors live connections into Redis so presence can be
// consulted (and rebuilt) after a gateway restart. Entries are ephemeral
// and carry a TTL; the in-memory hub stays the fast path.
type PresenceStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

type PresenceEntry struct {
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
	ConnectedAt  int64  `json:"connected_at"`
}

func NewPresenceStore(c *Client, ttl time.Duration) *PresenceStore {
	return &PresenceStore{rdb: c.rdb, prefix: c.prefix, ttl: ttl}
}

func (p *PresenceStore) key(userID string) string {
	return p.prefix + ":presence:" + userID
}

func (p *PresenceStore) Set(ctx context.Context, userID, connectionID string) error {
	entry := PresenceEntry{
		UserID:       userID,
		ConnectionID: connectionID,
		ConnectedAt:  time.Now().Unix(),
	}
	data, _ := json.Marshal(entry)
	if err := p.rdb.Set(ctx, p.key(userID), data, p.ttl).Err(); err != nil {
		return apperr.Transient(err, "set presence")
	}
	return nil
}

func (p *PresenceStore) Delete(ctx context.Context, userID string) error {
	if err := p.rdb.Del(ctx, p.key(userID)).Err(); err != nil {
		return apperr.Transient(err, "delete presence")
	}
	return nil
}

// Get returns the entry or nil when the user has no live connection.
func (p *PresenceStore) Get(ctx context.Context, userID string) (*PresenceEntry, error) {
	data, err := p.rdb.Get(ctx, p.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Transient(err, "get presence")
	}
	var entry PresenceEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "decode presence")
	}
	return &entry, nil
}

// ListOnline scans presence keys, used to rebuild the gateway's view
// after a restart.
func (p *PresenceStore) ListOnline(ctx context.Context) ([]string, error) {
	var users []string
	prefix := p.key("")
	iter := p.rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		users = append(users, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, apperr.Transient(err, "scan presence")
	}
	return users, nil
}
