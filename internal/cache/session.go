package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/apperr"
	"github.com/fathima-sithara/chat-delivery/internal/models"
)

// SessionStore keeps one entry per (user, sessionID) under a sliding
// TTL. A new session from the same device fingerprint evicts the prior
// one; concurrent sessions across distinct devices are permitted.
type SessionStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewSessionStore(c *Client, ttl time.Duration) *SessionStore {
	return &SessionStore{rdb: c.rdb, prefix: c.prefix, ttl: ttl, log: c.log}
}

func (s *SessionStore) sessionKey(userID, sessionID string) string {
	return s.prefix + ":session:" + userID + ":" + sessionID
}

func (s *SessionStore) deviceKey(userID, fingerprint string) string {
	return s.prefix + ":device:" + userID + ":" + fingerprint
}

// Create registers a new session. If the same device fingerprint
// already holds a session it is deleted first.
func (s *SessionStore) Create(ctx context.Context, userID, deviceInfo, fingerprint string) (*models.Session, error) {
	if prior, err := s.rdb.Get(ctx, s.deviceKey(userID, fingerprint)).Result(); err == nil && prior != "" {
		if err := s.rdb.Del(ctx, s.sessionKey(userID, prior)).Err(); err != nil {
			s.log.Warn("evict superseded session", zap.String("user", userID), zap.Error(err))
		}
	}

	now := time.Now().UTC()
	sess := &models.Session{
		UserID:      userID,
		SessionID:   uuid.NewString(),
		DeviceInfo:  deviceInfo,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		LastActive:  now,
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "marshal session")
	}
	if err := s.rdb.Set(ctx, s.sessionKey(userID, sess.SessionID), data, s.ttl).Err(); err != nil {
		return nil, apperr.Transient(err, "store session")
	}
	if err := s.rdb.Set(ctx, s.deviceKey(userID, fingerprint), sess.SessionID, s.ttl).Err(); err != nil {
		s.log.Warn("store device mapping", zap.String("user", userID), zap.Error(err))
	}
	return sess, nil
}

// Validate checks the session exists and refreshes its sliding TTL.
func (s *SessionStore) Validate(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	key := s.sessionKey(userID, sessionID)
	data, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.New(apperr.CodeUnauthorized, "session expired or unknown")
	}
	if err != nil {
		return nil, apperr.Transient(err, "read session")
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, err, "decode session")
	}

	sess.LastActive = time.Now().UTC()
	if updated, err := json.Marshal(&sess); err == nil {
		if err := s.rdb.Set(ctx, key, updated, s.ttl).Err(); err != nil {
			s.log.Warn("refresh session ttl", zap.String("user", userID), zap.Error(err))
		}
	}
	return &sess, nil
}

// Delete removes the session on explicit logout.
func (s *SessionStore) Delete(ctx context.Context, userID, sessionID string) error {
	if err := s.rdb.Del(ctx, s.sessionKey(userID, sessionID)).Err(); err != nil {
		return apperr.Transient(err, "delete session")
	}
	return nil
}
