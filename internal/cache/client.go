// Package cache is the bounded-staleness tier over Redis: cache-aside
// reads, sessions with sliding TTLs, ephemeral presence records, and an
// instrumented metrics window. It is never authoritative; every failure
// degrades to a store read.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/models"
)

type Client struct {
	rdb     *redis.Client
	prefix  string
	timeout time.Duration
	metrics *Metrics
	log     *zap.Logger
}

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Timeout  time.Duration
}

func New(ctx context.Context, opts Options, log *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 200 * time.Millisecond
	}
	return &Client{
		rdb:     rdb,
		prefix:  opts.Prefix,
		timeout: opts.Timeout,
		metrics: NewMetrics(),
		log:     log,
	}, nil
}

func (c *Client) key(k string) string { return c.prefix + ":" + k }

// Get returns the cached value and whether it was present. Errors and
// timeouts are reported as a miss, never as a failure: the caller falls
// through to the store.
func (c *Client) Get(ctx context.Context, key string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	val, err := c.rdb.Get(ctx, c.key(key)).Result()
	elapsed := time.Since(start)

	if err != nil {
		c.metrics.RecordMiss(elapsed)
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get degraded to miss", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	c.metrics.RecordHit(elapsed)
	return val, true
}

// Set populates a key with TTL; best-effort, the store already holds
// the truth.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Set(ctx, c.key(key), value, ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *Client) Delete(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rdb.Del(ctx, c.key(key)).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Metrics exposes the in-memory window for flushing and reset.
func (c *Client) Metrics() *Metrics { return c.metrics }

// Snapshot combines the window counters with live server stats.
func (c *Client) Snapshot(ctx context.Context) models.CacheMetricsSnapshot {
	snap := c.metrics.Snapshot()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if n, err := c.rdb.DBSize(ctx).Result(); err == nil {
		snap.KeyCount = n
	}
	if info, err := c.rdb.Info(ctx, "memory").Result(); err == nil {
		snap.MemoryBytes = parseUsedMemory(info)
	}
	return snap
}

func (c *Client) Close() error { return c.rdb.Close() }
