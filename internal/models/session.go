package models

import "time"

// Session lives in the cache tier only, keyed per (user, session) with a
// sliding TTL. A new session from the same device fingerprint evicts the
// prior one.
type Session struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	DeviceInfo  string    `json:"device_info"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
}

// CacheMetricsSnapshot is the windowed view flushed to durable storage
// for historical reporting.
type CacheMetricsSnapshot struct {
	Hits         int64     `bson:"hits" json:"hits"`
	Misses       int64     `bson:"misses" json:"misses"`
	HitRate      float64   `bson:"hit_rate" json:"hit_rate"`
	AvgLatencyMs float64   `bson:"avg_latency_ms" json:"avg_latency_ms"`
	KeyCount     int64     `bson:"key_count" json:"key_count"`
	MemoryBytes  int64     `bson:"memory_bytes" json:"memory_bytes"`
	WindowStart  time.Time `bson:"window_start" json:"window_start"`
	TakenAt      time.Time `bson:"taken_at" json:"taken_at"`
}
