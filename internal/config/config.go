package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	MetricsPort         string `mapstructure:"metrics_port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	RateLimitPerMinute  int    `mapstructure:"rate_limit_per_minute"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
}

type JWTCfg struct {
	Secret string `mapstructure:"secret"`
}

type GraphCfg struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type DeliveryCfg struct {
	RecallWindowSeconds   int `mapstructure:"recall_window_seconds"`
	MaxContentRunes       int `mapstructure:"max_content_runes"`
	CacheTTLSeconds       int `mapstructure:"cache_ttl_seconds"`
	SessionTTLHours       int `mapstructure:"session_ttl_hours"`
	PresenceTTLSeconds    int `mapstructure:"presence_ttl_seconds"`
	MetricsFlushSeconds   int `mapstructure:"metrics_flush_seconds"`
	StoreTimeoutSeconds   int `mapstructure:"store_timeout_seconds"`
	CacheTimeoutMillis    int `mapstructure:"cache_timeout_millis"`
	PublishRetryBaseMilli int `mapstructure:"publish_retry_base_millis"`
}

type Config struct {
	Server   ServerCfg   `mapstructure:"server"`
	Mongo    MongoCfg    `mapstructure:"mongo"`
	Redis    RedisCfg    `mapstructure:"redis"`
	Kafka    KafkaCfg    `mapstructure:"kafka"`
	JWT      JWTCfg      `mapstructure:"jwt"`
	Graph    GraphCfg    `mapstructure:"graph"`
	Delivery DeliveryCfg `mapstructure:"delivery"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.metrics_port", "9100")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.rate_limit_per_minute", 300)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "chat_delivery")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.prefix", "chat")
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("graph.timeout_seconds", 2)
	v.SetDefault("delivery.recall_window_seconds", 120)
	v.SetDefault("delivery.max_content_runes", 4096)
	v.SetDefault("delivery.cache_ttl_seconds", 300)
	v.SetDefault("delivery.session_ttl_hours", 24)
	v.SetDefault("delivery.presence_ttl_seconds", 120)
	v.SetDefault("delivery.metrics_flush_seconds", 60)
	v.SetDefault("delivery.store_timeout_seconds", 5)
	v.SetDefault("delivery.cache_timeout_millis", 200)
	v.SetDefault("delivery.publish_retry_base_millis", 100)
}

// Load reads an optional config file and lets APP_* environment
// variables override any key (APP_SERVER_PORT, APP_MONGO_URI, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

func (c *Config) RecallWindow() time.Duration {
	return time.Duration(c.Delivery.RecallWindowSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Delivery.CacheTTLSeconds) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Delivery.SessionTTLHours) * time.Hour
}

// PresenceTTL bounds how long a crashed connection can keep looking
// online; a live gateway refreshes the entry before it lapses.
func (c *Config) PresenceTTL() time.Duration {
	return time.Duration(c.Delivery.PresenceTTLSeconds) * time.Second
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Delivery.StoreTimeoutSeconds) * time.Second
}

func (c *Config) CacheTimeout() time.Duration {
	return time.Duration(c.Delivery.CacheTimeoutMillis) * time.Millisecond
}

func (c *Config) MetricsFlushInterval() time.Duration {
	return time.Duration(c.Delivery.MetricsFlushSeconds) * time.Second
}

func (c *Config) PublishRetryBase() time.Duration {
	return time.Duration(c.Delivery.PublishRetryBaseMilli) * time.Millisecond
}
