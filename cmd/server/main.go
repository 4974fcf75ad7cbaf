package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-delivery/internal/api"
	"github.com/fathima-sithara/chat-delivery/internal/bus"
	"github.com/fathima-sithara/chat-delivery/internal/cache"
	"github.com/fathima-sithara/chat-delivery/internal/config"
	"github.com/fathima-sithara/chat-delivery/internal/delivery"
	"github.com/fathima-sithara/chat-delivery/internal/gateway"
	"github.com/fathima-sithara/chat-delivery/internal/graph"
	"github.com/fathima-sithara/chat-delivery/internal/logger"
	"github.com/fathima-sithara/chat-delivery/internal/metrics"
	"github.com/fathima-sithara/chat-delivery/internal/models"
	"github.com/fathima-sithara/chat-delivery/internal/store"
	"github.com/fathima-sithara/chat-delivery/internal/ws"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("APP_CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Server.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	mongo, err := store.NewMongo(bootCtx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		zlog.Fatal("mongo connect", zap.Error(err))
	}
	defer func() { _ = mongo.Disconnect(context.Background()) }()
	if err := mongo.EnsureIndexes(bootCtx); err != nil {
		zlog.Fatal("mongo indexes", zap.Error(err))
	}

	rdb, err := cache.New(bootCtx, cache.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		Prefix:   cfg.Redis.Prefix,
		Timeout:  cfg.CacheTimeout(),
	}, zlog)
	if err != nil {
		zlog.Fatal("redis connect", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	if err := bus.EnsureTopics(bootCtx, cfg.Kafka.Brokers,
		models.TopicChatMessages,
		models.TopicUserNotifications,
		models.TopicUserEvents,
		models.TopicMessageDelivery,
	); err != nil {
		zlog.Fatal("kafka topics", zap.Error(err))
	}

	producer := bus.NewProducer(cfg.Kafka.Brokers, cfg.PublishRetryBase(), zlog)
	defer func() { _ = producer.Close() }()

	chats := store.NewChatStore(mongo)
	msgs := store.NewMessageStore(mongo)
	metricsStore := store.NewMetricsStore(mongo)

	sessions := cache.NewSessionStore(rdb, cfg.SessionTTL())
	presence := cache.NewPresenceStore(rdb, cfg.PresenceTTL())

	graphClient := graph.NewClient(cfg.Graph.BaseURL,
		time.Duration(cfg.Graph.TimeoutSeconds)*time.Second, zlog)

	gw := gateway.New(ws.NewHub(), presence, graphClient, zlog)
	if err := gw.RebuildPresence(bootCtx); err != nil {
		zlog.Warn("presence rebuild", zap.Error(err))
	}
	go gw.KeepPresenceFresh(ctx, cfg.PresenceTTL()/2)

	coord := delivery.New(chats, msgs, producer, rdb, gw, zlog, delivery.Options{
		RecallWindow:    cfg.RecallWindow(),
		MaxContentRunes: cfg.Delivery.MaxContentRunes,
		CacheTTL:        cfg.CacheTTL(),
	})

	handlers := delivery.NewConsumers(msgs, producer, gw, zlog)

	consumers := []struct {
		topic   string
		group   string
		handler bus.Handler
	}{
		{models.TopicChatMessages, "delivery-chat-messages", handlers.HandleChatMessage},
		{models.TopicUserEvents, "delivery-user-events", handlers.HandleUserEvent},
		{models.TopicUserNotifications, "delivery-notifications", handlers.HandleNotification},
		{models.TopicMessageDelivery, "delivery-status", handlers.HandleDeliveryStatus},
	}
	for _, c := range consumers {
		consumer := bus.NewConsumer(cfg.Kafka.Brokers, c.topic, c.group, zlog)
		defer func() { _ = consumer.Close() }()
		go consumer.Run(ctx, c.handler)
	}

	flusher := cache.NewFlusher(rdb, metricsStore, cfg.MetricsFlushInterval(), zlog)
	go flusher.Run(ctx)

	app := api.NewServer(coord, sessions, gw, api.ServerOptions{
		JWTSecret:     cfg.JWT.Secret,
		RatePerMinute: cfg.Server.RateLimitPerMinute,
		ReadTimeout:   cfg.ReadTimeout(),
		WriteTimeout:  cfg.WriteTimeout(),
	}, zlog)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Fatal("server listen", zap.Error(err))
		}
	}()

	metricsSrv := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: metrics.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Error("metrics listen", zap.Error(err))
		}
	}()

	zlog.Info("chat-delivery started",
		zap.String("port", cfg.Server.Port),
		zap.String("metrics_port", cfg.Server.MetricsPort))

	<-ctx.Done()
	zlog.Info("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	_ = app.ShutdownWithContext(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
	zlog.Info("chat-delivery stopped")
}
