package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/achievement"
	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/config"
	"github.com/techtie/match-app/internal/decision"
	"github.com/techtie/match-app/internal/logger"
	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/ratelimit"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.Config{FilePath: cfg.App.LogFilePath, Production: cfg.App.Production()})
	defer log.Sync()

	log.Info("Starting TechTie matching service")

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	cancel()

	// NATS setup.
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = "techtie-matcher"

	natsClient, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}

	progress := achievement.NewProgress(rdb)
	tracker := achievement.NewTracker(progress, cfg.Matcher.AchievementLatency, log)

	// Start matching service.
	svc := decision.NewService(
		decision.NewStore(rdb),
		natsClient,
		progress,
		tracker,
		ratelimit.NewLimiter(rdb, log),
		log,
	)
	// Mutual matches open the pair's conversation. Messages are screened by
	// the WS servers, so the matcher needs neither filter nor publisher.
	svc.SetConversations(chat.NewService(chat.NewRedisStore(rdb, cfg.Chat.HistorySize), nil, nil, log))

	if err := svc.Start(); err != nil {
		log.Fatal("failed to start matching service", zap.Error(err))
	}

	log.Info("TechTie matching service running",
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("nats_url", natsConfig.URL),
		zap.Duration("achievement_latency", cfg.Matcher.AchievementLatency))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("received signal, shutting down", zap.Stringer("signal", sig))

	svc.Stop()
	natsClient.Close()
	_ = rdb.Close()
}
