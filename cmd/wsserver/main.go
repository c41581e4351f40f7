package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/techtie/match-app/internal/auth"
	"github.com/techtie/match-app/internal/chat"
	"github.com/techtie/match-app/internal/config"
	"github.com/techtie/match-app/internal/deck"
	"github.com/techtie/match-app/internal/logger"
	"github.com/techtie/match-app/internal/messaging"
	"github.com/techtie/match-app/internal/moderation"
	"github.com/techtie/match-app/internal/notification"
	"github.com/techtie/match-app/internal/profile"
	"github.com/techtie/match-app/internal/protocol"
	"github.com/techtie/match-app/internal/ratelimit"
	"github.com/techtie/match-app/internal/session"
	"github.com/techtie/match-app/internal/ws"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.Config{FilePath: cfg.App.LogFilePath, Production: cfg.App.Production()})
	defer log.Sync()

	serverConfig := ws.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		WorkerPoolSize: cfg.Server.WorkerPoolSize,
		MaxConnections: cfg.Server.MaxConnections,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		FrameRate:      cfg.Server.FrameRate,
		FrameBurst:     cfg.Server.FrameBurst,
	}

	// --- NATS ---
	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cfg.NATS.URL
	natsConfig.Name = "techtie-ws-" + cfg.App.ServerName
	natsClient, err := messaging.NewNATSClient(natsConfig, log)
	if err != nil {
		log.Fatal("failed to connect to NATS", zap.Error(err))
	}

	// --- Redis ---
	sessionStore, err := session.NewStore(cfg.Redis.Addr, cfg.App.ServerName)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	limiter := ratelimit.NewLimiter(sessionStore.Client(), log)

	// --- Candidates ---
	var (
		source  profile.Source = profile.FileSource(cfg.Deck.CandidatesFile)
		pgStore *profile.PGStore
	)
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		pgStore, err = profile.OpenPG(ctx, cfg.Database.URL)
		cancel()
		if err != nil {
			log.Fatal("failed to connect to Postgres", zap.Error(err))
		}
		source = pgStore
	}
	cached := profile.NewCachedSource(source, cfg.Deck.CacheTTL)

	// --- Chat ---
	chatService := chat.NewService(
		chat.NewRedisStore(sessionStore.Client(), cfg.Chat.HistorySize),
		moderation.NewFilter(),
		natsClient,
		log,
	)

	hub := deck.NewHub(deck.HubConfig{
		Source:           cached,
		Feed:             notification.NewFeed(),
		Bus:              natsClient,
		Sessions:         sessionStore,
		Chat:             chatService,
		ClearLatency:     cfg.Deck.ClearLatency,
		ChallengeLatency: cfg.Deck.ChallengeLatency,
		Log:              log,
	})

	// --- Auth ---
	var users []auth.User
	if cfg.Auth.UsersFile != "" {
		users, err = auth.LoadUsers(cfg.Auth.UsersFile)
		if err != nil {
			log.Fatal("failed to load users", zap.Error(err))
		}
	}
	authenticator := auth.NewAuthenticator(users, auth.Config{
		Secret:   []byte(cfg.Auth.Secret),
		Latency:  cfg.Auth.Latency,
		TokenTTL: cfg.Auth.TokenTTL,
	})

	log.Info("TechTie WebSocket server starting",
		zap.String("listen_addr", serverConfig.ListenAddr),
		zap.Int("worker_pool", serverConfig.WorkerPoolSize),
		zap.Int("max_connections", serverConfig.MaxConnections),
		zap.String("nats_url", natsConfig.URL),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.Bool("postgres", pgStore != nil),
		zap.String("candidates_file", cfg.Deck.CandidatesFile),
		zap.Int("users", len(users)),
		zap.String("server_name", cfg.App.ServerName))

	dispatcher := ws.NewMessageDispatcher(log)

	// Every deck message is applied by the hub. Rejected decisions, challenges
	// and chat messages are already reported to the client by the deck.
	handle := func(conn *ws.Connection, msg interface{}) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		err := hub.Handle(ctx, conn.ID, msg)
		switch {
		case err == nil:
		case errors.Is(err, deck.ErrClosed):
			ws.SendError(conn, deck.ErrorCode(err), "deck is not open")
		default:
			log.Debug("deck message rejected", zap.String("session", conn.ID), zap.Error(err))
		}
	}
	for _, t := range []string{
		protocol.TypeSetFilter,
		protocol.TypeResetFilter,
		protocol.TypeDecide,
		protocol.TypeNotificationsRead,
		protocol.TypeNotificationsClear,
		protocol.TypeChallengeSubmit,
		protocol.TypeChatMessage,
		protocol.TypeChatHistory,
	} {
		dispatcher.Register(t, handle)
	}

	server := ws.NewServer(serverConfig, sessionStore, dispatcher.Dispatch, log)
	server.SetAuth(authenticator)
	server.SetConnLimiter(limiter)
	server.Handle("/auth/login", authenticator.Handler(limiter, log))

	server.SetOnConnect(func(conn *ws.Connection) error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		viewer := deck.Viewer{ID: conn.UserID, Name: authenticator.UserName(conn.UserID)}
		_, err := hub.Open(ctx, conn.ID, viewer, conn)
		return err
	})
	server.SetOnDisconnect(hub.Close)

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info("received signal, initiating graceful shutdown", zap.Stringer("signal", sig))
		if err := server.Shutdown(); err != nil {
			log.Warn("shutdown error", zap.Error(err))
		}
		hub.Shutdown()
		natsClient.Close()
		if err := sessionStore.Close(); err != nil {
			log.Warn("session store close error", zap.Error(err))
		}
		if pgStore != nil {
			_ = pgStore.Close()
		}
		_ = log.Sync()
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
