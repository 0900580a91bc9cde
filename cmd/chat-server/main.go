package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"storefront-chat/internal/api"
	"storefront-chat/internal/api/router"
	"storefront-chat/internal/config"
	"storefront-chat/internal/database"
	"storefront-chat/internal/logger"
	"storefront-chat/internal/queue"
	"storefront-chat/internal/service/chat"
	"storefront-chat/internal/websocket"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const idempotencyPrefix = "chat:idem:"

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	appLog := logger.Setup(cfg.Logging, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	policy, err := chat.NewAvailabilityPolicy(cfg.Chat)
	if err != nil {
		appLog.Fatal().Err(err).Msg("invalid chat availability settings")
	}

	hub := websocket.NewHub(appLog)
	go hub.Run(ctx)

	var (
		repo      chat.Repository
		keys      chat.KeyStore
		publisher *websocket.Publisher
	)
	if cfg.Storage.InMemory() {
		appLog.Warn().Msg("using in-memory storage; data is lost on restart")
		repo = chat.NewMemoryRepository()
		keys = chat.NewMemoryKeyStore()
		publisher = websocket.NewLocalPublisher(hub, appLog)
	} else {
		db, err := database.NewDatabase(ctx, cfg.AWS)
		if err != nil {
			appLog.Fatal().Err(err).Msg("db init failed")
		}
		if cfg.AWS.CreateTables {
			if err := db.EnsureTables(ctx, logger.Component("database")); err != nil {
				appLog.Fatal().Err(err).Msg("table provisioning failed")
			}
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			appLog.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}

		repo = chat.NewDynamoRepository(db)
		keys = chat.NewRedisKeyStore(rdb, idempotencyPrefix)
		publisher = websocket.NewRedisPublisher(rdb, appLog)
		go websocket.Subscribe(ctx, rdb, hub, logger.Component("subscriber"))
	}

	svc := chat.NewWithRepository(repo, chat.Options{
		Keys:           keys,
		Notifier:       publisher,
		Availability:   policy,
		TokenSecret:    cfg.Auth.UserSecret,
		IdempotencyTTL: cfg.Chat.IdempotencyTTL,
		MessageLimit:   cfg.Chat.MessageLimit,
		Logger:         appLog,
	})

	queueManager := queue.NewRequestQueueManager(cfg.Server.QueueSize, cfg.Server.QueueWorkers, appLog)
	defer queueManager.Shutdown()

	live := websocket.NewHandler(hub, svc, publisher, cfg.Server.AllowedOrigins, appLog)

	server := api.NewAPIServer(api.ServerOptions{
		ListenAddr:     cfg.Server.ListenAddr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Queue:          queueManager,
		Chat:           svc,
		Live:           live,
		Registry:       prometheus.NewRegistry(),
		Logger:         appLog,
	},
		router.UtilsRoutes(cfg.Server.APIPrefix),
		router.ChatRoutes(cfg.Server.APIPrefix),
	)

	appLog.Info().
		Str("storage", storageName(cfg.Storage)).
		Str("prefix", cfg.Server.APIPrefix).
		Msg("starting chat server")

	if err := server.Run(ctx); err != nil {
		appLog.Fatal().Err(err).Msg("server stopped with error")
	}
}

func storageName(s config.StorageConfig) string {
	if s.InMemory() {
		return config.StorageMemory
	}
	return config.StorageDynamoDB
}
