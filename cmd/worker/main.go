// cmd/worker runs the bridge's sync engine (source, sink, orchestrator)
// headless, with no admin HTTP surface — for deployments that run the
// admin API (cmd/api) as a separate process against shared Redis/Postgres
// state.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/config"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/db"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/logging"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/orchestrator"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/redis"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/sink"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/source"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_worker", "service", "discord-telegram-bridge-worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisDSN != "" {
		redisClient, err = redis.New(cfg.RedisDSN)
		if err != nil {
			logger.Error("redis_connect_failed", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	var dbConn *db.DB
	if cfg.DBDSN != "" {
		for i := 0; i < 5; i++ {
			dbConn, err = db.New(ctx, cfg.DBDSN)
			if err == nil {
				break
			}
			logger.Warn("db_connect_retry", "attempt", i+1, "error", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			logger.Error("db_connect_failed", "error", err)
			os.Exit(1)
		}
		defer dbConn.Close()
	}

	store, err := buildStore(ctx, cfg, dbConn, redisClient)
	if err != nil {
		logger.Error("persistence_init_failed", "error", err)
		os.Exit(1)
	}

	discordLimiter := ratelimit.New("discord_api", cfg.DiscordRateLimitPerSecond, cfg.DiscordRateLimitPerSecond*60, logger)
	telegramLimiter := ratelimit.New("telegram_send", cfg.TelegramRateLimitPerMinute/60, cfg.TelegramRateLimitPerMinute, logger)

	httpClient := source.NewHTTPClient()

	pool, err := source.NewPool(ctx, cfg.DiscordAuthTokens, httpClient, discordLimiter, logger)
	if err != nil {
		logger.Error("source_pool_init_failed", "error", err)
		os.Exit(1)
	}
	disc := source.NewDiscoverer(pool, httpClient, logger)

	if len(cfg.EncryptionKey) == 32 {
		if fingerprints, err := pool.EncryptedFingerprints(cfg.EncryptionKey); err != nil {
			logger.Warn("session_audit_encryption_failed", "error", err)
		} else {
			logger.Info("session_audit_fingerprints_ready", "count", len(fingerprints))
		}
	}

	sinkClient := sink.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramUseTopics, httpClient, telegramLimiter, store, logger)
	if err := sinkClient.GetMe(ctx); err != nil {
		logger.Error("sink_validation_failed", "error", err)
		os.Exit(1)
	}
	if err := sinkClient.Load(ctx); err != nil {
		logger.Warn("sink_blob_load_failed", "error", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		MaxChannelsPerGuild:  cfg.MaxChannelsPerGuild,
		MaxTotalChannels:     cfg.MaxTotalChannels,
		MaxServers:           cfg.MaxServers,
		MessageBatchSize:     cfg.MessageBatchSize,
		MaxHistoryMessages:   cfg.MaxHistoryMessages,
		CleanupInterval:      cfg.CleanupInterval,
		HealthCheckInterval:  cfg.HealthCheckInterval,
		PeriodicSyncInterval: cfg.PeriodicSyncInterval,
		StatsRefreshInterval: cfg.StatsRefreshInterval,
		ShowServerInMessage:  cfg.ShowServerInMessage,
		ShowTimestamps:       cfg.ShowTimestamps,
	}, pool, disc, sinkClient, discordLimiter, telegramLimiter, redisClient, logger)

	orchErrCh := make(chan error, 1)
	go func() {
		orchErrCh <- orch.Run(ctx)
	}()

	logger.Info("worker_started", "tokens", pool.Len())

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutdown_signal_received")
	case err := <-orchErrCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("orchestrator_stopped_unexpectedly", "error", err)
		}
	}

	cancel()
	logger.Info("worker_stopped")
}

func buildStore(ctx context.Context, cfg config.Config, dbConn *db.DB, redisClient *redis.Client) (sink.Store, error) {
	switch cfg.PersistenceBackend {
	case "redis":
		ttl := time.Duration(cfg.MessageTTLSeconds) * time.Second
		return sink.NewRedisStore(redisClient, "bridge:sink_blob", ttl), nil
	case "postgres":
		store := sink.NewPostgresStore(dbConn, "bridge")
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return sink.NewFileStore(cfg.BlobPath), nil
	}
}
