// cmd/api runs a standalone, read-only status surface over the persisted
// sink blob — for deployments that split the admin API from cmd/worker's
// live sync engine, sharing only the Redis/Postgres persistence backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/config"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/db"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/logging"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/redis"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting_api", "service", "discord-telegram-bridge-api", "http_addr", cfg.HTTPAddr)

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
		dbConn, err = db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("db_connect_failed", "error", err)
			os.Exit(1)
		}
		defer dbConn.Close()
	}

	var store sink.Store
	switch cfg.PersistenceBackend {
	case "redis":
		store = sink.NewRedisStore(redisClient, "bridge:sink_blob", time.Duration(cfg.MessageTTLSeconds)*time.Second)
	case "postgres":
		pg := sink.NewPostgresStore(dbConn, "bridge")
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("persistence_init_failed", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		store = sink.NewFileStore(cfg.BlobPath)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	router.GET("/api/v1/topics", func(c *gin.Context) {
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		blob, err := store.Load(reqCtx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"topics": blob.Topics, "last_updated": blob.LastUpdated})
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_listen_failed", "error", err)
			os.Exit(1)
		}
	}()

	logger.Info("api_started", "addr", cfg.HTTPAddr)

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting_down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", "error", err)
	} else {
		logger.Info("http_server_stopped")
	}

	logger.Info("api_stopped")
}
