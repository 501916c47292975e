// Package api exposes a small Gin-based admin/status surface over the
// orchestrator's in-memory state.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/config"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/orchestrator"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/redis"
)

// Server wraps the orchestrator with a thin read/trigger HTTP surface:
// health, aggregate status, and a manual sync trigger.
type Server struct {
	log    *slog.Logger
	redis  *redis.Client
	orch   *orchestrator.Orchestrator
	cfg    config.Config
	router *gin.Engine
}

func NewServer(log *slog.Logger, redisClient *redis.Client, orch *orchestrator.Orchestrator, cfg config.Config) *Server {
	s := &Server{
		log:    log,
		redis:  redisClient,
		orch:   orch,
		cfg:    cfg,
		router: gin.New(),
	}

	gin.SetMode(gin.ReleaseMode)
	r := s.router
	r.Use(gin.Recovery())
	r.Use(s.corsMiddleware())
	r.Use(s.loggingMiddleware())
	r.Use(s.inputValidationMiddleware())
	r.Use(s.rateLimitMiddleware())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	v1 := r.Group("/api/v1")
	{
		v1.GET("/status", s.status)

		admin := v1.Group("/admin")
		admin.Use(s.adminAuthMiddleware())
		{
			admin.POST("/sync", s.triggerSync)
		}
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ctx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

// status returns the current guild/channel map and system stats.
func (s *Server) status(c *gin.Context) {
	guilds, stats := s.orch.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"guilds": guilds,
		"stats":  stats,
		"health": stats.HealthScore(),
		"banner": stats.StatusBanner(),
	})
}

// triggerSync runs one reconciliation pass on demand, used by operators to
// pick up a newly invited guild without waiting for the periodic sync tick.
func (s *Server) triggerSync(c *gin.Context) {
	ctx, cancel := s.ctx(c)
	defer cancel()

	if err := s.orch.TriggerSync(ctx); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
