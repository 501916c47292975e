// Package orchestrator is the composition root (component D): it wires the
// source client, sink client, and the ingress/batch/reconcile loops that
// move messages from Discord to Telegram and keep guild/channel state in
// sync.
package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
	rediswrap "github.com/bogdan-lmk/discord-telegram-bridge/internal/redis"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/sink"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/source"
)

// Config holds the orchestrator's tunables, populated from
// internal/config.Config.
type Config struct {
	MaxChannelsPerGuild int
	MaxTotalChannels    int
	MaxServers          int

	MessageBatchSize       int
	MaxHistoryMessages     int
	CleanupInterval        time.Duration
	HealthCheckInterval    time.Duration
	PeriodicSyncInterval   time.Duration
	StatsRefreshInterval   time.Duration

	ShowServerInMessage bool
	ShowTimestamps      bool
}

// Orchestrator runs six background loops: ingress drain, batch drain,
// periodic sync, cleanup, stats refresh, and health check — each a
// ticker+select loop, generalized from one queue into several
// purpose-specific ones.
type Orchestrator struct {
	cfg            Config
	source         *source.Pool
	disc           *source.Discoverer
	sink           *sink.Client
	sourceLimiter  *ratelimit.Limiter
	sinkLimiter    *ratelimit.Limiter
	redis          *rediswrap.Client // optional; nil disables the DLQ
	log            *slog.Logger

	ingress *ingressQueue
	batch   *batchQueue

	mu             sync.RWMutex
	guilds         map[string]*models.GuildRecord
	stats          models.SystemStats
	lastCounterDay int // YearDay() of the last daily-counter roll check

	startedAt time.Time
}

func New(cfg Config, pool *source.Pool, disc *source.Discoverer, sinkClient *sink.Client, sourceLimiter, sinkLimiter *ratelimit.Limiter, redisClient *rediswrap.Client, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		source:        pool,
		disc:          disc,
		sink:          sinkClient,
		sourceLimiter: sourceLimiter,
		sinkLimiter:   sinkLimiter,
		redis:         redisClient,
		log:           log,
		ingress:       newIngressQueue(1024),
		batch:         newBatchQueue(cfg.MessageBatchSize),
		guilds:        make(map[string]*models.GuildRecord),
	}
}

// Run starts every background loop and the gateway manager, blocking until
// ctx is canceled or one of them returns a fatal error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now()
	o.lastCounterDay = o.startedAt.YearDay()
	o.loadDailyCounter(ctx)

	if err := o.reconcileOnce(ctx); err != nil {
		o.log.Warn("orchestrator: initial discovery pass failed", "error", err)
	} else {
		o.runInitialBackfill(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)

	manager := source.NewManager(o.source, o.onMessage, o.log)
	g.Go(func() error { return manager.Run(gctx) })

	g.Go(func() error { return o.runIngressLoop(gctx) })
	g.Go(func() error { return o.runBatchLoop(gctx) })
	g.Go(func() error { return o.runPeriodicSync(gctx) })
	g.Go(func() error { return o.runCleanup(gctx) })
	g.Go(func() error { return o.runStatsRefresh(gctx) })
	g.Go(func() error { return o.runHealthCheck(gctx) })

	return g.Wait()
}

// onMessage is the gateway dispatch callback: it resolves the guild/channel
// names for the raw IDs the gateway gave us and enqueues the message for
// delivery. Dropping on a full ingress queue is deliberate back-pressure,
// not a bug.
func (o *Orchestrator) onMessage(ctx context.Context, sess *source.Session, msg models.Message) {
	o.mu.Lock()
	guild, channel := o.resolveNames(msg.ChannelID, msg.GuildID)
	o.markChannelStreamAccessible(msg.GuildID, msg.ChannelID)
	o.mu.Unlock()

	if guild == "" {
		return
	}
	msg.GuildName = guild
	msg.ChannelName = channel

	if !o.ingress.tryPush(msg) {
		o.log.Warn("orchestrator: ingress queue full, dropping message", "channel_id", msg.ChannelID)
		now := time.Now().UTC()
		o.mu.Lock()
		o.stats.ErrorsLastHour++
		o.stats.LastError = "queue full"
		o.stats.LastErrorTime = &now
		o.mu.Unlock()
	}
}

func (o *Orchestrator) resolveNames(channelID, guildID string) (guildName, channelName string) {
	rec, ok := o.guilds[guildID]
	if !ok {
		return "", ""
	}
	guildName = rec.GuildName
	if ch, ok := rec.Channels[channelID]; ok {
		channelName = ch.ChannelName
	}
	return guildName, channelName
}

// markChannelStreamAccessible flips a channel's StreamAccessible flag the
// first time a MESSAGE_CREATE arrives for it over the gateway, independent
// of whatever HTTPAccessible was probed to at discovery time. Caller holds
// o.mu for writing.
func (o *Orchestrator) markChannelStreamAccessible(guildID, channelID string) {
	rec, ok := o.guilds[guildID]
	if !ok {
		return
	}
	ch, ok := rec.Channels[channelID]
	if !ok || ch.StreamAccessible {
		return
	}
	ch.StreamAccessible = true
	rec.UpdateStats(time.Now().UTC())
}

// Snapshot returns a copy of the current guild map and stats for the admin
// status surface.
func (o *Orchestrator) Snapshot() (map[string]*models.GuildRecord, models.SystemStats) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]*models.GuildRecord, len(o.guilds))
	for k, v := range o.guilds {
		out[k] = v
	}
	stats := o.stats
	stats.UptimeSeconds = int64(time.Since(o.startedAt).Seconds())
	return out, stats
}

// TriggerSync runs one reconciliation pass immediately, used by the admin
// /api/v1/admin/sync endpoint for an on-demand refresh.
func (o *Orchestrator) TriggerSync(ctx context.Context) error {
	return o.reconcileOnce(ctx)
}
