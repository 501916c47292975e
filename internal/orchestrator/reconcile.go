package orchestrator

import (
	"context"
	"runtime"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

const dlqKey = "dlq:messages"
const dlqTTL = 24 * time.Hour
const dailyCounterKey = "stats:messages_today"
const dailyCounterTTL = 48 * time.Hour

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// enqueueDLQ persists messages the sink failed to deliver to a
// time-bounded Redis list so an operator can replay them later. A nil
// redis client (no REDIS_DSN configured) silently disables the DLQ rather
// than failing the batch loop.
func (o *Orchestrator) enqueueDLQ(ctx context.Context, msgs []models.Message) {
	if o.redis == nil || len(msgs) == 0 {
		return
	}
	// go-redis's list push isn't exposed on the thin wrapper; use RDB()
	// directly for the one list-typed operation this package needs.
	rdb := o.redis.RDB()
	for _, m := range msgs {
		data, err := jsonAPI.Marshal(m)
		if err != nil {
			continue
		}
		if err := rdb.RPush(ctx, dlqKey, data).Err(); err != nil {
			o.log.Warn("orchestrator: failed to push to dlq", "error", err)
			continue
		}
		rdb.Expire(ctx, dlqKey, dlqTTL)
	}
}

// loadDailyCounter restores today's processed-message count from Redis so a
// restart mid-day doesn't reset the stat to zero. A nil redis client or a
// missing key leaves MessagesProcessedToday at its zero value.
func (o *Orchestrator) loadDailyCounter(ctx context.Context) {
	if o.redis == nil {
		return
	}
	n, err := o.redis.GetInt(ctx, dailyCounterKey)
	if err != nil {
		return
	}
	o.mu.Lock()
	o.stats.MessagesProcessedToday = int(n)
	o.mu.Unlock()
}

// bumpDailyCounter persists n additional processed messages to the Redis
// counter backing MessagesProcessedToday. Called after each flushed batch
// and each successful single send; the in-memory stat is the authority,
// this just mirrors it durably.
func (o *Orchestrator) bumpDailyCounter(ctx context.Context, n int) {
	if o.redis == nil || n <= 0 {
		return
	}
	for i := 0; i < n; i++ {
		if _, err := o.redis.Increment(ctx, dailyCounterKey, dailyCounterTTL); err != nil {
			o.log.Warn("orchestrator: failed to persist daily counter", "error", err)
			return
		}
	}
}

// rollDailyCounterIfNewDay resets MessagesProcessedToday (and its Redis
// mirror) the first time the cleanup loop observes a new calendar day, per
// reconciliation's "rolls daily counters" behavior.
func (o *Orchestrator) rollDailyCounterIfNewDay(ctx context.Context, now time.Time) {
	day := now.YearDay()

	o.mu.Lock()
	rolled := o.lastCounterDay != 0 && o.lastCounterDay != day
	o.lastCounterDay = day
	if rolled {
		o.stats.MessagesProcessedToday = 0
	}
	o.mu.Unlock()

	if rolled && o.redis != nil {
		if err := o.redis.Del(ctx, dailyCounterKey); err != nil {
			o.log.Warn("orchestrator: failed to reset persisted daily counter", "error", err)
		}
	}
}

const periodicSyncErrorBackoff = 5 * time.Minute

// runPeriodicSync re-runs guild/channel discovery on an interval (30 min by
// default) so newly created channels (and revoked permissions on old ones)
// are picked up without a restart. After a failed pass the next attempt
// comes after periodicSyncErrorBackoff instead of the full interval.
func (o *Orchestrator) runPeriodicSync(ctx context.Context) error {
	interval := o.cfg.PeriodicSyncInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.reconcileOnce(ctx); err != nil {
				o.log.Warn("orchestrator: periodic sync failed", "error", err)
				ticker.Reset(periodicSyncErrorBackoff)
			} else {
				ticker.Reset(interval)
			}
		}
	}
}

// reconcileOnce lists guilds visible to any pooled session, discovers their
// announcement channels (capped by MaxChannelsPerGuild/MaxTotalChannels/
// MaxServers invariants), and replaces the in-memory guild
// map.
func (o *Orchestrator) reconcileOnce(ctx context.Context) error {
	sess, err := o.source.Next()
	if err != nil {
		return err
	}

	guilds, err := o.disc.Guilds(ctx, sess)
	if err != nil {
		return err
	}

	newGuilds := make(map[string]*models.GuildRecord, len(guilds))
	totalChannels := 0
	now := time.Now().UTC()

	for i, g := range guilds {
		if o.cfg.MaxServers > 0 && i >= o.cfg.MaxServers {
			o.log.Info("orchestrator: max_servers reached, skipping remaining guilds", "limit", o.cfg.MaxServers)
			break
		}
		if o.cfg.MaxTotalChannels > 0 && totalChannels >= o.cfg.MaxTotalChannels {
			break
		}

		rec := models.NewGuildRecord(g.Name, g.ID, o.cfg.MaxChannelsPerGuild)

		channels, err := o.disc.AnnouncementChannels(ctx, sess, g.ID)
		if err != nil {
			o.log.Warn("orchestrator: discovering channels failed", "guild", g.Name, "error", err)
			rec.Status = models.GuildError
			rec.ErrorMessage = err.Error()
			newGuilds[g.ID] = rec
			continue
		}

		for _, ch := range channels {
			if o.cfg.MaxTotalChannels > 0 && totalChannels >= o.cfg.MaxTotalChannels {
				break
			}
			if addErr := rec.AddChannel(ch); addErr != nil {
				continue
			}
			totalChannels++
		}
		rec.UpdateStats(now)
		newGuilds[g.ID] = rec
	}

	o.mu.Lock()
	o.guilds = newGuilds
	o.stats.TotalServers = len(newGuilds)
	o.stats.TotalChannels = totalChannels
	active := 0
	for _, g := range newGuilds {
		if g.Status == models.GuildActive {
			active++
		}
	}
	o.stats.ActiveServers = active
	o.mu.Unlock()

	return nil
}

const bucketMaxAge = time.Hour

// runInitialBackfill pulls a bounded window of recent history per
// accessible channel for every ACTIVE guild so a freshly discovered guild
// isn't empty in the sink, then hands each guild's sorted message list to
// the batch path rather than the realtime ingress queue. Per-channel
// failures are logged but don't abort the rest of the backfill.
func (o *Orchestrator) runInitialBackfill(ctx context.Context) {
	sess, err := o.source.Next()
	if err != nil {
		o.log.Warn("orchestrator: initial backfill skipped, no session", "error", err)
		return
	}

	o.mu.RLock()
	guilds := make([]*models.GuildRecord, 0, len(o.guilds))
	for _, g := range o.guilds {
		guilds = append(guilds, g)
	}
	o.mu.RUnlock()

	maxHistory := o.cfg.MaxHistoryMessages
	if maxHistory <= 0 {
		maxHistory = 50
	}

	for _, g := range guilds {
		if g.Status != models.GuildActive {
			continue
		}
		accessible := g.AccessibleChannels()
		if len(accessible) == 0 {
			continue
		}

		perChannel := maxHistory / len(accessible)
		if perChannel > 10 {
			perChannel = 10
		}
		if perChannel <= 0 {
			perChannel = 1
		}

		var guildMsgs []models.Message
		for _, ch := range accessible {
			msgs, err := o.disc.RecentMessages(ctx, sess, g.GuildName, ch, perChannel)
			if err != nil {
				o.log.Warn("orchestrator: initial backfill failed for channel", "guild", g.GuildName, "channel", ch.ChannelName, "error", err)
				continue
			}
			guildMsgs = append(guildMsgs, msgs...)
		}
		if len(guildMsgs) == 0 {
			continue
		}

		sort.Slice(guildMsgs, func(i, j int) bool { return guildMsgs[i].Timestamp.Before(guildMsgs[j].Timestamp) })
		o.pushBatch(ctx, guildMsgs)
	}
}

// runCleanup periodically drops stale cached sink topics, evicts rate
// limiter buckets older than an hour on both limiters, rolls the daily
// counter on a new calendar day, and forces a GC hint.
func (o *Orchestrator) runCleanup(ctx context.Context) error {
	interval := o.cfg.CleanupInterval
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runtime.GC()

			if o.sourceLimiter != nil {
				o.sourceLimiter.ClearOldBuckets(bucketMaxAge)
			}
			if o.sinkLimiter != nil {
				o.sinkLimiter.ClearOldBuckets(bucketMaxAge)
			}

			o.rollDailyCounterIfNewDay(ctx, time.Now())

			removed := o.sink.CleanInvalidTopics(ctx)
			if len(removed) > 0 {
				o.log.Info("orchestrator: cleaned invalid sink topics", "count", len(removed))
			}
		}
	}
}

// runStatsRefresh recomputes derived counters (memory usage, active
// channels) that aren't updated incrementally elsewhere.
func (o *Orchestrator) runStatsRefresh(ctx context.Context) error {
	interval := o.cfg.StatsRefreshInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)

			o.mu.Lock()
			o.stats.MemoryUsageMB = float64(mem.Alloc) / (1024 * 1024)
			activeChannels := 0
			for _, g := range o.guilds {
				activeChannels += g.ActiveChannels
			}
			o.stats.ActiveChannels = activeChannels
			o.mu.Unlock()
		}
	}
}

// runHealthCheck logs the current health score on an interval so a
// degrading system is visible in logs even without the admin surface being
// polled.
func (o *Orchestrator) runHealthCheck(ctx context.Context) error {
	interval := o.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_, stats := o.Snapshot()
			score := stats.HealthScore()
			if score < 70 {
				o.log.Warn("orchestrator: health degraded", "score", score, "banner", stats.StatusBanner())
			} else {
				o.log.Debug("orchestrator: health check", "score", score, "banner", stats.StatusBanner())
			}
		}
	}
}
