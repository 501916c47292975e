// Package sink implements the Sink Client (component C): Telegram message
// delivery, forum-topic management, and pluggable persistence of the
// guild-to-topic map.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
	"github.com/bogdan-lmk/discord-telegram-bridge/internal/ratelimit"
)

const telegramAPIBase = "https://api.telegram.org/bot"

// Client delivers messages to a single Telegram chat, optionally organized
// into forum topics (one topic per source guild). The create-then-verify
// topic locking generalizes a single-flight guard from "start one scrape
// per guild" to "create one topic per guild", so two in-flight sends can
// never race to create duplicate topics for the same guild.
type Client struct {
	token  string
	chatID string
	useTopics bool

	http    *http.Client
	limiter *ratelimit.Limiter
	store   Store
	log     *slog.Logger

	topicMu sync.Mutex
	topics  map[string]int64 // guild name -> topic message thread ID
}

func NewClient(token, chatID string, useTopics bool, httpClient *http.Client, limiter *ratelimit.Limiter, store Store, log *slog.Logger) *Client {
	return &Client{
		token:     token,
		chatID:    chatID,
		useTopics: useTopics,
		http:      httpClient,
		limiter:   limiter,
		store:     store,
		topics:    make(map[string]int64),
		log:       log,
	}
}

// Load restores the previously persisted topic map so a restart doesn't
// recreate topics for guilds it already has one for.
func (c *Client) Load(ctx context.Context) error {
	blob, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("sink: loading persisted blob: %w", err)
	}
	c.topicMu.Lock()
	c.topics = blob.Topics
	c.topicMu.Unlock()
	return nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if !c.limiter.WaitIfNeededSafe(ctx, "telegram_send", 10*time.Second) {
		return fmt.Errorf("sink: rate limit wait timed out calling %s", method)
	}

	endpoint := telegramAPIBase + c.token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = params.Encode()

	resp, err := c.http.Do(req)
	if err != nil {
		c.limiter.RecordError()
		return fmt.Errorf("sink: calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.limiter.RecordError()
		return fmt.Errorf("sink: decoding %s response: %w", method, err)
	}
	if !decoded.OK {
		c.limiter.RecordError()
		return fmt.Errorf("sink: %s failed (%d): %s", method, decoded.ErrorCode, decoded.Description)
	}
	c.limiter.RecordSuccess()

	if out != nil && len(decoded.Result) > 0 {
		return json.Unmarshal(decoded.Result, out)
	}
	return nil
}

// GetMe validates the bot token against Telegram's getMe endpoint.
func (c *Client) GetMe(ctx context.Context) error {
	return c.call(ctx, "getMe", url.Values{}, nil)
}

type forumTopicResult struct {
	MessageThreadID int64 `json:"message_thread_id"`
}

// forumTopicIconColor is Telegram's default blue forum-topic icon, matching
// the color the original bridge used for every guild topic.
const forumTopicIconColor = 0x6FB9F0

func topicName(guildName string) string {
	return "🏰 " + guildName
}

// TopicFor returns the forum topic ID for guildName, creating one via
// createForumTopic if none is cached yet. A cache hit is verified with
// getForumTopic before being trusted: if the topic was deleted out from
// under the cache, the stale entry is dropped and a new one is created.
// Concurrent calls for the same guild are serialized so two in-flight
// sends never race to create duplicate topics.
func (c *Client) TopicFor(ctx context.Context, guildName string) (int64, error) {
	if !c.useTopics {
		return 0, nil
	}

	c.topicMu.Lock()
	defer c.topicMu.Unlock()

	if id, ok := c.topics[guildName]; ok {
		if c.topicExists(ctx, id) {
			return id, nil
		}
		delete(c.topics, guildName)
	}

	params := url.Values{
		"chat_id":    {c.chatID},
		"name":       {topicName(guildName)},
		"icon_color": {strconv.Itoa(forumTopicIconColor)},
	}
	var result forumTopicResult
	if err := c.call(ctx, "createForumTopic", params, &result); err != nil {
		return 0, fmt.Errorf("sink: creating topic for guild %q: %w", guildName, err)
	}

	c.topics[guildName] = result.MessageThreadID
	if err := c.persistTopics(ctx); err != nil {
		c.log.Warn("sink: failed to persist topic map after create", "guild", guildName, "error", err)
	}
	return result.MessageThreadID, nil
}

// topicExists probes a cached topic ID with getForumTopic, returning false
// if Telegram no longer recognizes it (e.g. deleted manually).
func (c *Client) topicExists(ctx context.Context, threadID int64) bool {
	params := url.Values{
		"chat_id":           {c.chatID},
		"message_thread_id": {strconv.FormatInt(threadID, 10)},
	}
	return c.call(ctx, "getForumTopic", params, nil) == nil
}

func (c *Client) persistTopics(ctx context.Context) error {
	blob, err := c.store.Load(ctx)
	if err != nil {
		blob = models.NewBlob()
	}
	blob.Topics = c.topics
	blob.LastUpdated = time.Now().UTC()
	return c.store.Save(ctx, blob)
}

type sentMessageResult struct {
	MessageID int64 `json:"message_id"`
}

// Send formats and delivers a single message, creating/reusing the guild's
// topic first when topic mode is enabled.
func (c *Client) Send(ctx context.Context, msg models.Message, showServer, showTimestamp bool) (int64, error) {
	threadID, err := c.TopicFor(ctx, msg.GuildName)
	if err != nil {
		return 0, err
	}

	params := url.Values{
		"chat_id":    {c.chatID},
		"text":       {msg.FormatForSink(showServer, showTimestamp)},
		"parse_mode": {"Markdown"},
	}
	if threadID != 0 {
		params.Set("message_thread_id", strconv.FormatInt(threadID, 10))
	}

	var result sentMessageResult
	if err := c.call(ctx, "sendMessage", params, &result); err != nil {
		return 0, fmt.Errorf("sink: sending message: %w", err)
	}
	return result.MessageID, nil
}

// SendBatch sends each message in order, stopping and returning the first
// error. Callers (the orchestrator's batch loop) decide whether to retry
// the remainder or drop it.
func (c *Client) SendBatch(ctx context.Context, msgs []models.Message, showServer, showTimestamp bool) (sent int, err error) {
	for _, m := range msgs {
		if _, sendErr := c.Send(ctx, m, showServer, showTimestamp); sendErr != nil {
			return sent, sendErr
		}
		sent++
	}
	return sent, nil
}

// CleanInvalidTopics drops cached topic IDs Telegram no longer recognizes
// (e.g. the topic was deleted manually), verified with the same
// getForumTopic probe TopicFor uses on a cache hit.
func (c *Client) CleanInvalidTopics(ctx context.Context) (removed []string) {
	c.topicMu.Lock()
	defer c.topicMu.Unlock()

	for guild, id := range c.topics {
		if !c.topicExists(ctx, id) {
			delete(c.topics, guild)
			removed = append(removed, guild)
		}
	}
	if len(removed) > 0 {
		if err := c.persistTopics(ctx); err != nil {
			c.log.Warn("sink: failed to persist topic map after cleanup", "error", err)
		}
	}
	return removed
}
