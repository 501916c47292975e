package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

type discordMessage struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Author      struct {
		Username string `json:"username"`
	} `json:"author"`
	Attachments []struct {
		URL string `json:"url"`
	} `json:"attachments"`
	Embeds []json.RawMessage `json:"embeds"`
}

// RecentMessages fetches up to limit most-recent messages from channelID,
// oldest first, converting each into a validated models.Message. The fetch
// first waits on the source limiter under the key "messages_<channel_id>",
// and channel.LastMessageTime is set from the newest fetched entry. Invalid
// entries (e.g. empty-after-cleaning content) are skipped rather than
// aborting the whole fetch, matching the tolerant best-effort behavior
// expected when backfilling channel history.
func (d *Discoverer) RecentMessages(ctx context.Context, sess *Session, guildName string, channel *models.ChannelRecord, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	if err := d.pool.limiter.WaitIfNeeded(ctx, "messages_"+channel.ChannelID, 60*time.Second); err != nil {
		return nil, fmt.Errorf("source: rate limit wait for channel %s: %w", channel.ChannelID, err)
	}

	var raw []discordMessage
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", channel.ChannelID, limit)
	if err := d.getJSON(ctx, sess, path, &raw); err != nil {
		return nil, fmt.Errorf("source: fetching recent messages for channel %s: %w", channel.ChannelID, err)
	}
	if len(raw) > 0 {
		if newest, err := time.Parse(time.RFC3339, raw[0].Timestamp); err == nil {
			channel.LastMessageTime = &newest
		}
	}

	out := make([]models.Message, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		m := raw[i]
		ts, err := time.Parse(time.RFC3339, m.Timestamp)
		if err != nil {
			continue
		}

		var attachments []string
		for _, a := range m.Attachments {
			attachments = append(attachments, a.URL)
		}
		var embeds []string
		for _, e := range m.Embeds {
			embeds = append(embeds, string(e))
		}

		msg, err := models.NewMessage(m.Content, ts, guildName, channel.ChannelName, m.Author.Username,
			models.WithIDs(m.ID, channel.ChannelID, ""))
		if err != nil {
			continue
		}
		msg.Attachments = attachments
		msg.Embeds = embeds
		out = append(out, msg)
	}
	return out, nil
}

// stripMentionNoise is a small helper shared with the gateway dispatcher to
// avoid forwarding bot-command noise such as a bare "!ping"; command
// handling is out of scope for this bridge, so such content is dropped
// rather than routed.
func stripMentionNoise(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "!") || strings.HasPrefix(trimmed, "/") {
		return trimmed, false
	}
	return trimmed, true
}
