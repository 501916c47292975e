package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/models"
)

const (
	channelTypeGuildText        = 0
	channelTypeGuildAnnouncement = 5
)

type discordGuild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type discordChannel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Type     int    `json:"type"`
	ParentID string `json:"parent_id"`
}

// Discoverer lists guilds and their announcement-shaped channels for a
// pooled set of bot sessions.
type Discoverer struct {
	pool *Pool
	http *http.Client
	log  *slog.Logger
}

func NewDiscoverer(pool *Pool, httpClient *http.Client, log *slog.Logger) *Discoverer {
	return &Discoverer{pool: pool, http: httpClient, log: log}
}

// Guilds lists every guild visible to the given session's bot user.
func (d *Discoverer) Guilds(ctx context.Context, sess *Session) ([]discordGuild, error) {
	var guilds []discordGuild
	if err := d.getJSON(ctx, sess, "/users/@me/guilds", &guilds); err != nil {
		return nil, fmt.Errorf("source: listing guilds: %w", err)
	}
	return guilds, nil
}

// AnnouncementChannels returns the channels in guildID whose name matches
// the announcement heuristic, each wrapped as a *models.ChannelRecord with
// HTTPAccessible probed via a single-message GET; StreamAccessible starts
// false until the gateway dispatches a real message for the channel.
//
// Matching rule (ported verbatim from _find_announcement_channels): a
// channel qualifies if its lowercased name contains "announce" or "news" as
// a substring, OR ends with "announcement" or "announcements".
func (d *Discoverer) AnnouncementChannels(ctx context.Context, sess *Session, guildID string) ([]*models.ChannelRecord, error) {
	var channels []discordChannel
	if err := d.getJSON(ctx, sess, fmt.Sprintf("/guilds/%s/channels", guildID), &channels); err != nil {
		return nil, fmt.Errorf("source: listing channels for guild %s: %w", guildID, err)
	}

	var out []*models.ChannelRecord
	for _, ch := range channels {
		if ch.Type != channelTypeGuildText && ch.Type != channelTypeGuildAnnouncement {
			continue
		}
		if !isAnnouncementChannel(ch.Name) {
			continue
		}

		rec := &models.ChannelRecord{
			ChannelID:   ch.ID,
			ChannelName: ch.Name,
			CategoryID:  ch.ParentID,
		}
		now := time.Now().UTC()
		rec.LastChecked = &now
		rec.HTTPAccessible = d.testChannelAccess(ctx, sess, ch.ID)
		out = append(out, rec)
	}
	return out, nil
}

func isAnnouncementChannel(name string) bool {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "announce") || strings.Contains(lower, "news") {
		return true
	}
	return strings.HasSuffix(lower, "announcement") || strings.HasSuffix(lower, "announcements")
}

// testChannelAccess probes HTTP readability with a single GET of the most
// recent message. StreamAccessible is not determined here: it starts false
// and is flipped the first time a MESSAGE_CREATE for the channel arrives
// over the gateway (see orchestrator.markChannelStreamAccessible).
func (d *Discoverer) testChannelAccess(ctx context.Context, sess *Session, channelID string) bool {
	var msgs []json.RawMessage
	err := d.getJSON(ctx, sess, fmt.Sprintf("/channels/%s/messages?limit=1", channelID), &msgs)
	return err == nil
}

func (d *Discoverer) getJSON(ctx context.Context, sess *Session, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+sess.Token)

	resp, err := d.http.Do(req)
	if err != nil {
		sess.markError()
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		sess.markError()
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}
	sess.markSuccess()
	return json.NewDecoder(resp.Body).Decode(out)
}
