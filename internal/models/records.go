package models

import (
	"fmt"
	"time"
)

// GuildStatus is the lifecycle state of a GuildRecord.
type GuildStatus string

const (
	GuildPending  GuildStatus = "PENDING"
	GuildActive   GuildStatus = "ACTIVE"
	GuildInactive GuildStatus = "INACTIVE"
	GuildError    GuildStatus = "ERROR"
)

// ChannelRecord tracks one discovered channel's access state and counters.
type ChannelRecord struct {
	ChannelID        string     `json:"channel_id"`
	ChannelName      string     `json:"channel_name"`
	CategoryID       string     `json:"category_id,omitempty"`
	HTTPAccessible   bool       `json:"http_accessible"`
	StreamAccessible bool       `json:"stream_accessible"`
	LastChecked      *time.Time `json:"last_checked,omitempty"`
	MessageCount     int        `json:"message_count"`
	LastMessageTime  *time.Time `json:"last_message_time,omitempty"`
	ErrorCount       int        `json:"error_count"`
}

// Accessible is true iff either access flag is set.
func (c ChannelRecord) Accessible() bool {
	return c.HTTPAccessible || c.StreamAccessible
}

// GuildRecord owns its ChannelRecords and enforces the max_channels cap.
type GuildRecord struct {
	GuildName string                    `json:"guild_name"`
	GuildID   string                    `json:"guild_id"`
	Channels  map[string]*ChannelRecord `json:"channels"`
	MaxChannels int                     `json:"max_channels"`

	Status        GuildStatus `json:"status"`
	LastSync      *time.Time  `json:"last_sync,omitempty"`
	ErrorMessage  string      `json:"error_message,omitempty"`
	SinkTopicID   int         `json:"sink_topic_id,omitempty"`
	TopicCreatedAt *time.Time `json:"topic_created_at,omitempty"`

	TotalMessages  int        `json:"total_messages"`
	ActiveChannels int        `json:"active_channels"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
}

// NewGuildRecord constructs an empty GuildRecord. A non-positive maxChannels
// defaults to 10 and a value above 20 is clamped to 20.
func NewGuildRecord(guildName, guildID string, maxChannels int) *GuildRecord {
	if maxChannels <= 0 {
		maxChannels = 10
	}
	if maxChannels > 20 {
		maxChannels = 20
	}
	return &GuildRecord{
		GuildName:   guildName,
		GuildID:     guildID,
		Channels:    make(map[string]*ChannelRecord),
		MaxChannels: maxChannels,
		Status:      GuildPending,
	}
}

// AddChannel enforces |channels| <= max_channels and returns an error when
// the guild is already at capacity.
func (g *GuildRecord) AddChannel(c *ChannelRecord) error {
	if _, exists := g.Channels[c.ChannelID]; exists {
		g.Channels[c.ChannelID] = c
		return nil
	}
	if len(g.Channels) >= g.MaxChannels {
		return fmt.Errorf("models: guild %q already has %d channels (max %d)", g.GuildName, len(g.Channels), g.MaxChannels)
	}
	g.Channels[c.ChannelID] = c
	return nil
}

// AccessibleChannels returns the subset of channels that are accessible.
func (g *GuildRecord) AccessibleChannels() []*ChannelRecord {
	out := make([]*ChannelRecord, 0, len(g.Channels))
	for _, c := range g.Channels {
		if c.Accessible() {
			out = append(out, c)
		}
	}
	return out
}

// UpdateStats recomputes ActiveChannels/Status/LastSync the way the
// reconciliation loop does after each discovery pass.
func (g *GuildRecord) UpdateStats(now time.Time) {
	g.ActiveChannels = len(g.AccessibleChannels())
	g.LastSync = &now
	if g.ActiveChannels > 0 {
		g.Status = GuildActive
	} else {
		g.Status = GuildInactive
	}
}
