// Package models holds the bridge's data model: Message, ChannelRecord,
// GuildRecord, SystemStats, and the persisted sink blob.
package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bogdan-lmk/discord-telegram-bridge/internal/security"
)

var (
	mentionUser    = regexp.MustCompile(`<@!?\d+>`)
	mentionChannel = regexp.MustCompile(`<#\d+>`)
	mentionRole    = regexp.MustCompile(`<@&\d+>`)
	nameDisallowed = regexp.MustCompile(`[^\w \-.]`)
)

// ValidationError is returned by NewMessage when a field fails validation.
// It is a single typed error rather than scattered cleaning logic, per the
// "single constructor" design note.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("models: invalid %s: %s", e.Field, e.Reason)
}

// CleanContent applies the mention-normalization and whitespace rules.
// Idempotent: CleanContent(CleanContent(x)) == CleanContent(x), since the
// mention patterns never match the literal replacement tags they produce.
func CleanContent(s string) string {
	s = mentionUser.ReplaceAllString(s, "[User]")
	s = mentionChannel.ReplaceAllString(s, "[Channel]")
	s = mentionRole.ReplaceAllString(s, "[Role]")
	return strings.TrimSpace(s)
}

// CleanName strips characters outside [A-Za-z0-9_ \-.] and trims whitespace.
func CleanName(s string) string {
	s = nameDisallowed.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Message is immutable after construction; build one with NewMessage.
type Message struct {
	Content   string
	Timestamp time.Time
	GuildName string
	ChannelName string
	Author    string

	MessageID  string
	ChannelID  string
	GuildID    string

	TranslatedContent string
	Attachments       []string
	Embeds            []string

	ProcessedAt   *time.Time
	SinkMessageID int64
}

const maxContentLength = 4000

// NewMessage validates and normalizes its inputs, returning a
// *ValidationError on the first failure. Optional snowflake fields are
// validated with security.ParseSnowflake when non-empty.
//
// guildName/channelName may be empty when the corresponding snowflake ID is
// supplied via WithIDs: the gateway dispatch path only knows IDs at receive
// time and fills in names once the orchestrator resolves them against its
// guild map.
func NewMessage(content string, timestamp time.Time, guildName, channelName, author string, opts ...func(*Message)) (Message, error) {
	cleanedContent := CleanContent(content)
	if cleanedContent == "" {
		return Message{}, &ValidationError{Field: "content", Reason: "empty after normalization"}
	}
	if utf8.RuneCountInString(cleanedContent) > maxContentLength {
		return Message{}, &ValidationError{Field: "content", Reason: fmt.Sprintf("exceeds %d characters", maxContentLength)}
	}

	if timestamp.After(time.Now()) {
		return Message{}, &ValidationError{Field: "timestamp", Reason: "is in the future"}
	}

	cleanedAuthor := CleanName(author)
	if cleanedAuthor == "" {
		return Message{}, &ValidationError{Field: "author", Reason: "empty after cleaning"}
	}

	m := Message{
		Content:     cleanedContent,
		Timestamp:   timestamp,
		GuildName:   CleanName(guildName),
		ChannelName: CleanName(channelName),
		Author:      cleanedAuthor,
	}
	for _, opt := range opts {
		opt(&m)
	}

	if m.MessageID != "" {
		if _, err := security.ParseSnowflake(m.MessageID); err != nil {
			return Message{}, &ValidationError{Field: "message_id", Reason: err.Error()}
		}
	}
	if m.ChannelID != "" {
		if _, err := security.ParseSnowflake(m.ChannelID); err != nil {
			return Message{}, &ValidationError{Field: "channel_id", Reason: err.Error()}
		}
	}
	if m.GuildID != "" {
		if _, err := security.ParseSnowflake(m.GuildID); err != nil {
			return Message{}, &ValidationError{Field: "guild_id", Reason: err.Error()}
		}
	}

	if m.GuildName == "" && m.GuildID == "" {
		return Message{}, &ValidationError{Field: "guild_name", Reason: "empty after cleaning and no guild_id given"}
	}
	if m.ChannelName == "" && m.ChannelID == "" {
		return Message{}, &ValidationError{Field: "channel_name", Reason: "empty after cleaning and no channel_id given"}
	}

	return m, nil
}

// WithIDs is an option for NewMessage that attaches the optional snowflake
// identifiers.
func WithIDs(messageID, channelID, guildID string) func(*Message) {
	return func(m *Message) {
		m.MessageID = messageID
		m.ChannelID = channelID
		m.GuildID = guildID
	}
}

// FormatForSink renders the message the way the Sink Client sends it:
// optional guild line, always the channel line, optional timestamp line,
// author line, content line, joined by newlines.
func (m Message) FormatForSink(showServer, showTimestamp bool) string {
	var lines []string
	if showServer {
		lines = append(lines, fmt.Sprintf("🏰 **%s**", m.GuildName))
	}
	lines = append(lines, fmt.Sprintf("📢 #%s", m.ChannelName))
	if showTimestamp {
		lines = append(lines, fmt.Sprintf("📅 %s", m.Timestamp.Format("2006-01-02 15:04:05")))
	}
	lines = append(lines, fmt.Sprintf("👤 %s", m.Author))
	lines = append(lines, fmt.Sprintf("💬 %s", m.Content))
	return strings.Join(lines, "\n")
}
