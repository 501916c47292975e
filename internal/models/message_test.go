package models

import (
	"strings"
	"testing"
	"time"
)

func TestCleanContent(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"hey <@123456789012345678> check this", "hey [User] check this"},
		{"see <#123456789012345678>", "see [Channel]"},
		{"ping <@&123456789012345678>", "ping [Role]"},
		{"  trim me  ", "trim me"},
	}
	for _, tc := range cases {
		if got := CleanContent(tc.in); got != tc.want {
			t.Errorf("CleanContent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanContentIdempotent(t *testing.T) {
	in := "hey <@123> and <#456> and <@&789>"
	once := CleanContent(in)
	twice := CleanContent(once)
	if once != twice {
		t.Errorf("CleanContent not idempotent: once=%q twice=%q", once, twice)
	}
}

func TestNewMessage_RejectsEmptyContent(t *testing.T) {
	_, err := NewMessage("   ", time.Now().Add(-time.Minute), "guild", "channel", "author")
	if err == nil {
		t.Fatal("expected validation error for empty content")
	}
	var ve *ValidationError
	if !asValidationError(err, &ve) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != "content" {
		t.Errorf("expected field=content, got %q", ve.Field)
	}
}

func TestNewMessage_RejectsOversizedContent(t *testing.T) {
	huge := strings.Repeat("a", maxContentLength+1)
	_, err := NewMessage(huge, time.Now().Add(-time.Minute), "guild", "channel", "author")
	if err == nil {
		t.Fatal("expected validation error for oversized content")
	}
}

func TestNewMessage_RejectsFutureTimestamp(t *testing.T) {
	_, err := NewMessage("hello", time.Now().Add(time.Hour), "guild", "channel", "author")
	if err == nil {
		t.Fatal("expected validation error for future timestamp")
	}
}

func TestNewMessage_AllowsEmptyNamesWithIDs(t *testing.T) {
	msg, err := NewMessage("hello", time.Now().Add(-time.Minute), "", "", "author",
		WithIDs("123456789012345678", "234567890123456789", "345678901234567890"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.GuildName != "" || msg.ChannelName != "" {
		t.Errorf("expected empty names to be preserved pending resolution, got guild=%q channel=%q", msg.GuildName, msg.ChannelName)
	}
}

func TestNewMessage_RejectsEmptyNameWithoutID(t *testing.T) {
	_, err := NewMessage("hello", time.Now().Add(-time.Minute), "", "channel", "author")
	if err == nil {
		t.Fatal("expected validation error for missing guild name and id")
	}
}

func TestNewMessage_RejectsInvalidSnowflake(t *testing.T) {
	_, err := NewMessage("hello", time.Now().Add(-time.Minute), "guild", "channel", "author",
		WithIDs("not-a-snowflake", "", ""))
	if err == nil {
		t.Fatal("expected validation error for invalid message id")
	}
}

func TestMessage_FormatForSink(t *testing.T) {
	ts := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	msg, err := NewMessage("hello there", ts, "My Guild", "general", "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	formatted := msg.FormatForSink(true, true)
	for _, want := range []string{"My Guild", "#general", "2026-01-02 15:04:05", "alice", "hello there"} {
		if !strings.Contains(formatted, want) {
			t.Errorf("formatted output missing %q:\n%s", want, formatted)
		}
	}

	withoutServer := msg.FormatForSink(false, false)
	if strings.Contains(withoutServer, "My Guild") {
		t.Errorf("expected guild line to be omitted:\n%s", withoutServer)
	}
}

func asValidationError(err error, out **ValidationError) bool {
	ve, ok := err.(*ValidationError)
	if ok {
		*out = ve
	}
	return ok
}
