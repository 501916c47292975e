package models

import (
	"testing"
	"time"
)

func TestNewGuildRecord_ClampsMaxChannels(t *testing.T) {
	cases := []struct {
		in, want int
	}{
		{0, 10},
		{-5, 10},
		{5, 5},
		{100, 20},
	}
	for _, tc := range cases {
		g := NewGuildRecord("g", "1", tc.in)
		if g.MaxChannels != tc.want {
			t.Errorf("NewGuildRecord(maxChannels=%d).MaxChannels = %d, want %d", tc.in, g.MaxChannels, tc.want)
		}
	}
}

func TestGuildRecord_AddChannel_EnforcesCap(t *testing.T) {
	g := NewGuildRecord("g", "1", 2)

	if err := g.AddChannel(&ChannelRecord{ChannelID: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddChannel(&ChannelRecord{ChannelID: "b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddChannel(&ChannelRecord{ChannelID: "c"}); err == nil {
		t.Fatal("expected error adding a third channel over the cap")
	}

	// updating an existing channel doesn't count against the cap
	if err := g.AddChannel(&ChannelRecord{ChannelID: "a", ChannelName: "renamed"}); err != nil {
		t.Fatalf("unexpected error updating existing channel: %v", err)
	}
	if len(g.Channels) != 2 {
		t.Errorf("expected 2 channels, got %d", len(g.Channels))
	}
}

func TestGuildRecord_AccessibleChannels(t *testing.T) {
	g := NewGuildRecord("g", "1", 10)
	_ = g.AddChannel(&ChannelRecord{ChannelID: "a", HTTPAccessible: true})
	_ = g.AddChannel(&ChannelRecord{ChannelID: "b", HTTPAccessible: false, StreamAccessible: false})
	_ = g.AddChannel(&ChannelRecord{ChannelID: "c", StreamAccessible: true})

	accessible := g.AccessibleChannels()
	if len(accessible) != 2 {
		t.Errorf("expected 2 accessible channels, got %d", len(accessible))
	}
}

func TestGuildRecord_UpdateStats(t *testing.T) {
	g := NewGuildRecord("g", "1", 10)
	_ = g.AddChannel(&ChannelRecord{ChannelID: "a", HTTPAccessible: true})

	g.UpdateStats(time.Now())
	if g.Status != GuildActive {
		t.Errorf("expected status active, got %s", g.Status)
	}
	if g.ActiveChannels != 1 {
		t.Errorf("expected 1 active channel, got %d", g.ActiveChannels)
	}

	empty := NewGuildRecord("g2", "2", 10)
	empty.UpdateStats(time.Now())
	if empty.Status != GuildInactive {
		t.Errorf("expected status inactive for guild with no accessible channels, got %s", empty.Status)
	}
}
