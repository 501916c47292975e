package source

import "testing"

func TestIsAnnouncementChannel(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"announcements", true},
		{"server-announcement", true},
		{"news-and-updates", true},
		{"general", false},
		{"NEWS", true},
		{"important-announcements-here", true},
		{"random", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := isAnnouncementChannel(tc.name); got != tc.want {
			t.Errorf("isAnnouncementChannel(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
