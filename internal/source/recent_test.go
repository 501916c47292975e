package source

import "testing"

func TestStripMentionNoise(t *testing.T) {
	cases := []struct {
		content string
		wantOK  bool
	}{
		{"hello world", true},
		{"  spaced  ", true},
		{"!ping", false},
		{"/help", false},
		{"", true},
	}

	for _, tc := range cases {
		_, ok := stripMentionNoise(tc.content)
		if ok != tc.wantOK {
			t.Errorf("stripMentionNoise(%q) ok = %v, want %v", tc.content, ok, tc.wantOK)
		}
	}
}
