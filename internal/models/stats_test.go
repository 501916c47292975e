package models

import "testing"

func TestHealthScore(t *testing.T) {
	cases := []struct {
		name           string
		errorsLastHour int
		memoryMB       float64
		activeChannels int
		want           float64
	}{
		{"perfect", 0, 100, 5, 100},
		{"some_errors", 4, 100, 5, 80},
		{"errors_capped", 50, 100, 5, 50},
		{"high_memory", 0, 2000, 5, 80},
		{"no_channels", 0, 100, 0, 70},
		{"everything_wrong", 50, 2000, 0, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := HealthScore(tc.errorsLastHour, tc.memoryMB, tc.activeChannels)
			if got != tc.want {
				t.Errorf("HealthScore(%d, %.0f, %d) = %.0f, want %.0f",
					tc.errorsLastHour, tc.memoryMB, tc.activeChannels, got, tc.want)
			}
		})
	}
}

func TestSystemStats_StatusBanner(t *testing.T) {
	cases := []struct {
		name  string
		stats SystemStats
		want  string
	}{
		{"excellent", SystemStats{ActiveChannels: 1}, "🟢 Excellent"},
		{"good", SystemStats{ActiveChannels: 1, ErrorsLastHour: 5}, "🟡 Good"},
		{"warning", SystemStats{ActiveChannels: 1, ErrorsLastHour: 9}, "🟠 Warning"},
		{"critical", SystemStats{ActiveChannels: 0, ErrorsLastHour: 50, MemoryUsageMB: 2000}, "🔴 Critical"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.stats.StatusBanner(); got != tc.want {
				t.Errorf("StatusBanner() = %q, want %q (score=%.0f)", got, tc.want, tc.stats.HealthScore())
			}
		})
	}
}
