package models

import "time"

// SystemStats is the rolled-up counter set exposed on the admin status
// surface. HealthScore is a pure function of the three named fields below.
type SystemStats struct {
	TotalServers   int `json:"total_servers"`
	TotalChannels  int `json:"total_channels"`
	ActiveServers  int `json:"active_servers"`
	ActiveChannels int `json:"active_channels"`

	MessagesProcessedToday int `json:"messages_processed_today"`
	MessagesProcessedTotal int `json:"messages_processed_total"`

	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
	MemoryUsageMB         float64 `json:"memory_usage_mb"`
	UptimeSeconds         int64   `json:"uptime_seconds"`

	SourceRequestsPerHour int `json:"source_requests_per_hour"`
	SinkRequestsPerHour   int `json:"sink_requests_per_hour"`

	ErrorsLastHour int        `json:"errors_last_hour"`
	LastError      string     `json:"last_error,omitempty"`
	LastErrorTime  *time.Time `json:"last_error_time,omitempty"`
}

// HealthScore starts at 100, subtracts min(50, 5*errors_last_hour), 20 if
// memory exceeds 1500MB, and 30 if there are no accessible channels. Result
// is clamped to [0, 100].
func HealthScore(errorsLastHour int, memoryUsageMB float64, activeChannels int) float64 {
	score := 100.0
	if errorsLastHour > 0 {
		penalty := 5 * errorsLastHour
		if penalty > 50 {
			penalty = 50
		}
		score -= float64(penalty)
	}
	if memoryUsageMB > 1500 {
		score -= 20
	}
	if activeChannels == 0 {
		score -= 30
	}
	if score < 0 {
		return 0
	}
	return score
}

// HealthScore is the SystemStats-bound convenience wrapper.
func (s SystemStats) HealthScore() float64 {
	return HealthScore(s.ErrorsLastHour, s.MemoryUsageMB, s.ActiveChannels)
}

// StatusBanner renders a human-readable status string derived from the
// same health score used by monitoring/alerting.
func (s SystemStats) StatusBanner() string {
	switch h := s.HealthScore(); {
	case h >= 90:
		return "🟢 Excellent"
	case h >= 70:
		return "🟡 Good"
	case h >= 50:
		return "🟠 Warning"
	default:
		return "🔴 Critical"
	}
}
