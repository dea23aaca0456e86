package models

import "time"

// MetricsSnapshot aggregates counters for the metrics summary endpoint.
type MetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Mutations                uint64    `json:"mutations"`
	RefusedMutations         uint64    `json:"refused_mutations"`
	NotificationsSent        uint64    `json:"notifications_sent"`
	ActiveMonitors           int64     `json:"active_monitors"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
