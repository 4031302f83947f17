package models

// MetricsSnapshot holds the gateway's operational counters as of the last poll.
// Each poll replaces it wholesale.
type MetricsSnapshot struct {
	TotalRequests  int64 `json:"total_requests" yaml:"total_requests"`
	CacheHits      int64 `json:"cache_hits" yaml:"cache_hits"`
	ThreatsBlocked int64 `json:"threats_blocked" yaml:"threats_blocked"`
}
