package rpcpool

import "time"

// Latency thresholds used to colour endpoints for display.
const (
	LatencyAmberThreshold = 750 * time.Millisecond
	LatencyRedThreshold   = 2000 * time.Millisecond
)

// LatencyStatus classifies a latency as green, amber or red.
func LatencyStatus(latency time.Duration) string {
	switch {
	case latency > LatencyRedThreshold:
		return "red"
	case latency > LatencyAmberThreshold:
		return "amber"
	default:
		return "green"
	}
}

// EndpointRecord is the display view of an endpoint: url, last latency and
// the latest block time it reported.
type EndpointRecord struct {
	URL             string    `json:"url" yaml:"url"`
	LatencyMs       int64     `json:"latency_ms" yaml:"latency_ms"`
	Status          string    `json:"status,omitempty" yaml:"status,omitempty"`
	LatestHeight    int64     `json:"latest_height" yaml:"latest_height"`
	LatestBlockTime time.Time `json:"latest_block_time" yaml:"latest_block_time"`
	ConnectedAt     time.Time `json:"connected_at" yaml:"connected_at"`
	State           string    `json:"state" yaml:"state"`
	HealthScore     float64   `json:"health_score" yaml:"health_score"`
	LastUsed        time.Time `json:"last_used" yaml:"last_used"`

	latency time.Duration
}

// HealthStatus represents the health status of the RPC pool
type HealthStatus struct {
	Network        string           `json:"network"`
	TotalEndpoints int              `json:"total_endpoints"`
	HealthyCount   int              `json:"healthy_count"`
	UnhealthyCount int              `json:"unhealthy_count"`
	DegradedCount  int              `json:"degraded_count"`
	ExcludedCount  int              `json:"excluded_count"`
	Strategy       string           `json:"strategy"`
	Endpoints      []EndpointStatus `json:"endpoints"`
}

// EndpointStatus represents the status of a single endpoint
type EndpointStatus struct {
	URL          string    `json:"url"`
	State        string    `json:"state"`
	HealthScore  float64   `json:"health_score"`
	ResponseTime int64     `json:"response_time_ms"`
	LastChecked  time.Time `json:"last_checked"`
	LastError    string    `json:"last_error,omitempty"`
}
