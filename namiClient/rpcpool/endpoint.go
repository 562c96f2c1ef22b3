package rpcpool

import (
	"context"
	"sync"
	"time"
)

// EndpointState represents the current state of an RPC endpoint
type EndpointState int

const (
	StateHealthy EndpointState = iota
	StateDegraded
	StateUnhealthy
	StateExcluded
)

func (s EndpointState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	case StateExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// EndpointMetrics tracks performance and health metrics for an endpoint
type EndpointMetrics struct {
	mu                  sync.RWMutex
	TotalRequests       uint64
	SuccessfulRequests  uint64
	FailedRequests      uint64
	AverageLatency      time.Duration
	ConsecutiveFailures int
	LastSuccessTime     time.Time
	LastErrorTime       time.Time
	LastError           error
	HealthScore         float64 // 0-100, calculated from success rate and latency
}

func newMetrics(score float64) *EndpointMetrics {
	return &EndpointMetrics{HealthScore: score}
}

// UpdateSuccess updates metrics for a successful request
func (m *EndpointMetrics) UpdateSuccess(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.SuccessfulRequests++
	m.ConsecutiveFailures = 0
	m.LastSuccessTime = time.Now()

	if m.AverageLatency == 0 {
		m.AverageLatency = latency
	} else {
		// Exponential moving average with alpha = 0.1
		m.AverageLatency = time.Duration(float64(m.AverageLatency)*0.9 + float64(latency)*0.1)
	}

	m.calculateHealthScore()
}

// UpdateFailure updates metrics for a failed request
func (m *EndpointMetrics) UpdateFailure(err error, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.FailedRequests++
	m.ConsecutiveFailures++
	m.LastErrorTime = time.Now()
	m.LastError = err

	// timeouts still move the average
	if latency > 0 && m.AverageLatency > 0 {
		m.AverageLatency = time.Duration(float64(m.AverageLatency)*0.9 + float64(latency)*0.1)
	}

	m.calculateHealthScore()
}

func (m *EndpointMetrics) calculateHealthScore() {
	if m.TotalRequests == 0 {
		m.HealthScore = 100.0
		return
	}

	successRate := float64(m.SuccessfulRequests) / float64(m.TotalRequests)
	baseScore := successRate * 100.0

	// 5 points per second above one second, at most 20
	latencyPenalty := 0.0
	if m.AverageLatency > time.Second {
		latencyPenalty = (m.AverageLatency.Seconds() - 1.0) * 5.0
		if latencyPenalty > 20.0 {
			latencyPenalty = 20.0
		}
	}

	// 10 points per consecutive failure, at most 50
	failurePenalty := float64(m.ConsecutiveFailures) * 10.0
	if failurePenalty > 50.0 {
		failurePenalty = 50.0
	}

	m.HealthScore = baseScore - latencyPenalty - failurePenalty
	if m.HealthScore < 0 {
		m.HealthScore = 0
	}
}

// GetHealthScore returns the current health score (thread-safe)
func (m *EndpointMetrics) GetHealthScore() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HealthScore
}

// GetSuccessRate returns the success rate (thread-safe)
func (m *EndpointMetrics) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.TotalRequests == 0 {
		return 1.0
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// GetConsecutiveFailures returns consecutive failure count (thread-safe)
func (m *EndpointMetrics) GetConsecutiveFailures() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ConsecutiveFailures
}

func (m *EndpointMetrics) snapshot() (avg time.Duration, total, failed uint64, lastErr error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.AverageLatency, m.TotalRequests, m.FailedRequests, m.LastError
}

// Endpoint is a single RPC endpoint together with the last observed probe.
type Endpoint struct {
	URL     string
	Client  Client
	State   EndpointState
	Metrics *EndpointMetrics

	// Latency of the most recent successful probe; zero until one succeeds.
	Latency         time.Duration
	LatestHeight    int64
	LatestBlockTime time.Time
	ConnectedAt     time.Time

	LastUsed   time.Time
	ExcludedAt time.Time

	mu     sync.RWMutex
	dialMu sync.Mutex
}

// NewEndpoint creates a new RPC endpoint
func NewEndpoint(url string) *Endpoint {
	return &Endpoint{
		URL:     url,
		State:   StateHealthy,
		Metrics: newMetrics(100.0),
	}
}

// SetClient sets the RPC client for this endpoint
func (e *Endpoint) SetClient(client Client) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Client = client
}

// GetClient returns the RPC client (thread-safe)
func (e *Endpoint) GetClient() Client {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Client
}

// ensureClient dials the endpoint once; concurrent callers share the result.
func (e *Endpoint) ensureClient(ctx context.Context, factory ClientFactory) (Client, error) {
	e.dialMu.Lock()
	defer e.dialMu.Unlock()

	if c := e.GetClient(); c != nil {
		return c, nil
	}
	c, err := factory(ctx, e.URL)
	if err != nil {
		return nil, err
	}
	e.SetClient(c)
	return c, nil
}

// UpdateState updates the endpoint state (thread-safe)
func (e *Endpoint) UpdateState(state EndpointState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state == StateExcluded && e.State != StateExcluded {
		e.ExcludedAt = time.Now()
	}

	e.State = state
}

// GetState returns the current state (thread-safe)
func (e *Endpoint) GetState() EndpointState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.State
}

// IsHealthy returns true if endpoint is in a usable state
func (e *Endpoint) IsHealthy() bool {
	state := e.GetState()
	return state == StateHealthy || state == StateDegraded
}

// GetMetrics returns the current metrics (thread-safe)
func (e *Endpoint) GetMetrics() *EndpointMetrics {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Metrics
}

// resetMetrics starts a fresh metrics window with the given score.
func (e *Endpoint) resetMetrics(score float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Metrics = newMetrics(score)
}

// RecordProbe stores the outcome of a successful probe.
func (e *Endpoint) RecordProbe(p Probe) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Latency = p.Latency
	e.LatestHeight = p.LatestHeight
	e.LatestBlockTime = p.LatestBlockTime
	e.ConnectedAt = time.Now()
}

// GetLatency returns the latency of the last successful probe.
func (e *Endpoint) GetLatency() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Latency
}

// Record returns a display snapshot of the endpoint.
func (e *Endpoint) Record() EndpointRecord {
	e.mu.RLock()
	rec := EndpointRecord{
		URL:             e.URL,
		LatencyMs:       e.Latency.Milliseconds(),
		LatestHeight:    e.LatestHeight,
		LatestBlockTime: e.LatestBlockTime,
		ConnectedAt:     e.ConnectedAt,
		State:           e.State.String(),
		LastUsed:        e.LastUsed,
	}
	latency := e.Latency
	metrics := e.Metrics
	e.mu.RUnlock()

	rec.HealthScore = metrics.GetHealthScore()
	if latency > 0 {
		rec.Status = LatencyStatus(latency)
	}
	rec.latency = latency
	return rec
}
