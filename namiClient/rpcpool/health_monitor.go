package rpcpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
)

// HealthMonitor periodically probes every endpoint and manages recovery of excluded ones.
type HealthMonitor struct {
	manager *Manager
	config  config.RPCPoolConfig
	logger  zerolog.Logger
	stopCh  chan struct{}
	once    sync.Once

	mu         sync.RWMutex
	afterRound func()
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(manager *Manager, cfg config.RPCPoolConfig, logger zerolog.Logger) *HealthMonitor {
	return &HealthMonitor{
		manager: manager,
		config:  cfg,
		logger:  logger.With().Str("component", "health_monitor").Str("network", manager.network).Logger(),
		stopCh:  make(chan struct{}),
	}
}

// OnRoundComplete registers fn to run after each full round of checks.
func (h *HealthMonitor) OnRoundComplete(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.afterRound = fn
}

// Start begins the health monitoring loop
func (h *HealthMonitor) Start(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := h.config.HealthCheckInterval()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	h.logger.Info().Dur("interval", interval).Msg("starting health monitor")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("health monitor stopping: context cancelled")
			return
		case <-h.stopCh:
			h.logger.Info().Msg("health monitor stopping: stop signal received")
			return
		case <-ticker.C:
			h.PerformHealthChecks(ctx)
		}
	}
}

// Stop stops the health monitor
func (h *HealthMonitor) Stop() {
	h.once.Do(func() { close(h.stopCh) })
}

// PerformHealthChecks checks every endpoint once, concurrently.
func (h *HealthMonitor) PerformHealthChecks(ctx context.Context) {
	h.logger.Debug().Msg("performing health checks on all endpoints")

	var wg sync.WaitGroup
	for _, endpoint := range h.manager.GetEndpoints() {
		wg.Add(1)
		go func(ep *Endpoint) {
			defer wg.Done()
			h.checkEndpointHealth(ctx, ep)
		}(endpoint)
	}
	wg.Wait()

	h.mu.RLock()
	fn := h.afterRound
	h.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (h *HealthMonitor) checkEndpointHealth(ctx context.Context, endpoint *Endpoint) {
	if endpoint.GetState() == StateExcluded {
		endpoint.mu.RLock()
		excludedAt := endpoint.ExcludedAt
		endpoint.mu.RUnlock()

		// excluded endpoints are only retried once per recovery interval
		if time.Since(excludedAt) < h.config.RecoveryInterval() {
			return
		}
		h.recoverExcluded(ctx, endpoint)
		return
	}

	err := h.manager.probe(ctx, endpoint)
	metrics := endpoint.GetMetrics()
	if err != nil {
		h.logger.Warn().
			Str("url", endpoint.URL).
			Err(err).
			Int("consecutive_failures", metrics.GetConsecutiveFailures()).
			Msg("endpoint health check failed")
		return
	}
	h.logger.Debug().
		Str("url", endpoint.URL).
		Dur("latency", endpoint.GetLatency()).
		Float64("health_score", metrics.GetHealthScore()).
		Msg("endpoint health check passed")
}

func (h *HealthMonitor) recoverExcluded(ctx context.Context, endpoint *Endpoint) {
	err := h.manager.probe(ctx, endpoint)
	if err == nil {
		// start over as degraded with a moderate score and watch it closely
		endpoint.resetMetrics(70.0)
		endpoint.UpdateState(StateDegraded)
		h.logger.Info().
			Str("url", endpoint.URL).
			Dur("latency", endpoint.GetLatency()).
			Msg("endpoint recovered, promoted to degraded state")
		return
	}

	endpoint.mu.Lock()
	endpoint.ExcludedAt = time.Now()
	endpoint.mu.Unlock()

	h.logger.Warn().
		Str("url", endpoint.URL).
		Err(err).
		Msg("endpoint recovery failed, extending exclusion period")
}

// GetHealthStatus returns a summary of endpoint health
func (h *HealthMonitor) GetHealthStatus() *HealthStatus {
	endpoints := h.manager.GetEndpoints()

	status := &HealthStatus{
		Network:        h.manager.network,
		TotalEndpoints: len(endpoints),
		Strategy:       string(h.manager.selector.GetStrategy()),
		Endpoints:      make([]EndpointStatus, len(endpoints)),
	}

	for i, endpoint := range endpoints {
		state := endpoint.GetState()
		switch state {
		case StateHealthy:
			status.HealthyCount++
		case StateDegraded:
			status.DegradedCount++
		case StateUnhealthy:
			status.UnhealthyCount++
		case StateExcluded:
			status.ExcludedCount++
		}

		avg, _, _, lastErr := endpoint.GetMetrics().snapshot()
		var lastError string
		if lastErr != nil {
			lastError = lastErr.Error()
		}

		endpoint.mu.RLock()
		lastChecked := endpoint.ConnectedAt
		endpoint.mu.RUnlock()

		status.Endpoints[i] = EndpointStatus{
			URL:          endpoint.URL,
			State:        state.String(),
			HealthScore:  endpoint.GetMetrics().GetHealthScore(),
			ResponseTime: avg.Milliseconds(),
			LastChecked:  lastChecked,
			LastError:    lastError,
		}
	}

	return status
}

// ForceExcludeEndpoint manually excludes an endpoint
func (h *HealthMonitor) ForceExcludeEndpoint(url string) error {
	for _, endpoint := range h.manager.GetEndpoints() {
		if endpoint.URL == url {
			endpoint.UpdateState(StateExcluded)
			h.logger.Info().Str("url", url).Msg("endpoint manually excluded")
			return nil
		}
	}
	return fmt.Errorf("endpoint not found: %s", url)
}

// ForceRecoverEndpoint manually recovers an excluded endpoint
func (h *HealthMonitor) ForceRecoverEndpoint(url string) error {
	for _, endpoint := range h.manager.GetEndpoints() {
		if endpoint.URL == url && endpoint.GetState() == StateExcluded {
			endpoint.resetMetrics(70.0)
			endpoint.UpdateState(StateDegraded)
			h.logger.Info().Str("url", url).Msg("endpoint manually recovered")
			return nil
		}
	}
	return fmt.Errorf("excluded endpoint not found: %s", url)
}
