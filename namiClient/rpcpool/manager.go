package rpcpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nami-protocol/nami-client/namiClient/config"
)

// Manager tracks the RPC endpoints of one network: it races them to find the
// fastest, keeps per-endpoint latency and health, and hands out fallbacks.
type Manager struct {
	network       string
	endpoints     []*Endpoint
	selector      *EndpointSelector
	config        config.RPCPoolConfig
	logger        zerolog.Logger
	HealthMonitor *HealthMonitor
	clientFactory ClientFactory
	observer      ProbeObserver
	wg            sync.WaitGroup
	probes        sync.WaitGroup
	mu            sync.RWMutex
	stopOnce      sync.Once
}

// NewManager creates a new RPC pool manager. It returns nil when urls is empty.
func NewManager(
	network string,
	urls []string,
	poolConfig config.RPCPoolConfig,
	clientFactory ClientFactory,
	logger zerolog.Logger,
) *Manager {
	if len(urls) == 0 {
		logger.Warn().Str("network", network).Msg("no RPC URLs provided for pool")
		return nil
	}

	seen := make(map[string]bool, len(urls))
	endpoints := make([]*Endpoint, 0, len(urls))
	for _, url := range urls {
		if url == "" || seen[url] {
			continue
		}
		seen[url] = true
		endpoints = append(endpoints, NewEndpoint(url))
	}

	manager := &Manager{
		network:       network,
		endpoints:     endpoints,
		selector:      NewEndpointSelector(LoadBalancingStrategy(poolConfig.LoadBalancingStrategy)),
		config:        poolConfig,
		logger:        logger.With().Str("component", "rpc_pool").Str("network", network).Logger(),
		clientFactory: clientFactory,
	}

	manager.HealthMonitor = NewHealthMonitor(manager, poolConfig, logger)

	return manager
}

// SetProbeObserver registers a callback invoked after every probe.
func (m *Manager) SetProbeObserver(fn ProbeObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// Network returns the chain ID served by this pool.
func (m *Manager) Network() string {
	return m.network
}

// Race dials and probes every endpoint concurrently and returns the first one
// to answer. Only the wait for the winner follows ctx: slower endpoints keep
// probing after Race returns or ctx is cancelled, each bounded by the request
// timeout, so their latency is still recorded. If every endpoint fails the
// joined errors are returned.
func (m *Manager) Race(ctx context.Context) (*Endpoint, error) {
	endpoints := m.GetEndpoints()
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured for %s", m.network)
	}

	type result struct {
		ep  *Endpoint
		err error
	}
	results := make(chan result, len(endpoints))
	probeCtx := context.WithoutCancel(ctx)

	for _, endpoint := range endpoints {
		m.probes.Add(1)
		go func(ep *Endpoint) {
			defer m.probes.Done()
			err := m.probe(probeCtx, ep)
			if err != nil && ep.GetState() != StateExcluded {
				ep.UpdateState(StateUnhealthy)
			}
			results <- result{ep: ep, err: err}
		}(endpoint)
	}

	var errs []error
	for range endpoints {
		select {
		case r := <-results:
			if r.err == nil {
				m.logger.Info().
					Str("url", r.ep.URL).
					Dur("latency", r.ep.GetLatency()).
					Msg("rpc race won")
				return r.ep, nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", r.ep.URL, r.err))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("all %d endpoints failed: %w", len(endpoints), errors.Join(errs...))
}

// Wait blocks until every probe started by Race has finished or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.probes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect dials and probes a single URL. URLs that are not part of the pool
// yet are added, which is how a user-supplied custom RPC enters the pool.
func (m *Manager) Connect(ctx context.Context, url string) (*Endpoint, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url is empty")
	}
	ep := m.addEndpoint(url)
	if err := m.probe(ctx, ep); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if ep.GetState() == StateUnhealthy || ep.GetState() == StateExcluded {
		ep.UpdateState(StateDegraded)
	}
	return ep, nil
}

// probe dials the endpoint if needed and measures one status round trip.
func (m *Manager) probe(ctx context.Context, ep *Endpoint) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.RequestTimeout())
	defer cancel()

	start := time.Now()
	client, err := ep.ensureClient(probeCtx, m.clientFactory)
	if err != nil {
		err = fmt.Errorf("failed to create client: %w", err)
		m.UpdateEndpointMetrics(ep, false, time.Since(start), err)
		m.notify(ep.URL, 0, err)
		return err
	}

	p, err := client.Probe(probeCtx)
	latency := time.Since(start)
	if err != nil {
		m.UpdateEndpointMetrics(ep, false, latency, err)
		m.notify(ep.URL, latency, err)
		return err
	}
	if p.Latency == 0 {
		p.Latency = latency
	}

	ep.RecordProbe(p)
	m.UpdateEndpointMetrics(ep, true, p.Latency, nil)
	m.notify(ep.URL, p.Latency, nil)
	return nil
}

func (m *Manager) notify(url string, latency time.Duration, err error) {
	m.mu.RLock()
	fn := m.observer
	m.mu.RUnlock()
	if fn != nil {
		fn(url, latency, err)
	}
}

func (m *Manager) addEndpoint(url string) *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ep := range m.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	ep := NewEndpoint(url)
	m.endpoints = append(m.endpoints, ep)
	m.logger.Info().Str("url", url).Msg("custom endpoint added to pool")
	return ep
}

// Endpoint returns the endpoint with the given URL, or nil.
func (m *Manager) Endpoint(url string) *Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ep := range m.endpoints {
		if ep.URL == url {
			return ep
		}
	}
	return nil
}

// StartHealthMonitor runs the periodic health monitor until ctx is done or Stop is called.
func (m *Manager) StartHealthMonitor(ctx context.Context) {
	m.wg.Add(1)
	go m.HealthMonitor.Start(ctx, &m.wg)
}

// Stop stops health monitoring, waits for in-flight probes and closes every client.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		m.logger.Debug().Msg("stopping RPC pool manager")

		m.HealthMonitor.Stop()
		m.wg.Wait()
		m.probes.Wait()

		for _, endpoint := range m.GetEndpoints() {
			if client := endpoint.GetClient(); client != nil {
				if err := client.Close(); err != nil {
					m.logger.Warn().
						Str("url", endpoint.URL).
						Err(err).
						Msg("failed to close client connection")
				}
			}
		}
	})
}

// SelectEndpoint selects an available endpoint based on the configured strategy
func (m *Manager) SelectEndpoint() (*Endpoint, error) {
	return m.SelectEndpointExcept("")
}

// SelectEndpointExcept is SelectEndpoint ignoring the endpoint with the given URL.
func (m *Manager) SelectEndpointExcept(url string) (*Endpoint, error) {
	candidates := make([]*Endpoint, 0)
	for _, ep := range m.getHealthyEndpoints() {
		if ep.URL != url && ep.GetClient() != nil {
			candidates = append(candidates, ep)
		}
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no healthy endpoints available")
	}

	selected := m.selector.SelectEndpoint(candidates)
	if selected == nil {
		return nil, fmt.Errorf("failed to select endpoint")
	}

	selected.mu.Lock()
	selected.LastUsed = time.Now()
	selected.mu.Unlock()

	return selected, nil
}

func (m *Manager) getHealthyEndpoints() []*Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	healthy := make([]*Endpoint, 0, len(m.endpoints))
	for _, endpoint := range m.endpoints {
		if endpoint.IsHealthy() {
			healthy = append(healthy, endpoint)
		}
	}
	return healthy
}

// GetHealthyEndpointCount returns the count of healthy endpoints
func (m *Manager) GetHealthyEndpointCount() int {
	return len(m.getHealthyEndpoints())
}

// UpdateEndpointMetrics updates metrics for an endpoint after a request
func (m *Manager) UpdateEndpointMetrics(endpoint *Endpoint, success bool, latency time.Duration, err error) {
	metrics := endpoint.GetMetrics()
	if success {
		metrics.UpdateSuccess(latency)

		switch endpoint.GetState() {
		case StateUnhealthy:
			endpoint.UpdateState(StateDegraded)
			m.logger.Info().Str("url", endpoint.URL).Msg("endpoint answering again, marked degraded")
		case StateDegraded:
			if metrics.GetSuccessRate() > 0.8 {
				endpoint.UpdateState(StateHealthy)
				m.logger.Info().
					Str("url", endpoint.URL).
					Float64("success_rate", metrics.GetSuccessRate()).
					Msg("endpoint promoted to healthy")
			}
		}
		return
	}

	metrics.UpdateFailure(err, latency)

	consecutiveFailures := metrics.GetConsecutiveFailures()
	if consecutiveFailures >= m.config.UnhealthyThreshold && endpoint.GetState() != StateExcluded {
		endpoint.UpdateState(StateExcluded)
		m.logger.Warn().
			Str("url", endpoint.URL).
			Int("consecutive_failures", consecutiveFailures).
			Err(err).
			Msg("endpoint excluded due to consecutive failures")
	} else if metrics.GetSuccessRate() < 0.5 && endpoint.GetState() == StateHealthy {
		endpoint.UpdateState(StateDegraded)
		m.logger.Warn().
			Str("url", endpoint.URL).
			Float64("success_rate", metrics.GetSuccessRate()).
			Msg("endpoint downgraded to degraded")
	}
}

// Records returns a snapshot of every endpoint sorted by ascending latency.
// Endpoints without a measured latency come last, in URL order.
func (m *Manager) Records() []EndpointRecord {
	endpoints := m.GetEndpoints()
	records := make([]EndpointRecord, len(endpoints))
	for i, ep := range endpoints {
		records[i] = ep.Record()
	}
	SortRecords(records)
	return records
}

// SortRecords orders records by ascending latency, unmeasured last.
func SortRecords(records []EndpointRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].latency, records[j].latency
		switch {
		case a == 0 && b == 0:
			return records[i].URL < records[j].URL
		case a == 0:
			return false
		case b == 0:
			return true
		default:
			return a < b
		}
	})
}

// GetEndpoints returns all endpoints
func (m *Manager) GetEndpoints() []*Endpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	endpoints := make([]*Endpoint, len(m.endpoints))
	copy(endpoints, m.endpoints)
	return endpoints
}

// GetConfig returns the pool configuration
func (m *Manager) GetConfig() config.RPCPoolConfig {
	return m.config
}
