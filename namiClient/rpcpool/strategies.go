package rpcpool

import (
	"math/rand"
	"sync/atomic"
)

// LoadBalancingStrategy defines how requests are distributed across endpoints
type LoadBalancingStrategy string

const (
	StrategyFastest    LoadBalancingStrategy = "fastest"
	StrategyRoundRobin LoadBalancingStrategy = "round-robin"
	StrategyWeighted   LoadBalancingStrategy = "weighted"
)

// EndpointSelector handles endpoint selection based on different strategies
type EndpointSelector struct {
	strategy     LoadBalancingStrategy
	currentIndex atomic.Uint32
}

// NewEndpointSelector creates a new endpoint selector with the specified strategy.
// Unknown strategies fall back to fastest.
func NewEndpointSelector(strategy LoadBalancingStrategy) *EndpointSelector {
	switch strategy {
	case StrategyFastest, StrategyRoundRobin, StrategyWeighted:
	default:
		strategy = StrategyFastest
	}

	return &EndpointSelector{
		strategy: strategy,
	}
}

// SelectEndpoint selects an endpoint from the healthy endpoints based on the configured strategy
func (s *EndpointSelector) SelectEndpoint(healthyEndpoints []*Endpoint) *Endpoint {
	if len(healthyEndpoints) == 0 {
		return nil
	}

	switch s.strategy {
	case StrategyWeighted:
		return s.selectWeighted(healthyEndpoints)
	case StrategyRoundRobin:
		return s.selectRoundRobin(healthyEndpoints)
	default:
		return s.selectFastest(healthyEndpoints)
	}
}

// selectFastest picks the endpoint with the lowest measured latency.
// Endpoints that were never probed are only used when nothing was measured.
func (s *EndpointSelector) selectFastest(endpoints []*Endpoint) *Endpoint {
	var best *Endpoint
	for _, ep := range endpoints {
		l := ep.GetLatency()
		if l == 0 {
			continue
		}
		if best == nil || l < best.GetLatency() {
			best = ep
		}
	}
	if best == nil {
		return s.selectRoundRobin(endpoints)
	}
	return best
}

func (s *EndpointSelector) selectRoundRobin(endpoints []*Endpoint) *Endpoint {
	if len(endpoints) == 1 {
		return endpoints[0]
	}

	index := s.currentIndex.Add(1) % uint32(len(endpoints))
	return endpoints[index]
}

// selectWeighted implements weighted selection based on health scores
func (s *EndpointSelector) selectWeighted(endpoints []*Endpoint) *Endpoint {
	if len(endpoints) == 1 {
		return endpoints[0]
	}

	totalWeight := 0.0
	for _, endpoint := range endpoints {
		totalWeight += endpoint.GetMetrics().GetHealthScore()
	}

	if totalWeight == 0 {
		return s.selectRoundRobin(endpoints)
	}

	target := rand.Float64() * totalWeight

	currentWeight := 0.0
	for _, endpoint := range endpoints {
		currentWeight += endpoint.GetMetrics().GetHealthScore()
		if currentWeight >= target {
			return endpoint
		}
	}

	return endpoints[len(endpoints)-1]
}

// GetStrategy returns the current strategy
func (s *EndpointSelector) GetStrategy() LoadBalancingStrategy {
	return s.strategy
}
