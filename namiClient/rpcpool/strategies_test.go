package rpcpool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func endpointWithLatency(url string, latency time.Duration) *Endpoint {
	ep := NewEndpoint(url)
	if latency > 0 {
		ep.RecordProbe(Probe{Latency: latency})
	}
	return ep
}

func TestNewEndpointSelector(t *testing.T) {
	tests := []struct {
		input    LoadBalancingStrategy
		expected LoadBalancingStrategy
	}{
		{StrategyFastest, StrategyFastest},
		{StrategyRoundRobin, StrategyRoundRobin},
		{StrategyWeighted, StrategyWeighted},
		{"bogus", StrategyFastest},
		{"", StrategyFastest},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, NewEndpointSelector(tt.input).GetStrategy())
	}
}

func TestSelectEndpoint_Empty(t *testing.T) {
	assert.Nil(t, NewEndpointSelector(StrategyFastest).SelectEndpoint(nil))
}

func TestSelectFastest(t *testing.T) {
	selector := NewEndpointSelector(StrategyFastest)

	slow := endpointWithLatency("http://slow", 900*time.Millisecond)
	fast := endpointWithLatency("http://fast", 120*time.Millisecond)
	unknown := endpointWithLatency("http://unknown", 0)

	for i := 0; i < 5; i++ {
		assert.Equal(t, fast, selector.SelectEndpoint([]*Endpoint{slow, unknown, fast}))
	}

	// nothing measured: falls back to rotating
	a := endpointWithLatency("http://a", 0)
	b := endpointWithLatency("http://b", 0)
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		seen[selector.SelectEndpoint([]*Endpoint{a, b}).URL] = true
	}
	assert.Len(t, seen, 2)
}

func TestSelectRoundRobin(t *testing.T) {
	selector := NewEndpointSelector(StrategyRoundRobin)
	endpoints := []*Endpoint{NewEndpoint("http://1"), NewEndpoint("http://2"), NewEndpoint("http://3")}

	counts := map[string]int{}
	for i := 0; i < 9; i++ {
		counts[selector.SelectEndpoint(endpoints).URL]++
	}
	for _, ep := range endpoints {
		assert.Equal(t, 3, counts[ep.URL])
	}

	single := []*Endpoint{NewEndpoint("http://only")}
	assert.Equal(t, "http://only", selector.SelectEndpoint(single).URL)
}

func TestSelectWeighted(t *testing.T) {
	selector := NewEndpointSelector(StrategyWeighted)

	good := NewEndpoint("http://good")
	dead := NewEndpoint("http://dead")
	dead.Metrics.HealthScore = 0

	for i := 0; i < 20; i++ {
		assert.Equal(t, good, selector.SelectEndpoint([]*Endpoint{dead, good}))
	}

	// all zero falls back to round robin
	a := NewEndpoint("http://a")
	a.Metrics.HealthScore = 0
	b := NewEndpoint("http://b")
	b.Metrics.HealthScore = 0
	assert.NotNil(t, selector.SelectEndpoint([]*Endpoint{a, b}))
}
