package rpcpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nami-protocol/nami-client/namiClient/config"
)

func testPoolConfig() config.RPCPoolConfig {
	return config.RPCPoolConfig{
		HealthCheckIntervalSeconds: 30,
		UnhealthyThreshold:         3,
		RecoveryIntervalSeconds:    0,
		MinHealthyEndpoints:        1,
		RequestTimeoutSeconds:      2,
		LoadBalancingStrategy:      "fastest",
	}
}

// mockFactory serves the given clients by URL; unknown URLs fail to dial.
func mockFactory(clients map[string]*mockClient) ClientFactory {
	return func(ctx context.Context, url string) (Client, error) {
		c, ok := clients[url]
		if !ok {
			return nil, errors.New("dial failed")
		}
		return c, nil
	}
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name          string
		urls          []string
		expectedNil   bool
		expectedCount int
	}{
		{
			name:          "valid configuration",
			urls:          []string{"http://test1.com", "http://test2.com"},
			expectedCount: 2,
		},
		{
			name:          "duplicates and blanks dropped",
			urls:          []string{"http://test1.com", "", "http://test1.com"},
			expectedCount: 1,
		},
		{
			name:        "empty URLs returns nil",
			urls:        []string{},
			expectedNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager("harpoon-4", tt.urls, testPoolConfig(), mockFactory(nil), zerolog.Nop())

			if tt.expectedNil {
				assert.Nil(t, manager)
				return
			}
			require.NotNil(t, manager)
			assert.Equal(t, "harpoon-4", manager.Network())
			assert.Len(t, manager.GetEndpoints(), tt.expectedCount)
			assert.NotNil(t, manager.HealthMonitor)
		})
	}
}

func TestManager_RaceFirstResponderWins(t *testing.T) {
	clients := map[string]*mockClient{
		"http://slow": {delay: 150 * time.Millisecond, height: 10},
		"http://fast": {delay: 5 * time.Millisecond, height: 11},
	}
	manager := NewManager("harpoon-4", []string{"http://slow", "http://fast", "http://broken"},
		testPoolConfig(), mockFactory(clients), zerolog.Nop())
	require.NotNil(t, manager)

	winner, err := manager.Race(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://fast", winner.URL)
	assert.Greater(t, winner.GetLatency(), time.Duration(0))
	assert.Equal(t, int64(11), winner.Record().LatestHeight)

	// the loser still reports its latency once it answers
	require.Eventually(t, func() bool {
		return manager.Endpoint("http://slow").GetLatency() > 0
	}, time.Second, 10*time.Millisecond)

	manager.Stop()

	assert.Equal(t, StateUnhealthy, manager.Endpoint("http://broken").GetState())
	assert.True(t, clients["http://slow"].closed.Load())
	assert.True(t, clients["http://fast"].closed.Load())

	records := manager.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "http://fast", records[0].URL)
	assert.Equal(t, "http://slow", records[1].URL)
	assert.Equal(t, "http://broken", records[2].URL)
	assert.Zero(t, records[2].LatencyMs)
	assert.Empty(t, records[2].Status)
}

func TestManager_RaceLosersOutliveCallerContext(t *testing.T) {
	clients := map[string]*mockClient{
		"http://slow": {delay: 150 * time.Millisecond, height: 10},
		"http://fast": {delay: 5 * time.Millisecond, height: 11},
	}
	manager := NewManager("harpoon-4", []string{"http://slow", "http://fast"},
		testPoolConfig(), mockFactory(clients), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	winner, err := manager.Race(ctx)
	cancel()
	require.NoError(t, err)
	assert.Equal(t, "http://fast", winner.URL)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, manager.Wait(waitCtx))

	slow := manager.Endpoint("http://slow")
	assert.Greater(t, slow.GetLatency(), time.Duration(0))
	assert.NotEqual(t, StateUnhealthy, slow.GetState())

	fallback, err := manager.SelectEndpointExcept("http://fast")
	require.NoError(t, err)
	assert.Equal(t, "http://slow", fallback.URL)
}

func TestManager_WaitBoundedByContext(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://fast", "http://hang"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://fast": {}, "http://hang": {delay: time.Hour}}), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	_, err := manager.Race(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, manager.Wait(ctx), context.DeadlineExceeded)
}

func TestManager_RaceAllFail(t *testing.T) {
	failing := &mockClient{}
	failing.shouldFail.Store(true)

	manager := NewManager("harpoon-4", []string{"http://a", "http://b"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://a": failing}), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	_, err := manager.Race(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 endpoints failed")
	assert.Contains(t, err.Error(), "http://a")
	assert.Contains(t, err.Error(), "dial failed")
}

func TestManager_RaceLosersBoundedByTimeout(t *testing.T) {
	cfg := testPoolConfig()
	cfg.RequestTimeoutSeconds = 1

	hanging := &mockClient{delay: time.Hour}
	manager := NewManager("harpoon-4", []string{"http://fast", "http://hang"}, cfg,
		mockFactory(map[string]*mockClient{"http://fast": {}, "http://hang": hanging}), zerolog.Nop())
	require.NotNil(t, manager)

	winner, err := manager.Race(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://fast", winner.URL)

	done := make(chan struct{})
	go func() {
		manager.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("stop did not return; hanging probe was not bounded")
	}
	assert.Equal(t, StateUnhealthy, manager.Endpoint("http://hang").GetState())
}

func TestManager_RaceContextCancelled(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://hang"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://hang": {delay: time.Hour}}), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := manager.Race(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_ConnectCustomURL(t *testing.T) {
	clients := map[string]*mockClient{"http://custom": {height: 7}}
	manager := NewManager("harpoon-4", []string{"http://listed"}, testPoolConfig(),
		mockFactory(clients), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	ep, err := manager.Connect(context.Background(), "http://custom")
	require.NoError(t, err)
	assert.Equal(t, "http://custom", ep.URL)
	assert.Len(t, manager.GetEndpoints(), 2)

	// connecting again reuses the endpoint
	_, err = manager.Connect(context.Background(), "http://custom")
	require.NoError(t, err)
	assert.Len(t, manager.GetEndpoints(), 2)

	_, err = manager.Connect(context.Background(), "http://nowhere")
	assert.Error(t, err)

	_, err = manager.Connect(context.Background(), "")
	assert.Error(t, err)
}

func TestManager_SelectEndpoint(t *testing.T) {
	clients := map[string]*mockClient{
		"http://a": {delay: 30 * time.Millisecond},
		"http://b": {},
	}
	manager := NewManager("harpoon-4", []string{"http://a", "http://b"}, testPoolConfig(),
		mockFactory(clients), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	_, err := manager.SelectEndpoint()
	assert.Error(t, err, "no endpoint has been dialed yet")

	_, err = manager.Connect(context.Background(), "http://a")
	require.NoError(t, err)
	_, err = manager.Connect(context.Background(), "http://b")
	require.NoError(t, err)

	ep, err := manager.SelectEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "http://b", ep.URL)

	ep, err = manager.SelectEndpointExcept("http://b")
	require.NoError(t, err)
	assert.Equal(t, "http://a", ep.URL)

	manager.Endpoint("http://a").UpdateState(StateExcluded)
	_, err = manager.SelectEndpointExcept("http://b")
	assert.Error(t, err)
}

func TestManager_UpdateEndpointMetrics(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://a"}, testPoolConfig(), mockFactory(nil), zerolog.Nop())
	require.NotNil(t, manager)
	ep := manager.Endpoint("http://a")

	manager.UpdateEndpointMetrics(ep, false, 0, errors.New("boom"))
	assert.Equal(t, StateDegraded, ep.GetState())

	manager.UpdateEndpointMetrics(ep, false, 0, errors.New("boom"))
	manager.UpdateEndpointMetrics(ep, false, 0, errors.New("boom"))
	assert.Equal(t, StateExcluded, ep.GetState())

	ep.UpdateState(StateUnhealthy)
	manager.UpdateEndpointMetrics(ep, true, time.Millisecond, nil)
	assert.Equal(t, StateDegraded, ep.GetState())

	for i := 0; i < 20; i++ {
		manager.UpdateEndpointMetrics(ep, true, time.Millisecond, nil)
	}
	assert.Equal(t, StateHealthy, ep.GetState())
}

func TestManager_ProbeObserver(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://a"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://a": {}}), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	var mu sync.Mutex
	var seen []string
	manager.SetProbeObserver(func(url string, latency time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.NoError(t, err)
		seen = append(seen, url)
	})

	_, err := manager.Connect(context.Background(), "http://a")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"http://a"}, seen)
}

func TestHealthMonitor_ChecksAndRecovery(t *testing.T) {
	flaky := &mockClient{}
	manager := NewManager("harpoon-4", []string{"http://flaky"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://flaky": flaky}), zerolog.Nop())
	require.NotNil(t, manager)
	defer manager.Stop()

	rounds := 0
	manager.HealthMonitor.OnRoundComplete(func() { rounds++ })

	ctx := context.Background()
	flaky.shouldFail.Store(true)
	for i := 0; i < 3; i++ {
		manager.HealthMonitor.PerformHealthChecks(ctx)
	}
	assert.Equal(t, 3, rounds)
	ep := manager.Endpoint("http://flaky")
	assert.Equal(t, StateExcluded, ep.GetState())

	status := manager.HealthMonitor.GetHealthStatus()
	assert.Equal(t, 1, status.ExcludedCount)
	assert.NotEmpty(t, status.Endpoints[0].LastError)

	// recovery interval is zero in tests, so the next round retries it
	flaky.shouldFail.Store(false)
	manager.HealthMonitor.PerformHealthChecks(ctx)
	assert.Equal(t, StateDegraded, ep.GetState())
	assert.Equal(t, 70.0, ep.GetMetrics().GetHealthScore())
}

func TestHealthMonitor_ForceExcludeAndRecover(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://a"}, testPoolConfig(), mockFactory(nil), zerolog.Nop())
	require.NotNil(t, manager)

	require.NoError(t, manager.HealthMonitor.ForceExcludeEndpoint("http://a"))
	assert.Equal(t, StateExcluded, manager.Endpoint("http://a").GetState())
	assert.Error(t, manager.HealthMonitor.ForceExcludeEndpoint("http://missing"))

	require.NoError(t, manager.HealthMonitor.ForceRecoverEndpoint("http://a"))
	assert.Equal(t, StateDegraded, manager.Endpoint("http://a").GetState())
	assert.Error(t, manager.HealthMonitor.ForceRecoverEndpoint("http://a"))
}

func TestHealthMonitor_StartStop(t *testing.T) {
	manager := NewManager("harpoon-4", []string{"http://a"}, testPoolConfig(),
		mockFactory(map[string]*mockClient{"http://a": {}}), zerolog.Nop())
	require.NotNil(t, manager)

	manager.StartHealthMonitor(context.Background())

	done := make(chan struct{})
	go func() {
		manager.Stop()
		manager.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stop blocked")
	}
}
