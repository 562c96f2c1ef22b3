// Package metrics holds the client's prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nami-protocol/nami-client/namiClient/network"
	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
	"github.com/nami-protocol/nami-client/namiClient/transaction"
	"github.com/nami-protocol/nami-client/namiClient/wallet"
)

const namespace = "nami"

// Metrics owns a registry so several clients can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	EndpointLatency   *prometheus.GaugeVec
	EndpointFailures  *prometheus.CounterVec
	WalletConnections *prometheus.CounterVec
	TxSubmissions     *prometheus.CounterVec
	BlockHeight       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		EndpointLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_endpoint_latency_ms",
			Help:      "Latency of the last successful probe of an RPC endpoint.",
		}, []string{"network", "endpoint"}),
		EndpointFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_endpoint_failures_total",
			Help:      "Failed probes per RPC endpoint.",
		}, []string{"network", "endpoint"}),
		WalletConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_connections_total",
			Help:      "Wallet connection attempts by adapter and result.",
		}, []string{"adapter", "result"}),
		TxSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_submissions_total",
			Help:      "Vault transactions by kind and final state.",
		}, []string{"kind", "result"}),
		BlockHeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_block_height",
			Help:      "Latest block height seen on the live endpoint.",
		}, []string{"network"}),
	}
	m.registry.MustRegister(
		m.EndpointLatency,
		m.EndpointFailures,
		m.WalletConnections,
		m.TxSubmissions,
		m.BlockHeight,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for gathering in tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ProbeObserver records endpoint probes of the named network.
func (m *Metrics) ProbeObserver(networkName func() string) rpcpool.ProbeObserver {
	return func(url string, latency time.Duration, err error) {
		if err != nil {
			m.EndpointFailures.WithLabelValues(networkName(), url).Inc()
			return
		}
		m.EndpointLatency.WithLabelValues(networkName(), url).Set(float64(latency.Milliseconds()))
	}
}

// ConnectObserver counts wallet connection attempts.
func (m *Metrics) ConnectObserver(kind wallet.Kind, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.WalletConnections.WithLabelValues(string(kind), result).Inc()
}

// TxObserver counts finished vault transactions.
func (m *Metrics) TxObserver(kind transaction.Kind, state transaction.State) {
	m.TxSubmissions.WithLabelValues(string(kind), string(state)).Inc()
}

// ObserveBlock records the latest height seen for network.
func (m *Metrics) ObserveBlock(networkName string, status network.BlockStatus) {
	m.BlockHeight.WithLabelValues(networkName).Set(float64(status.Height))
}
