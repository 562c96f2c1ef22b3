package rpcpool

import (
	"context"
	"time"
)

// Probe is the result of one round trip to an endpoint.
type Probe struct {
	Latency         time.Duration
	LatestHeight    int64
	LatestBlockTime time.Time
}

// Client is a connection to a single RPC endpoint that the pool can probe.
type Client interface {
	// Probe performs a status round trip and reports the chain head seen by the endpoint.
	Probe(ctx context.Context) (Probe, error)

	// Close closes the client connection
	Close() error
}

// ClientFactory dials an endpoint URL.
type ClientFactory func(ctx context.Context, url string) (Client, error)

// ProbeObserver is notified after every probe, successful or not.
type ProbeObserver func(url string, latency time.Duration, err error)
