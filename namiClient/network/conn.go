package network

import (
	"context"
	"fmt"
	"strings"
	"time"

	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	"github.com/cosmos/cosmos-sdk/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
)

// Conn is a live connection to one CometBFT RPC endpoint.
type Conn struct {
	URL string
	RPC client.CometRPC
}

// Dialer opens a connection to an RPC endpoint.
type Dialer func(ctx context.Context, url string) (*Conn, error)

// DialComet creates an HTTP CometBFT client for url. The client is lazy, so
// reachability is only known after the first Probe.
func DialComet(_ context.Context, url string) (*Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("empty endpoint provided")
	}
	rpc, err := cmthttp.New(url, "/websocket")
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc client for %s: %w", url, err)
	}
	return &Conn{URL: url, RPC: rpc}, nil
}

// Probe fetches the node status and reports its round trip and chain head.
func (c *Conn) Probe(ctx context.Context) (rpcpool.Probe, error) {
	start := time.Now()
	status, err := c.RPC.Status(ctx)
	if err != nil {
		return rpcpool.Probe{}, err
	}
	return rpcpool.Probe{
		Latency:         time.Since(start),
		LatestHeight:    status.SyncInfo.LatestBlockHeight,
		LatestBlockTime: status.SyncInfo.LatestBlockTime,
	}, nil
}

// Close stops the websocket side of the client if it was ever started.
func (c *Conn) Close() error {
	if svc, ok := c.RPC.(interface {
		IsRunning() bool
		Stop() error
	}); ok && svc.IsRunning() {
		return svc.Stop()
	}
	return nil
}

// CreateGRPCConnection creates a gRPC connection with appropriate transport security.
// https:// endpoints use TLS, anything else is dialed insecure. Port 9090 is
// added when the endpoint carries none.
func CreateGRPCConnection(endpoint string) (*grpc.ClientConn, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("empty endpoint provided")
	}

	processedEndpoint := endpoint
	useTLS := false

	if strings.HasPrefix(endpoint, "https://") {
		processedEndpoint = strings.TrimPrefix(endpoint, "https://")
		useTLS = true
	} else if strings.HasPrefix(endpoint, "http://") {
		processedEndpoint = strings.TrimPrefix(endpoint, "http://")
	}
	processedEndpoint = strings.TrimSuffix(processedEndpoint, "/")

	if !strings.Contains(processedEndpoint, ":") {
		processedEndpoint += ":9090"
	} else if strings.HasSuffix(processedEndpoint, ":") {
		processedEndpoint += "9090"
	}

	var opts []grpc.DialOption
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(processedEndpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to %s: %w", processedEndpoint, err)
	}
	return conn, nil
}
