package network

import (
	"context"
	"slices"
	"sync"
	"time"

	errorsmod "cosmossdk.io/errors"
	"github.com/cosmos/cosmos-sdk/client"
	"github.com/cosmos/cosmos-sdk/codec"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/nami-protocol/nami-client/namiClient/config"
	"github.com/nami-protocol/nami-client/namiClient/constant"
	nerrors "github.com/nami-protocol/nami-client/namiClient/errors"
	"github.com/nami-protocol/nami-client/namiClient/rpcpool"
)

// averageBlockWindow is the number of blocks the average block time is measured over.
const averageBlockWindow = 1000

// Preferences persists small values between runs.
type Preferences interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer replaces the CometBFT HTTP dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dial = d }
}

// WithProbeObserver is called after every endpoint probe of every network.
func WithProbeObserver(fn rpcpool.ProbeObserver) Option {
	return func(m *Manager) { m.observer = fn }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager holds the live connection to the selected network. It chooses the
// endpoint (pinned or fastest), swaps it on request and tells subscribers
// about every change.
type Manager struct {
	cfg      config.Config
	prefs    Preferences
	logger   zerolog.Logger
	dial     Dialer
	observer rpcpool.ProbeObserver
	now      func() time.Time

	mu        sync.RWMutex
	network   string
	netCfg    config.NetworkConfig
	pool      *rpcpool.Manager
	live      *Conn
	grpcConn  *grpc.ClientConn
	encoding  EncodingConfig
	preferred string
	encodings map[string]EncodingConfig

	listenersMu sync.RWMutex
	listeners   map[int]func(Event)
	nextID      int

	monitorMu     sync.Mutex
	monitorCtx    context.Context
	monitorCancel context.CancelFunc
}

// NewManager creates a Manager. Nothing is dialed until Start.
func NewManager(cfg config.Config, prefs Preferences, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		cfg:       cfg,
		prefs:     prefs,
		logger:    logger.With().Str("component", "network").Logger(),
		dial:      DialComet,
		now:       time.Now,
		network:   cfg.DefaultNetwork,
		encodings: make(map[string]EncodingConfig),
		listeners: make(map[int]func(Event)),
	}
	for _, opt := range opts {
		opt(m)
	}

	prefix := cfg.Networks[cfg.DefaultNetwork].Bech32Prefix
	enc, err := m.encodingFor(prefix)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to build encoding config")
	}
	m.encoding = enc
	return m
}

// Start connects to the stored network, or the default one. A pinned RPC is
// used as is; otherwise every RPC of the network is raced.
func (m *Manager) Start(ctx context.Context) error {
	network := m.cfg.DefaultNetwork
	if stored, ok := m.pref(constant.PrefNetwork); ok {
		if _, known := m.cfg.Networks[stored]; known {
			network = stored
		} else {
			m.logger.Warn().Str("network", stored).Msg("stored network is not configured, using default")
		}
	}

	preferred, _ := m.pref(constant.PrefRPC)
	m.mu.Lock()
	m.preferred = preferred
	m.mu.Unlock()

	return m.connect(ctx, network, preferred, false)
}

// SetNetwork switches to another chain ID and reconnects. Latency records of
// the previous network are dropped. A pinned RPC survives only if the new
// network lists it. Selecting the current network again keeps the pin, which
// may be a custom URL.
func (m *Manager) SetNetwork(ctx context.Context, network string) error {
	netCfg, ok := m.cfg.Networks[network]
	if !ok {
		return errorsmod.Wrap(nerrors.ErrUnknownNetwork, network)
	}
	same := network == m.Network()
	if err := m.setPref(constant.PrefNetwork, network); err != nil {
		return err
	}

	preferred := m.Preferred()
	if preferred != "" && !same && !slices.Contains(netCfg.RPCURLs, preferred) {
		m.logger.Info().Str("rpc", preferred).Str("network", network).Msg("pinned rpc does not serve the new network, unpinning")
		if err := m.Unlock(); err != nil {
			return err
		}
		preferred = ""
	}

	return m.connect(ctx, network, preferred, true)
}

// connect selects an endpoint of network. fresh discards the current pool
// and with it every latency record.
func (m *Manager) connect(ctx context.Context, network, preferred string, fresh bool) error {
	netCfg, ok := m.cfg.Networks[network]
	if !ok {
		return errorsmod.Wrap(nerrors.ErrUnknownNetwork, network)
	}
	encoding, err := m.encodingFor(netCfg.Bech32Prefix)
	if err != nil {
		return err
	}

	m.mu.RLock()
	pool := m.pool
	oldNetwork := m.network
	m.mu.RUnlock()

	if fresh || pool == nil || pool.Network() != network {
		pool = rpcpool.NewManager(network, netCfg.RPCURLs, m.cfg.RPCPoolConfig, m.clientFactory, m.logger)
		if pool == nil {
			return errorsmod.Wrapf(nerrors.ErrNoConnection, "network %s has no rpc urls", network)
		}
		if m.observer != nil {
			pool.SetProbeObserver(m.observer)
		}
	}

	var ep *rpcpool.Endpoint
	if preferred != "" {
		ep, err = pool.Connect(ctx, preferred)
	} else {
		ep, err = pool.Race(ctx)
	}

	var grpcConn *grpc.ClientConn
	if err == nil && len(netCfg.GRPCURLs) > 0 {
		grpcConn, err = CreateGRPCConnection(netCfg.GRPCURLs[0])
		if err != nil {
			m.logger.Warn().Err(err).Str("grpc", netCfg.GRPCURLs[0]).Msg("grpc unavailable, querying over rpc")
			grpcConn, err = nil, nil
		}
	}

	m.mu.Lock()
	oldPool, oldGRPC := m.pool, m.grpcConn
	m.network = network
	m.netCfg = netCfg
	m.encoding = encoding
	m.pool = pool
	m.grpcConn = grpcConn
	if err != nil {
		m.live = nil
	} else {
		m.live = ep.GetClient().(*Conn)
	}
	m.mu.Unlock()

	if oldPool != nil && oldPool != pool {
		// in-flight probes of the old pool finish within the request timeout
		go oldPool.Stop()
	}
	if oldGRPC != nil {
		_ = oldGRPC.Close()
	}
	if oldPool != pool && m.monitoring() {
		m.startMonitor()
	}

	if network != oldNetwork {
		m.emit(Event{Type: NetworkChanged, Network: network})
	}

	if err != nil {
		m.logger.Error().Err(err).Str("network", network).Msg("no rpc connection available")
		m.emit(Event{Type: ConnectionLost, Network: network, Err: err})
		return errorsmod.Wrapf(nerrors.ErrNoConnection, "%s: %s", network, err)
	}

	m.logger.Info().Str("network", network).Str("rpc", ep.URL).Dur("latency", ep.GetLatency()).Msg("connected")
	m.emit(Event{Type: ConnectionChanged, Network: network, Endpoint: ep.URL})
	return nil
}

// SetRPC connects to url and makes it the live endpoint. On failure the
// current connection is kept.
func (m *Manager) SetRPC(ctx context.Context, url string) error {
	m.mu.RLock()
	pool, network := m.pool, m.network
	m.mu.RUnlock()
	if pool == nil {
		return errorsmod.Wrap(nerrors.ErrNoConnection, "manager not started")
	}

	ep, err := pool.Connect(ctx, url)
	if err != nil {
		m.logger.Error().Err(err).Str("rpc", url).Msg("failed to switch rpc")
		return nerrors.NewRPCError(network, "failed to switch rpc", err)
	}

	m.mu.Lock()
	m.live = ep.GetClient().(*Conn)
	m.mu.Unlock()

	m.logger.Info().Str("rpc", url).Dur("latency", ep.GetLatency()).Msg("rpc switched")
	m.emit(Event{Type: ConnectionChanged, Network: network, Endpoint: url})
	return nil
}

// Lock pins the live endpoint so it is used on every following start.
func (m *Manager) Lock() error {
	m.mu.Lock()
	if m.live == nil {
		m.mu.Unlock()
		return nerrors.ErrNoConnection
	}
	url := m.live.URL
	m.preferred = url
	m.mu.Unlock()
	return m.setPref(constant.PrefRPC, url)
}

// Unlock removes the pinned endpoint.
func (m *Manager) Unlock() error {
	m.mu.Lock()
	m.preferred = ""
	m.mu.Unlock()
	if m.prefs == nil {
		return nil
	}
	if err := m.prefs.Delete(constant.PrefRPC); err != nil {
		return errorsmod.Wrap(err, "failed to clear pinned rpc")
	}
	return nil
}

// Preferred returns the pinned endpoint, or "".
func (m *Manager) Preferred() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preferred
}

// Network returns the selected chain ID.
func (m *Manager) Network() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.network
}

// ChainID is Network.
func (m *Manager) ChainID() string {
	return m.Network()
}

// NetworkConfig returns the configuration of the selected network.
func (m *Manager) NetworkConfig() config.NetworkConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.netCfg
}

// RPC returns the URL of the live endpoint, or "" when disconnected.
func (m *Manager) RPC() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live == nil {
		return ""
	}
	return m.live.URL
}

// RPCs returns the endpoints of the current network with their last
// measured latency, fastest first.
func (m *Manager) RPCs() []rpcpool.EndpointRecord {
	m.mu.RLock()
	pool := m.pool
	m.mu.RUnlock()
	if pool == nil {
		return nil
	}
	return pool.Records()
}

// WaitRPCs waits for the race probes still in flight, bounded by the request
// timeout, so RPCs reports every endpoint that answers in time.
func (m *Manager) WaitRPCs(ctx context.Context) error {
	pool := m.Pool()
	if pool == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.RPCPoolConfig.RequestTimeout())
	defer cancel()
	return pool.Wait(ctx)
}

// Pool exposes the endpoint pool of the current network.
func (m *Manager) Pool() *rpcpool.Manager {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pool
}

// Connected reports whether a live endpoint is available.
func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.live != nil
}

// Conn returns the live connection or ErrNoConnection.
func (m *Manager) Conn() (*Conn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live == nil {
		return nil, errorsmod.Wrap(nerrors.ErrNoConnection, m.network)
	}
	return m.live, nil
}

// ClientContext returns a client.Context bound to the live connection.
func (m *Manager) ClientContext() (client.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.live == nil {
		return client.Context{}, errorsmod.Wrap(nerrors.ErrNoConnection, m.network)
	}
	clientCtx := client.Context{}.
		WithClient(m.live.RPC).
		WithNodeURI(m.live.URL).
		WithChainID(m.network).
		WithInterfaceRegistry(m.encoding.InterfaceRegistry).
		WithCodec(m.encoding.Codec).
		WithTxConfig(m.encoding.TxConfig).
		WithLegacyAmino(m.encoding.Amino).
		WithAccountRetriever(authAccountRetriever)
	if m.grpcConn != nil {
		clientCtx = clientCtx.WithGRPCClient(m.grpcConn)
	}
	return clientCtx, nil
}

// Query returns a Querier over the live connection.
func (m *Manager) Query() (Querier, error) {
	clientCtx, err := m.ClientContext()
	if err != nil {
		return nil, err
	}
	return newQuerier(clientCtx), nil
}

// TxConfig returns the transaction encoding of the selected network.
func (m *Manager) TxConfig() client.TxConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.encoding.TxConfig
}

// Codec returns the proto codec of the selected network.
func (m *Manager) Codec() codec.Codec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.encoding.Codec
}

// ChainInfo describes the selected network for wallets.
func (m *Manager) ChainInfo() (ChainInfo, error) {
	return NewChainInfo(m.Network(), m.NetworkConfig(), m.cfg, m.RPC())
}

// ExplorerTxURL links to a transaction on the network's explorer.
func (m *Manager) ExplorerTxURL(hash string) string {
	explorer := m.NetworkConfig().ExplorerURL
	if explorer == "" || hash == "" {
		return ""
	}
	return explorer + "/tx/" + hash
}

// Subscribe registers fn for connection events and returns a function that
// removes it. Events are delivered synchronously.
func (m *Manager) Subscribe(fn func(Event)) func() {
	m.listenersMu.Lock()
	defer m.listenersMu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	return func() {
		m.listenersMu.Lock()
		defer m.listenersMu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *Manager) emit(ev Event) {
	m.listenersMu.RLock()
	fns := make([]func(Event), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.listenersMu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// StartHealthMonitor keeps probing the endpoints of the current network.
// When the live endpoint gets excluded and no endpoint is pinned, the
// connection fails over to the best remaining endpoint.
func (m *Manager) StartHealthMonitor(ctx context.Context) {
	m.monitorMu.Lock()
	m.monitorCtx = ctx
	m.monitorMu.Unlock()
	m.startMonitor()
}

func (m *Manager) monitoring() bool {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	return m.monitorCtx != nil
}

func (m *Manager) startMonitor() {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()
	if m.monitorCtx == nil || m.monitorCtx.Err() != nil {
		return
	}
	if m.monitorCancel != nil {
		m.monitorCancel()
	}

	pool := m.Pool()
	if pool == nil {
		return
	}
	ctx, cancel := context.WithCancel(m.monitorCtx)
	m.monitorCancel = cancel
	pool.HealthMonitor.OnRoundComplete(func() { m.failover(pool) })
	pool.StartHealthMonitor(ctx)
}

func (m *Manager) failover(pool *rpcpool.Manager) {
	m.mu.RLock()
	current, live, preferred, network := m.pool, m.live, m.preferred, m.network
	m.mu.RUnlock()
	if current != pool || preferred != "" {
		return
	}
	if live != nil {
		if ep := pool.Endpoint(live.URL); ep != nil && ep.IsHealthy() {
			return
		}
	}

	liveURL := ""
	if live != nil {
		liveURL = live.URL
	}
	ep, err := pool.SelectEndpointExcept(liveURL)
	if err != nil {
		m.logger.Warn().Err(err).Msg("no endpoint to fail over to")
		return
	}

	m.mu.Lock()
	if m.pool != pool {
		m.mu.Unlock()
		return
	}
	m.live = ep.GetClient().(*Conn)
	m.mu.Unlock()

	m.logger.Warn().Str("from", liveURL).Str("to", ep.URL).Msg("failed over to another rpc")
	m.emit(Event{Type: ConnectionChanged, Network: network, Endpoint: ep.URL})
}

// Close stops monitoring and closes every connection.
func (m *Manager) Close() error {
	m.monitorMu.Lock()
	if m.monitorCancel != nil {
		m.monitorCancel()
	}
	m.monitorCtx = nil
	m.monitorMu.Unlock()

	m.mu.Lock()
	pool, grpcConn := m.pool, m.grpcConn
	m.pool, m.grpcConn, m.live = nil, nil, nil
	m.mu.Unlock()

	if pool != nil {
		pool.Stop()
	}
	if grpcConn != nil {
		return grpcConn.Close()
	}
	return nil
}

func (m *Manager) clientFactory(ctx context.Context, url string) (rpcpool.Client, error) {
	conn, err := m.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) encodingFor(prefix string) (EncodingConfig, error) {
	if prefix == "" {
		prefix = constant.Bech32Prefix
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if enc, ok := m.encodings[prefix]; ok {
		return enc, nil
	}
	enc, err := MakeEncodingConfig(prefix)
	if err != nil {
		return EncodingConfig{}, err
	}
	m.encodings[prefix] = enc
	return enc, nil
}

func (m *Manager) pref(key string) (string, bool) {
	if m.prefs == nil {
		return "", false
	}
	v, ok, err := m.prefs.Get(key)
	if err != nil {
		m.logger.Warn().Err(err).Str("key", key).Msg("failed to read preference")
		return "", false
	}
	return v, ok && v != ""
}

func (m *Manager) setPref(key, value string) error {
	if m.prefs == nil {
		return nil
	}
	if err := m.prefs.Set(key, value); err != nil {
		return errorsmod.Wrapf(err, "failed to store %s", key)
	}
	return nil
}
