package config

import (
	"fmt"
	"time"
)

// KeyringBackend represents the type of keyring backend to use
type KeyringBackend string

const (
	// KeyringBackendTest is the test Cosmos keyring backend (unencrypted)
	KeyringBackendTest KeyringBackend = "test"

	// KeyringBackendFile is the file Cosmos keyring backend (encrypted)
	KeyringBackendFile KeyringBackend = "file"

	// KeyringBackendOS uses the operating system credential store
	KeyringBackendOS KeyringBackend = "os"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Client home directory (default: ~/.namiclient)

	// Networks
	DefaultNetwork string                   `json:"default_network"` // Chain ID used when nothing is persisted (default: harpoon-4)
	Networks       map[string]NetworkConfig `json:"networks"`        // Map of chain ID to network settings

	RPCPoolConfig   RPCPoolConfig   `json:"rpc_pool_config"`
	BroadcastConfig BroadcastConfig `json:"broadcast_config"`
	GasConfig       GasConfig       `json:"gas_config"`

	// Keyring configuration
	KeyringBackend  KeyringBackend `json:"keyring_backend"`  // Keyring backend type (file/test/os)
	KeyringPassword string         `json:"keyring_password"` // Password for file backend keyring encryption
	KeyName         string         `json:"key_name"`         // Key used by the keyring wallet adapter

	PairingConfig PairingConfig `json:"pairing_config"`

	// Wallet
	ReadOnlyAddress string `json:"read_only_address"` // Address watched by the read-only adapter
	FeeDenom        string `json:"fee_denom"`         // Default fee denom (default: ukuji)
	TokenDecimals   int    `json:"token_decimals"`    // Display decimals for amounts (default: 6)

	// Transaction flow denoms
	DepositDenoms  []DenomOption `json:"deposit_denoms"`
	WithdrawDenoms []DenomOption `json:"withdraw_denoms"`

	// Query Server Config
	QueryServerPort int `json:"query_server_port"` // Port for HTTP status server (default: 8080)
}

// NetworkConfig holds everything needed to talk to one Kujira network.
type NetworkConfig struct {
	ChainName     string   `json:"chain_name"`
	RPCURLs       []string `json:"rpc_urls"`
	GRPCURLs      []string `json:"grpc_urls,omitempty"` // optional; queries go over ABCI when empty
	ExplorerURL   string   `json:"explorer_url"`
	VaultContract string   `json:"vault_contract"`
	Bech32Prefix  string   `json:"bech32_prefix"`
	GasPrices     string   `json:"gas_prices"` // e.g. "0.00119ukuji,0.0015factory/.../uusk"
}

// RPCPoolConfig controls endpoint health tracking and selection.
type RPCPoolConfig struct {
	HealthCheckIntervalSeconds int    `json:"health_check_interval_seconds"`
	UnhealthyThreshold         int    `json:"unhealthy_threshold"`
	RecoveryIntervalSeconds    int    `json:"recovery_interval_seconds"`
	MinHealthyEndpoints        int    `json:"min_healthy_endpoints"`
	RequestTimeoutSeconds      int    `json:"request_timeout_seconds"`
	LoadBalancingStrategy      string `json:"load_balancing_strategy"` // fastest, round-robin or weighted
}

func (c RPCPoolConfig) HealthCheckInterval() time.Duration {
	return time.Duration(c.HealthCheckIntervalSeconds) * time.Second
}

func (c RPCPoolConfig) RecoveryInterval() time.Duration {
	return time.Duration(c.RecoveryIntervalSeconds) * time.Second
}

func (c RPCPoolConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// BroadcastConfig controls how long a broadcast waits for block inclusion.
type BroadcastConfig struct {
	TimeoutSeconds      int `json:"timeout_seconds"`
	PollIntervalSeconds int `json:"poll_interval_seconds"`
}

func (c BroadcastConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BroadcastConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// GasConfig controls gas estimation for locally signed transactions.
type GasConfig struct {
	Adjustment   float64 `json:"adjustment"`
	DefaultLimit uint64  `json:"default_limit"`
	Simulate     bool    `json:"simulate"`
}

// PairingConfig configures the remote-pairing wallet adapter.
type PairingConfig struct {
	RelayURL               string `json:"relay_url"`
	ApprovalTimeoutSeconds int    `json:"approval_timeout_seconds"`
	RequestTimeoutSeconds  int    `json:"request_timeout_seconds"`
	SessionTTLSeconds      int    `json:"session_ttl_seconds"`
	ListenPort             int    `json:"listen_port"` // port used by `namid pairing relay`
}

func (c PairingConfig) ApprovalTimeout() time.Duration {
	return time.Duration(c.ApprovalTimeoutSeconds) * time.Second
}

func (c PairingConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c PairingConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

// DenomOption is a selectable token in the deposit or withdraw form.
type DenomOption struct {
	Name     string `json:"name"`
	Denom    string `json:"denom"`
	Disabled bool   `json:"disabled,omitempty"`
}

// GetNetwork returns the configuration for a chain ID.
func (c *Config) GetNetwork(chainID string) (NetworkConfig, error) {
	if c.Networks == nil {
		return NetworkConfig{}, fmt.Errorf("no networks configured")
	}
	n, ok := c.Networks[chainID]
	if !ok {
		return NetworkConfig{}, fmt.Errorf("no config found for network %s", chainID)
	}
	return n, nil
}
