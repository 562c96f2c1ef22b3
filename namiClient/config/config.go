package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nami-protocol/nami-client/namiClient/constant"
)

// EnvPrefix is prepended to every environment override, e.g. NAMI_KEY_NAME.
const EnvPrefix = "NAMI"

//go:embed default_config.json
var defaultConfigJSON []byte

// envKeys are bound explicitly so overrides apply even when the file omits them.
var envKeys = []string{
	"log_level", "log_format", "log_sampler", "node_home",
	"default_network", "keyring_backend", "keyring_password", "key_name",
	"read_only_address", "fee_denom", "token_decimals", "query_server_port",
	"pairing_config.relay_url",
	"rpc_pool_config.load_balancing_strategy",
	"rpc_pool_config.request_timeout_seconds",
}

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Networks come from the embedded defaults when none are configured
	if len(cfg.Networks) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.Networks = defaultCfg.Networks
		} else {
			cfg.Networks = make(map[string]NetworkConfig)
		}
	}
	for id, n := range cfg.Networks {
		if len(n.RPCURLs) == 0 {
			return fmt.Errorf("network %s has no rpc_urls", id)
		}
		if n.Bech32Prefix == "" {
			n.Bech32Prefix = constant.Bech32Prefix
		}
		cfg.Networks[id] = n
	}

	if cfg.DefaultNetwork == "" {
		cfg.DefaultNetwork = constant.DefaultNetwork
	}
	if _, ok := cfg.Networks[cfg.DefaultNetwork]; !ok {
		return fmt.Errorf("default network %s is not configured", cfg.DefaultNetwork)
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	// Set defaults for RPC pool config
	if cfg.RPCPoolConfig.HealthCheckIntervalSeconds == 0 {
		cfg.RPCPoolConfig.HealthCheckIntervalSeconds = 30
	}
	if cfg.RPCPoolConfig.UnhealthyThreshold == 0 {
		cfg.RPCPoolConfig.UnhealthyThreshold = 3
	}
	if cfg.RPCPoolConfig.RecoveryIntervalSeconds == 0 {
		cfg.RPCPoolConfig.RecoveryIntervalSeconds = 300
	}
	if cfg.RPCPoolConfig.MinHealthyEndpoints == 0 {
		cfg.RPCPoolConfig.MinHealthyEndpoints = 1
	}
	if cfg.RPCPoolConfig.RequestTimeoutSeconds == 0 {
		cfg.RPCPoolConfig.RequestTimeoutSeconds = 10
	}
	if cfg.RPCPoolConfig.LoadBalancingStrategy == "" {
		cfg.RPCPoolConfig.LoadBalancingStrategy = "fastest"
	}

	// Validate load balancing strategy
	switch cfg.RPCPoolConfig.LoadBalancingStrategy {
	case "fastest", "round-robin", "weighted":
	default:
		return fmt.Errorf("load balancing strategy must be 'fastest', 'round-robin' or 'weighted'")
	}

	// Broadcast
	if cfg.BroadcastConfig.TimeoutSeconds == 0 {
		cfg.BroadcastConfig.TimeoutSeconds = 60
	}
	if cfg.BroadcastConfig.PollIntervalSeconds == 0 {
		cfg.BroadcastConfig.PollIntervalSeconds = 3
	}

	// Gas
	if cfg.GasConfig.Adjustment == 0 {
		cfg.GasConfig.Adjustment = 1.5
	}
	if cfg.GasConfig.Adjustment < 1 {
		return fmt.Errorf("gas adjustment must be at least 1")
	}
	if cfg.GasConfig.DefaultLimit == 0 {
		cfg.GasConfig.DefaultLimit = 500000
	}

	// Keyring
	if cfg.KeyringBackend == "" {
		cfg.KeyringBackend = KeyringBackendTest
	}
	switch cfg.KeyringBackend {
	case KeyringBackendTest, KeyringBackendFile, KeyringBackendOS:
	default:
		return fmt.Errorf("keyring backend must be 'test', 'file' or 'os'")
	}
	if cfg.KeyName == "" {
		cfg.KeyName = "nami"
	}

	// Pairing
	if cfg.PairingConfig.RelayURL == "" {
		cfg.PairingConfig.RelayURL = "ws://127.0.0.1:26670/relay"
	}
	if cfg.PairingConfig.ApprovalTimeoutSeconds == 0 {
		cfg.PairingConfig.ApprovalTimeoutSeconds = 300
	}
	if cfg.PairingConfig.RequestTimeoutSeconds == 0 {
		cfg.PairingConfig.RequestTimeoutSeconds = 120
	}
	if cfg.PairingConfig.SessionTTLSeconds == 0 {
		cfg.PairingConfig.SessionTTLSeconds = 7 * 24 * 60 * 60
	}
	if cfg.PairingConfig.ListenPort == 0 {
		cfg.PairingConfig.ListenPort = 26670
	}

	// Wallet
	if cfg.ReadOnlyAddress == "" {
		cfg.ReadOnlyAddress = constant.DefaultReadOnlyAddress
	}
	if cfg.FeeDenom == "" {
		cfg.FeeDenom = constant.DefaultFeeDenom
	}
	if cfg.TokenDecimals == 0 {
		cfg.TokenDecimals = constant.DefaultTokenDecimals
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 18 {
		return fmt.Errorf("token decimals must be between 0 and 18")
	}
	if len(cfg.DepositDenoms) == 0 || len(cfg.WithdrawDenoms) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			if len(cfg.DepositDenoms) == 0 {
				cfg.DepositDenoms = defaultCfg.DepositDenoms
			}
			if len(cfg.WithdrawDenoms) == 0 {
				cfg.WithdrawDenoms = defaultCfg.WithdrawDenoms
			}
		}
	}

	return nil
}

// Validate applies defaults and checks the config.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeHome>/config/nami_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the config from <basePath>/config/nami_config.json and applies
// NAMI_* environment overrides (a .env file in the working directory is honoured).
func Load(basePath string) (Config, error) {
	// .env is optional; variables may also come from the process environment
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName))
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "json"
	}); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid default config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads the config under basePath, falling back to the embedded
// defaults when no config file has been written yet.
func LoadOrDefault(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		cfg, err := LoadDefaultConfig()
		if err != nil {
			return Config{}, err
		}
		cfg.NodeHome = basePath
		return *cfg, nil
	}
	cfg, err := Load(basePath)
	if err != nil {
		return Config{}, err
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}
	return cfg, nil
}
