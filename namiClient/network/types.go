package network

import (
	"time"
)

// EventType identifies a connection state change.
type EventType string

const (
	// NetworkChanged fires after a switch to another chain ID.
	NetworkChanged EventType = "network_changed"
	// ConnectionChanged fires whenever the live endpoint is replaced.
	ConnectionChanged EventType = "connection_changed"
	// ConnectionLost fires when no endpoint of the network could be reached.
	ConnectionLost EventType = "connection_lost"
)

// Event is delivered to subscribers of the Manager.
type Event struct {
	Type     EventType
	Network  string
	Endpoint string
	Err      error
}

// DeliverTxResponse is the outcome of a broadcast transaction once it has
// been included in a block, or of its failed CheckTx.
type DeliverTxResponse struct {
	Height    int64  `json:"height" yaml:"height"`
	TxHash    string `json:"txhash" yaml:"txhash"`
	Code      uint32 `json:"code" yaml:"code"`
	Codespace string `json:"codespace,omitempty" yaml:"codespace,omitempty"`
	RawLog    string `json:"raw_log,omitempty" yaml:"raw_log,omitempty"`
	GasUsed   int64  `json:"gas_used" yaml:"gas_used"`
	GasWanted int64  `json:"gas_wanted" yaml:"gas_wanted"`
}

// IsSuccess reports whether the transaction executed with code 0.
func (r *DeliverTxResponse) IsSuccess() bool {
	return r != nil && r.Code == 0
}

// BlockStatus summarises the chain head as seen by the live endpoint.
type BlockStatus struct {
	Height           int64         `json:"height" yaml:"height"`
	LatestBlockTime  time.Time     `json:"latest_block_time" yaml:"latest_block_time"`
	Lag              time.Duration `json:"lag" yaml:"lag"`
	AverageBlockTime time.Duration `json:"average_block_time" yaml:"average_block_time"`
}

// ChainInfo describes a network in the shape wallets use to register chains.
type ChainInfo struct {
	ChainID       string        `json:"chainId" yaml:"chain_id"`
	ChainName     string        `json:"chainName" yaml:"chain_name"`
	RPC           string        `json:"rpc" yaml:"rpc"`
	Bip44         Bip44         `json:"bip44" yaml:"bip44"`
	Bech32Config  Bech32Config  `json:"bech32Config" yaml:"bech32_config"`
	Currencies    []Currency    `json:"currencies" yaml:"currencies"`
	FeeCurrencies []FeeCurrency `json:"feeCurrencies" yaml:"fee_currencies"`
	StakeCurrency Currency      `json:"stakeCurrency" yaml:"stake_currency"`
}

type Bip44 struct {
	CoinType int `json:"coinType" yaml:"coin_type"`
}

type Bech32Config struct {
	Bech32PrefixAccAddr  string `json:"bech32PrefixAccAddr" yaml:"bech32_prefix_acc_addr"`
	Bech32PrefixAccPub   string `json:"bech32PrefixAccPub" yaml:"bech32_prefix_acc_pub"`
	Bech32PrefixValAddr  string `json:"bech32PrefixValAddr" yaml:"bech32_prefix_val_addr"`
	Bech32PrefixValPub   string `json:"bech32PrefixValPub" yaml:"bech32_prefix_val_pub"`
	Bech32PrefixConsAddr string `json:"bech32PrefixConsAddr" yaml:"bech32_prefix_cons_addr"`
	Bech32PrefixConsPub  string `json:"bech32PrefixConsPub" yaml:"bech32_prefix_cons_pub"`
}

type Currency struct {
	CoinDenom        string `json:"coinDenom" yaml:"coin_denom"`
	CoinMinimalDenom string `json:"coinMinimalDenom" yaml:"coin_minimal_denom"`
	CoinDecimals     int    `json:"coinDecimals" yaml:"coin_decimals"`
}

type FeeCurrency struct {
	Currency     `yaml:",inline"`
	GasPriceStep GasPriceStep `json:"gasPriceStep" yaml:"gas_price_step"`
}

type GasPriceStep struct {
	Low     float64 `json:"low" yaml:"low"`
	Average float64 `json:"average" yaml:"average"`
	High    float64 `json:"high" yaml:"high"`
}
